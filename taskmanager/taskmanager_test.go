package taskmanager

import (
	"sync/atomic"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestParallelForWritesEveryIndex(t *testing.T) {
	for _, nThreads := range []int{1, 2, 4, 8} {
		m := New(nThreads)
		const n = 10000
		out := make([]uint64, n)
		m.ParallelFor(n, func(ti TaskInfo) {
			for i := ti.StartIdx; i < ti.EndIdx; i++ {
				out[i] = i * i
			}
		})
		for i := uint64(0); i < n; i++ {
			qt.Assert(t, out[i], qt.Equals, i*i)
		}
		m.Shutdown()
	}
}

func TestParallelForDeterministicAcrossPoolSizes(t *testing.T) {
	const n = 4096
	run := func(nThreads int) []uint64 {
		m := New(nThreads)
		defer m.Shutdown()
		out := make([]uint64, n)
		m.ParallelForRange(0, n, func(ti TaskInfo) {
			for i := ti.StartIdx; i < ti.EndIdx; i++ {
				out[i] = 3*i + 7
			}
		}, 64, 1)
		return out
	}
	single := run(1)
	wide := run(8)
	qt.Assert(t, wide, qt.DeepEquals, single)
}

func TestParallelForChunkBounds(t *testing.T) {
	m := New(4)
	defer m.Shutdown()
	var calls atomic.Int64
	m.ParallelForRange(0, 1000, func(ti TaskInfo) {
		qt.Check(t, ti.EndIdx > ti.StartIdx, qt.IsTrue)
		qt.Check(t, ti.EndIdx-ti.StartIdx <= 10, qt.IsTrue)
		calls.Add(1)
	}, 10, 1)
	qt.Assert(t, calls.Load() >= 100, qt.IsTrue)
}

func TestParallelForEmptyRange(t *testing.T) {
	m := New(2)
	defer m.Shutdown()
	called := false
	m.ParallelFor(0, func(TaskInfo) { called = true })
	m.ParallelForRange(5, 5, func(TaskInfo) { called = true }, 1, 1)
	qt.Assert(t, called, qt.IsFalse)
}

func TestNestedParallelFor(t *testing.T) {
	m := New(4)
	defer m.Shutdown()
	const rows, cols = 32, 32
	out := make([]uint64, rows*cols)
	m.ParallelFor(rows, func(outer TaskInfo) {
		for r := outer.StartIdx; r < outer.EndIdx; r++ {
			r := r
			m.ParallelFor(cols, func(inner TaskInfo) {
				for c := inner.StartIdx; c < inner.EndIdx; c++ {
					out[r*cols+c] = r + c
				}
			})
		}
	})
	for r := uint64(0); r < rows; r++ {
		for c := uint64(0); c < cols; c++ {
			qt.Assert(t, out[r*cols+c], qt.Equals, r+c)
		}
	}
}

func TestPanicPropagatesToCaller(t *testing.T) {
	m := New(4)
	defer m.Shutdown()
	defer func() {
		r := recover()
		qt.Assert(t, r, qt.Equals, "boom")
	}()
	m.ParallelFor(100, func(ti TaskInfo) {
		if ti.StartIdx == 50 {
			panic("boom")
		}
	})
	t.Error("expected ParallelFor to re-panic")
}

func TestWorkerIDsAreDistinct(t *testing.T) {
	m := New(4)
	defer m.Shutdown()
	seen := make([]atomic.Int64, 4)
	m.ParallelForRange(0, 64, func(TaskInfo) {
		id := m.WorkerID()
		qt.Check(t, id >= 0 && id < 4, qt.IsTrue)
		seen[id].Add(1)
	}, 1, 1)
	var total int64
	for i := range seen {
		total += seen[i].Load()
	}
	qt.Assert(t, total, qt.Equals, int64(64))
}

func TestPoolWidthClamped(t *testing.T) {
	m := New(0)
	defer m.Shutdown()
	qt.Assert(t, m.NumThreads(), qt.Equals, 1)
	ran := false
	m.ParallelFor(1, func(TaskInfo) { ran = true })
	qt.Assert(t, ran, qt.IsTrue)
}
