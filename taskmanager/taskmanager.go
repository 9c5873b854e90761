// Package taskmanager provides a process-wide worker pool with a
// hierarchical, blocking parallel-for. The calling goroutine always joins
// the pool while its tasks run, so tasks may themselves call ParallelFor
// without deadlocking or oversubscribing the pool.
package taskmanager

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// TaskInfo describes the half-open index range assigned to one task call.
type TaskInfo struct {
	StartIdx uint64
	EndIdx   uint64
}

// When queueing tasks we aim for taskRedundancyFactor*NumThreads chunks, a
// tradeoff between scheduling overhead and tail latency from unbalanced
// execution speed.
const taskRedundancyFactor = 4

type taskGroup struct {
	fn        func(TaskInfo)
	maxChunk  uint64
	remaining int
	panicVal  any
}

type chunkTask struct {
	group      *taskGroup
	start, end uint64
}

// waitersCond wraps a condition variable with a sleeper count so that
// notifications are skipped entirely when nobody is waiting.
type waitersCond struct {
	cond    *sync.Cond
	waiters int
}

func (c *waitersCond) wait() {
	c.waiters++
	c.cond.Wait()
	c.waiters--
}

func (c *waitersCond) notifyAll() {
	if c.waiters > 0 {
		c.cond.Broadcast()
	}
}

// TaskManager runs nThreads-1 worker goroutines; together with the calling
// goroutine this gives an nThreads-wide pool.
type TaskManager struct {
	mu        sync.Mutex
	newTask   waitersCond
	groupDone waitersCond
	tasks     []*chunkTask
	nThreads  int
	closed    bool
	wg        sync.WaitGroup
	ids       map[int64]int
}

// New creates a TaskManager with the given pool width. Widths below 1 are
// clamped to 1 (everything runs on the caller).
func New(nThreads int) *TaskManager {
	if nThreads < 1 {
		nThreads = 1
	}
	m := &TaskManager{
		nThreads: nThreads,
		ids:      make(map[int64]int),
	}
	m.newTask.cond = sync.NewCond(&m.mu)
	m.groupDone.cond = sync.NewCond(&m.mu)
	for id := 1; id < nThreads; id++ {
		m.wg.Add(1)
		go m.workerLoop(id)
	}
	return m
}

// NumThreads returns the pool width, including the calling goroutine's slot.
func (m *TaskManager) NumThreads() int { return m.nThreads }

// WorkerID returns the pool slot of the calling goroutine: worker goroutines
// have ids 1..NumThreads-1 and the goroutine driving ParallelFor has id 0.
// Concurrently active executors always have distinct ids in [0, NumThreads).
func (m *TaskManager) WorkerID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ids[goid()]
}

// Shutdown stops the workers and waits for them to exit. Pending tasks are
// still drained by their issuing ParallelFor calls; Shutdown must not be
// called concurrently with ParallelFor.
func (m *TaskManager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	m.newTask.notifyAll()
	m.mu.Unlock()
	m.wg.Wait()
}

// ParallelFor executes fn over [0, end) with task granularity 1.
func (m *TaskManager) ParallelFor(end uint64, fn func(TaskInfo)) {
	m.ParallelForRange(0, end, fn, 1, 1)
}

// ParallelForRange executes fn over [start, end), split into chunks of at
// most maxChunk indices per call. If the total work is at most minChunk the
// whole range runs on the calling goroutine without touching the queue.
// A panic inside fn is captured, remaining chunks of this call are skipped,
// and the panic is re-raised on the calling goroutine.
func (m *TaskManager) ParallelForRange(start, end uint64, fn func(TaskInfo), maxChunk, minChunk uint64) {
	if end <= start {
		return
	}
	if maxChunk == 0 {
		maxChunk = 1
	}
	n := end - start
	if n <= minChunk || m.nThreads == 1 {
		runDirect(start, end, maxChunk, fn)
		return
	}

	chunkSize := (n + uint64(taskRedundancyFactor*m.nThreads) - 1) / uint64(taskRedundancyFactor*m.nThreads)
	if chunkSize < minChunk {
		chunkSize = minChunk
	}
	g := &taskGroup{fn: fn, maxChunk: maxChunk}

	m.mu.Lock()
	if _, ok := m.ids[goid()]; !ok {
		// External caller takes slot 0 while it participates.
		m.ids[goid()] = 0
		defer func() {
			m.mu.Lock()
			delete(m.ids, goid())
			m.mu.Unlock()
		}()
	}
	for s := start; s < end; s += chunkSize {
		e := s + chunkSize
		if e > end {
			e = end
		}
		m.tasks = append(m.tasks, &chunkTask{group: g, start: s, end: e})
		g.remaining++
	}
	m.newTask.notifyAll()

	// Join the pool until all sibling tasks of this group are done. Running
	// arbitrary queued tasks here is what makes nested calls safe.
	for g.remaining > 0 {
		if len(m.tasks) > 0 {
			t := m.tasks[0]
			m.tasks = m.tasks[1:]
			m.runTaskLocked(t)
			continue
		}
		m.groupDone.wait()
	}
	pv := g.panicVal
	m.mu.Unlock()
	if pv != nil {
		panic(pv)
	}
}

func (m *TaskManager) workerLoop(id int) {
	defer m.wg.Done()
	m.mu.Lock()
	m.ids[goid()] = id
	for {
		if m.closed {
			break
		}
		if len(m.tasks) > 0 {
			t := m.tasks[0]
			m.tasks = m.tasks[1:]
			m.runTaskLocked(t)
			continue
		}
		m.newTask.wait()
	}
	delete(m.ids, goid())
	m.mu.Unlock()
}

// runTaskLocked executes one task with the mutex held on entry and exit.
func (m *TaskManager) runTaskLocked(t *chunkTask) {
	g := t.group
	skip := g.panicVal != nil
	m.mu.Unlock()
	var pv any
	if !skip {
		pv = runCaptured(t.start, t.end, g.maxChunk, g.fn)
	}
	m.mu.Lock()
	if pv != nil && g.panicVal == nil {
		g.panicVal = pv
	}
	g.remaining--
	if g.remaining == 0 {
		m.groupDone.notifyAll()
	}
}

func runCaptured(start, end, maxChunk uint64, fn func(TaskInfo)) (pv any) {
	defer func() {
		if r := recover(); r != nil {
			pv = r
		}
	}()
	runDirect(start, end, maxChunk, fn)
	return nil
}

func runDirect(start, end, maxChunk uint64, fn func(TaskInfo)) {
	for s := start; s < end; s += maxChunk {
		e := s + maxChunk
		if e > end {
			e = end
		}
		fn(TaskInfo{StartIdx: s, EndIdx: e})
	}
}

var (
	defaultManager *TaskManager
	defaultOnce    sync.Once
)

// Init sets the process-wide pool width. It must be called before the first
// use of Default; later calls have no effect.
func Init(nThreads int) {
	defaultOnce.Do(func() {
		defaultManager = New(nThreads)
	})
}

// Default returns the process-wide TaskManager, creating it with a pool as
// wide as the machine on first use.
func Default() *TaskManager {
	defaultOnce.Do(func() {
		defaultManager = New(runtime.NumCPU())
	})
	return defaultManager
}

// goid returns the current goroutine id. Go deliberately hides it, but a
// per-goroutine pool slot needs a stable key; parsing the stack header is
// the standard trick and is only done outside the hot path.
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
