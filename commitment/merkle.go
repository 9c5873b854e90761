package commitment

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/starkforge/stark/taskmanager"
)

// merkleTree is a full binary Merkle tree over row digests, stored as a
// 1-based heap: node 1 is the root, node i has children 2i and 2i+1, and
// leaf j lives at node nLeaves+j.
type merkleTree struct {
	nLeaves uint64
	nodes   []common.Hash
}

func buildMerkleTree(leaves []common.Hash) *merkleTree {
	n := uint64(len(leaves))
	t := &merkleTree{nLeaves: n, nodes: make([]common.Hash, 2*n)}
	copy(t.nodes[n:], leaves)
	tm := taskmanager.Default()
	for level := n / 2; level >= 1; level /= 2 {
		tm.ParallelForRange(level, 2*level, func(ti taskmanager.TaskInfo) {
			for i := ti.StartIdx; i < ti.EndIdx; i++ {
				t.nodes[i] = hashPair(t.nodes[2*i], t.nodes[2*i+1])
			}
		}, 1024, 4096)
	}
	return t
}

func (t *merkleTree) root() common.Hash { return t.nodes[1] }

// decommit walks the batched authentication path for the given sorted leaf
// node indices and emits every sibling digest the verifier cannot compute,
// in the deterministic bottom-up order the verifier replays.
func (t *merkleTree) decommit(nodeIndices []uint64, send func(common.Hash)) {
	cur := nodeIndices
	for len(cur) > 0 && cur[0] != 1 {
		parents := make([]uint64, 0, len(cur))
		for i := 0; i < len(cur); {
			n := cur[i]
			sibling := n ^ 1
			if i+1 < len(cur) && cur[i+1] == sibling {
				i += 2
			} else {
				send(t.nodes[sibling])
				i++
			}
			parents = append(parents, n/2)
		}
		cur = parents
	}
}

// computeMultiproofRoot recomputes the root from known leaf digests,
// pulling missing sibling digests from fetch in the same order decommit
// emits them.
func computeMultiproofRoot(leaves map[uint64]common.Hash, fetch func() (common.Hash, error)) (common.Hash, error) {
	cur := make([]uint64, 0, len(leaves))
	known := make(map[uint64]common.Hash, 2*len(leaves))
	for n, d := range leaves {
		cur = append(cur, n)
		known[n] = d
	}
	sort.Slice(cur, func(i, j int) bool { return cur[i] < cur[j] })
	if len(cur) == 0 {
		return common.Hash{}, fmt.Errorf("no leaves to verify")
	}
	for cur[0] != 1 {
		parents := make([]uint64, 0, len(cur))
		for i := 0; i < len(cur); {
			n := cur[i]
			sibling := n ^ 1
			if i+1 < len(cur) && cur[i+1] == sibling {
				i += 2
			} else {
				d, err := fetch()
				if err != nil {
					return common.Hash{}, err
				}
				known[sibling] = d
				i++
			}
			parent := n / 2
			known[parent] = hashPair(known[2*parent], known[2*parent+1])
			parents = append(parents, parent)
		}
		cur = parents
	}
	return known[1], nil
}

func hashPair(left, right common.Hash) common.Hash {
	return common.BytesToHash(crypto.Keccak256(left[:], right[:]))
}

func sortedRows(queries []RowCol) []uint64 {
	seen := make(map[uint64]struct{}, len(queries))
	rows := make([]uint64, 0, len(queries))
	for _, q := range queries {
		if _, ok := seen[q.Row]; !ok {
			seen[q.Row] = struct{}{}
			rows = append(rows, q.Row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i] < rows[j] })
	return rows
}
