package receipt

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/tiger/tiered-workflow-runtime/api/runtimeclass"
)

// Anchorer folds each epoch's receipt stream into a merkle root. Roots are
// sealed at pulse boundaries, giving auditors one hash per 8-beat epoch
// instead of a receipt-by-receipt trail.
type Anchorer struct {
	mu     sync.Mutex
	leaves [][32]byte
	count  int
	roots  map[uint64]string
}

// NewAnchorer returns an anchorer with no open epoch leaves.
func NewAnchorer() *Anchorer {
	return &Anchorer{roots: map[uint64]string{}}
}

// Add folds one receipt into the open epoch.
func (a *Anchorer) Add(r runtimeclass.Receipt) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("anchor receipt: %w", err)
	}
	leaf := blake3.Sum256([]byte(r.ID + "|" + r.SpanID + "|" + r.OutputHash))
	a.mu.Lock()
	defer a.mu.Unlock()
	a.leaves = append(a.leaves, leaf)
	a.count++
	return nil
}

// Pending returns the number of receipts in the open epoch.
func (a *Anchorer) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.leaves)
}

// Seal closes the epoch: it computes the merkle root over the receipts
// added since the last seal, records it under the epoch index, and starts a
// fresh epoch. Sealing an empty epoch records no root.
func (a *Anchorer) Seal(epoch uint64) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.leaves) == 0 {
		return "", false
	}
	root := merkleRoot(a.leaves)
	encoded := HashPrefix + hex.EncodeToString(root[:])
	a.roots[epoch] = encoded
	a.leaves = nil
	return encoded, true
}

// Root returns the sealed root for an epoch.
func (a *Anchorer) Root(epoch uint64) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	root, ok := a.roots[epoch]
	return root, ok
}

// merkleRoot folds leaves pairwise; an odd leaf is paired with itself.
func merkleRoot(leaves [][32]byte) [32]byte {
	level := make([][32]byte, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, blake3.Sum256(append(left[:], right[:]...)))
		}
		level = next
	}
	return level[0]
}
