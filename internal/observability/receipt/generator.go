// Package receipt produces the immutable audit records that bind one
// execution's tick count, lane usage, span identity, and output hash, and
// anchors each epoch's receipt stream under a merkle root at pulse
// boundaries.
package receipt

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/tiger/tiered-workflow-runtime/api/runtimeclass"
)

// HashPrefix tags output hashes with the digest algorithm.
const HashPrefix = "blake3:"

// Input carries the facts of one completed execution.
type Input struct {
	SpanID string
	Ticks  uint64
	Lanes  int
	Output []byte
}

// Clock abstracts wall time for deterministic tests.
type Clock func() time.Time

// Generator mints receipts. The zero value is not usable; construct with
// NewGenerator.
type Generator struct {
	now Clock
}

// NewGenerator returns a generator on the system clock. clock may be nil.
func NewGenerator(clock Clock) *Generator {
	if clock == nil {
		clock = time.Now
	}
	return &Generator{now: clock}
}

// HashOutput digests an execution output into the receipt hash form.
func HashOutput(output []byte) string {
	sum := blake3.Sum256(output)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// Generate mints one receipt for a completed execution.
func (g *Generator) Generate(in Input) (runtimeclass.Receipt, error) {
	if strings.TrimSpace(in.SpanID) == "" {
		return runtimeclass.Receipt{}, fmt.Errorf("span_id is required")
	}
	if in.Lanes < 0 {
		return runtimeclass.Receipt{}, fmt.Errorf("lanes must be >= 0, got %d", in.Lanes)
	}
	r := runtimeclass.Receipt{
		ID:          "receipt-" + uuid.NewString(),
		Ticks:       in.Ticks,
		Lanes:       in.Lanes,
		SpanID:      strings.TrimSpace(in.SpanID),
		OutputHash:  HashOutput(in.Output),
		TimestampMS: g.now().UnixMilli(),
	}
	if err := r.Validate(); err != nil {
		return runtimeclass.Receipt{}, fmt.Errorf("generated receipt invalid: %w", err)
	}
	return r, nil
}
