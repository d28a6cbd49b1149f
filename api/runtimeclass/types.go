package runtimeclass

import (
	"fmt"
	"strings"
)

// Class is the latency tier assigned to one unit of work.
type Class string

const (
	// R1 is the hot tier: tick-budgeted, never allocates or blocks.
	R1 Class = "R1"
	// W1 is the warm tier: sub-millisecond budget, may allocate.
	W1 Class = "W1"
	// C1 is the cold tier: long-running queries and validation work.
	C1 Class = "C1"
)

// Metadata is the immutable per-tier contract data.
type Metadata struct {
	Label      string `json:"label"`
	BudgetTicks uint64 `json:"budget_ticks,omitempty"`
	BudgetNS   int64  `json:"budget_ns"`
	SLOP99NS   int64  `json:"slo_p99_ns"`
}

// Valid reports whether the class is one of the three known tiers.
func (c Class) Valid() bool {
	switch c {
	case R1, W1, C1:
		return true
	default:
		return false
	}
}

// Metadata returns the fixed tier contract. Tiers are static data and are
// never mutated at runtime.
func (c Class) Metadata() Metadata {
	switch c {
	case R1:
		return Metadata{Label: "hot", BudgetTicks: 8, BudgetNS: 2, SLOP99NS: 2}
	case W1:
		return Metadata{Label: "warm", BudgetNS: 500_000, SLOP99NS: 1_000_000}
	case C1:
		return Metadata{Label: "cold", BudgetNS: 200_000_000, SLOP99NS: 500_000_000}
	default:
		return Metadata{}
	}
}

// Classes lists all tiers in hot-to-cold order.
func Classes() []Class {
	return []Class{R1, W1, C1}
}

// OperationDescriptor identifies one operation submitted for classification.
// Descriptors are ephemeral: created per call and consumed by the classifier.
type OperationDescriptor struct {
	Name      string `json:"name"`
	InputSize uint64 `json:"input_size"`
}

// Validate enforces descriptor required fields.
func (d OperationDescriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("operation name is required")
	}
	return nil
}

// SloViolation reports a tier whose observed p99 exceeds its target. It is
// diagnostic evidence, never an execution-time gate.
type SloViolation struct {
	Class            Class   `json:"class"`
	P99LatencyNS     int64   `json:"p99_latency_ns"`
	SLOThresholdNS   int64   `json:"slo_threshold_ns"`
	ViolationPercent float64 `json:"violation_percent"`
}

// Receipt is the immutable audit record binding one execution's tick count,
// lane count, output hash, and span identity.
type Receipt struct {
	ID          string `json:"id"`
	Ticks       uint64 `json:"ticks"`
	Lanes       int    `json:"lanes"`
	SpanID      string `json:"span_id"`
	OutputHash  string `json:"output_hash"`
	TimestampMS int64  `json:"timestamp_ms"`
}

// Validate enforces receipt required fields.
func (r Receipt) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("receipt id is required")
	}
	if strings.TrimSpace(r.SpanID) == "" {
		return fmt.Errorf("receipt span_id is required")
	}
	if strings.TrimSpace(r.OutputHash) == "" {
		return fmt.Errorf("receipt output_hash is required")
	}
	if r.Lanes < 0 {
		return fmt.Errorf("receipt lanes must be >= 0")
	}
	if r.TimestampMS < 0 {
		return fmt.Errorf("receipt timestamp_ms must be >= 0")
	}
	return nil
}
