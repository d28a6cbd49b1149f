// Package core re-exports the stable v1 contract types consumed by clients
// embedding the runtime. Internal packages import the api packages directly;
// external integrations pin against this surface.
package core

import (
	ex "github.com/tiger/tiered-workflow-runtime/api/execution"
	rc "github.com/tiger/tiered-workflow-runtime/api/runtimeclass"
)

// Classification contracts.
type Class = rc.Class
type ClassMetadata = rc.Metadata
type OperationDescriptor = rc.OperationDescriptor

// Execution contracts.
type PatternID = ex.PatternID
type PatternGroup = ex.Group
type ExecutionContext = ex.Context
type ExecutionResult = ex.Result
type StateUpdates = ex.StateUpdates

// Audit contracts.
type Receipt = rc.Receipt
type SloViolation = rc.SloViolation

// Tier identifiers.
const (
	ClassR1 = rc.R1
	ClassW1 = rc.W1
	ClassC1 = rc.C1
)

// PatternCount is the size of the closed pattern catalogue.
const PatternCount = ex.PatternCount
