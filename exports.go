package sandbox

import "github.com/cryguy/sandbox/internal/core"

// Type aliases re-exporting internal/core types so callers can use
// sandbox.Request, sandbox.Outcome, etc. without importing the internal
// package directly.

type Config = core.Config
type Request = core.Request
type Outcome = core.Outcome
type Success = core.Success
type Failure = core.Failure
type Report = core.Report
type Image = core.Image
type Artifact = core.Artifact
type Fault = core.Fault
type FaultKind = core.FaultKind
type Backend = core.Backend
type JSRuntime = core.JSRuntime

// Fault kinds re-exported from core.
const (
	FaultSuspiciousPattern = core.FaultSuspiciousPattern
	FaultSyntax            = core.FaultSyntax
	FaultImport            = core.FaultImport
	FaultRuntime           = core.FaultRuntime
	FaultTimeout           = core.FaultTimeout
	FaultMemory            = core.FaultMemory
	FaultCancelled         = core.FaultCancelled
)

// Defaults re-exported from core.
const (
	DefaultTimeout       = core.DefaultTimeout
	DefaultMemoryCeiling = core.DefaultMemoryCeiling
)

// Functions re-exported from core.
var AsFault = core.AsFault
