package cycle

import (
	"strings"
	"time"

	pdcerrors "github.com/rcourtman/pulse-disk-collector/internal/errors"
	"github.com/rcourtman/pulse-disk-collector/internal/models"
)

// State is a stage of one collection cycle.
type State int

const (
	StateEnumerating State = iota
	StateInvoking
	StateParsing
	StateMerging
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateEnumerating:
		return "enumerating"
	case StateInvoking:
		return "invoking"
	case StateParsing:
		return "parsing"
	case StateMerging:
		return "merging"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Outcome classifies a finished cycle for logs and metrics.
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomePartial Outcome = "partial"
	OutcomeAborted Outcome = "aborted"
)

// Failure is one source that did not fully deliver during a cycle.
type Failure struct {
	Source string
	Device string // empty for server-level sources
	Stage  State  // StateInvoking or StateParsing
	Type   pdcerrors.ErrorType
	// Recovered is set when values were still parsed from partial output.
	Recovered bool
	Err       error
}

// Key names the failure in summaries, e.g. "smartctl:sda" or "cpu".
func (f Failure) Key() string {
	if f.Device == "" {
		return f.Source
	}
	return f.Source + ":" + f.Device
}

func (f Failure) Error() string { return f.Err.Error() }

// Result is what one cycle produced. Row is nil only when the cycle was
// aborted.
type Result struct {
	CycleID  string
	State    State
	Row      *models.CycleRow
	Disks    []models.DiskIdentity
	Failures []Failure
	Err      error // abort reason
	Started  time.Time
	Finished time.Time
}

// Outcome reports done, partial or aborted.
func (r Result) Outcome() Outcome {
	switch {
	case r.State == StateAborted:
		return OutcomeAborted
	case len(r.Failures) > 0:
		return OutcomePartial
	default:
		return OutcomeDone
	}
}

// FailedSources lists failure keys in collection order.
func (r Result) FailedSources() []string {
	keys := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		keys[i] = f.Key()
	}
	return keys
}

// Summary is a one-line description of the failure list.
func (r Result) Summary() string {
	if len(r.Failures) == 0 {
		return ""
	}
	parts := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		parts[i] = f.Key() + "=" + string(f.Type)
	}
	return strings.Join(parts, ", ")
}

// Duration is the wall time the cycle took.
func (r Result) Duration() time.Duration { return r.Finished.Sub(r.Started) }
