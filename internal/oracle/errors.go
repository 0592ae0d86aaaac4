package oracle

import (
	"errors"
	"fmt"

	"github.com/mtlprog/rwaoracle/internal/domain"
)

// AcceptStep names one write performed by Service.Accept.
type AcceptStep string

const (
	StepValuation AcceptStep = "valuation"
	StepLedger    AcceptStep = "ledger"
	StepStatus    AcceptStep = "status"
)

// AcceptError reports which step of an acceptance failed. Earlier steps
// have already been written; retrying Accept is safe.
type AcceptError struct {
	Step         AcceptStep
	PredictionID string
	Err          error
}

func (e *AcceptError) Error() string {
	return fmt.Sprintf("accepting prediction %s: %s step: %v", e.PredictionID, e.Step, e.Err)
}

func (e *AcceptError) Unwrap() error {
	return e.Err
}

// Partial reports whether an earlier step was written before the failure, so
// the acceptance is half done and a retry should complete it. Failures in the
// first step, and guard errors such as an unknown or already resolved
// prediction, leave nothing to complete.
func (e *AcceptError) Partial() bool {
	if e.Step == StepValuation {
		return false
	}
	return !errors.Is(e.Err, domain.ErrInvalidState) && !errors.Is(e.Err, domain.ErrNotFound)
}
