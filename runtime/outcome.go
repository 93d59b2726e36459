package runtime

import (
	"fmt"

	"github.com/pithecene-io/runreport/types"
)

// Process exit codes of runreport run.
const (
	ExitCodeOK            = 0 // published or disabled
	ExitCodeIncomplete    = 1 // stream ended without a stats event
	ExitCodeStreamError   = 2 // event stream could not be decoded
	ExitCodeInvalidConfig = 3 // invalid arguments or configuration
)

// DetermineOutcome classifies a finished run.
//
// Precedence, highest first:
//  1. a fatal stream error
//  2. a disabled callback
//  3. a missing stats event (includes cancellation)
//  4. published
//
// Individual host failures never change the outcome; they are counted in
// the run report.
func DetermineOutcome(ingErr error, hasTerminal bool, disabled error) *types.RunOutcome {
	switch {
	case IsStreamError(ingErr):
		return &types.RunOutcome{
			Status:  types.OutcomeStreamError,
			Message: fmt.Sprintf("stream error: %v", ingErr),
		}
	case disabled != nil:
		return &types.RunOutcome{
			Status:  types.OutcomeDisabled,
			Message: disabled.Error(),
		}
	case IsCanceledError(ingErr):
		return &types.RunOutcome{
			Status:  types.OutcomeIncomplete,
			Message: fmt.Sprintf("run canceled: %v", ingErr),
		}
	case ingErr != nil:
		return &types.RunOutcome{
			Status:  types.OutcomeIncomplete,
			Message: ingErr.Error(),
		}
	case !hasTerminal:
		return &types.RunOutcome{
			Status:  types.OutcomeIncomplete,
			Message: "event stream ended without a stats event",
		}
	default:
		return &types.RunOutcome{
			Status:  types.OutcomePublished,
			Message: "facts and reports handed to Foreman",
		}
	}
}

// ExitCode maps an outcome status to the process exit code.
func ExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomePublished, types.OutcomeDisabled:
		return ExitCodeOK
	case types.OutcomeIncomplete:
		return ExitCodeIncomplete
	case types.OutcomeStreamError:
		return ExitCodeStreamError
	default:
		return ExitCodeIncomplete
	}
}
