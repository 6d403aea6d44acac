// ABOUTME: StepError reports which step of a composite workflow failed
// ABOUTME: Earlier steps of the same workflow remain applied

package integrator

import (
	"errors"
	"fmt"
)

// Workflow names.
const (
	WorkflowRegisterCustomer    = "register_customer"
	WorkflowRegisterBuilding    = "register_building"
	WorkflowRegisterDevice      = "register_device"
	WorkflowLinkDeviceState     = "link_device_state"
	WorkflowCrossCheck          = "cross_check"
	WorkflowComputeCorrelation  = "compute_correlation"
	WorkflowRecordCommunication = "record_communication"
	WorkflowAnalyzeTranscript   = "analyze_transcript"
	WorkflowUpdateWealthScore   = "update_wealth_score"

	WorkflowRegisterServiceTicket = "register_service_ticket"
	WorkflowCreateOffer           = "create_offer"
	WorkflowRecordOfferReaction   = "record_offer_reaction"
)

// Step names.
const (
	StepCreateCustomer      = "create_customer"
	StepCreateBuilding      = "create_building"
	StepCreateDevice        = "create_device"
	StepVerifyState         = "verify_state"
	StepUpdateDevice        = "update_device"
	StepListCandidates      = "list_candidates"
	StepCompute             = "compute"
	StepCreateCommunication = "create_communication"
	StepLoadCommunication   = "load_communication"
	StepUpdateWealthScore   = "update_wealth_score"
	StepVerifyDevice        = "verify_device"
	StepVerifyCustomer      = "verify_customer"
	StepCreateTicket        = "create_ticket"
	StepCreateOffer         = "create_offer"
	StepLoadOffer           = "load_offer"
	StepRecordReaction      = "record_reaction"
	StepMarkSigned          = "mark_signed"
)

// ErrNoTranscript is returned when a transcript analysis has no text to score.
var ErrNoTranscript = errors.New("communication has no transcript")

// StepError describes a failed workflow step.
type StepError struct {
	Workflow string
	Step     string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %s: %v", e.Workflow, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(workflow, step string, err error) error {
	return &StepError{Workflow: workflow, Step: step, Err: err}
}

// FailedStep returns the step named by a *StepError in err's chain, or "".
func FailedStep(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
