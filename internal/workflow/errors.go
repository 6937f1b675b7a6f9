package workflow

import "fmt"

// Validation error codes for workflow definition loading: an E1xx
// convention for structured, machine-checkable validation failures.
const (
	ErrCodeSchemaInvalid   = "E101"
	ErrCodeParse           = "E102"
	ErrCodeUnknownKey      = "E103"
	ErrCodeMissingField    = "E104"
	ErrCodeNoStates        = "E105"
	ErrCodeUnknownState    = "E106"
	ErrCodeDuplicateAction = "E107"
	ErrCodeEmptyRoles      = "E108"
)

// ValidationError reports a defect found while loading a workflow
// definition document.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Admission rejection reason sub-codes (§4.4, surfaced through
// ledger.Error.Code for the workflow_rejection taxonomy member).
const (
	ReasonUnknownWorkflow   = "unknown_workflow"
	ReasonUnknownAction     = "unknown_action"
	ReasonFromStateMismatch = "from_state_mismatch"
	ReasonMissingRole       = "missing_role"
	ReasonTerminalState     = "terminal_state"
)

// RejectionError describes why a proposed workflow-gated record was not
// admitted. Role is populated only for ReasonMissingRole.
type RejectionError struct {
	Reason string
	Role   string
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("workflow rejection (%s): %s: %s", e.Reason, e.Role, e.Detail)
	}
	return fmt.Sprintf("workflow rejection (%s): %s", e.Reason, e.Detail)
}
