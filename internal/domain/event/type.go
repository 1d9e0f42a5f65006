package event

// Type identifies the type of domain event
type Type string

const (
	TypeExpenseSubmitted  Type = "expense.submitted"
	TypeStepAdvanced      Type = "expense.step_advanced"
	TypeExpenseFinalized  Type = "expense.finalized"
	TypeExpenseOverridden Type = "expense.overridden"
	TypeAssignmentDecided Type = "assignment.decided"
	TypeApprovalRequested Type = "approval.requested"
	TypeApprovalReminder  Type = "approval.reminder"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeExpenseSubmitted,
		TypeStepAdvanced,
		TypeExpenseFinalized,
		TypeExpenseOverridden,
		TypeAssignmentDecided,
		TypeApprovalRequested,
		TypeApprovalReminder:
		return true
	default:
		return false
	}
}

// Payload keys shared by producers and consumers
const (
	KeyEmployeeID     = "employee_id"
	KeyCompanyID      = "company_id"
	KeyApproverIDs    = "approver_ids"
	KeyAssignmentIDs  = "assignment_ids"
	KeyStatus         = "status"
	KeyPreviousStatus = "previous_status"
	KeyStepOrder      = "step_order"
	KeyDecision       = "decision"
	KeyActorID        = "actor_id"
	KeyComment        = "comment"
)
