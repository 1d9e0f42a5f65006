package workflow

// StateMachine tracks an expense's state and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// Fire executes the trigger, moving to the new state if allowed
	Fire(trigger Trigger) error
}

// NewExpenseStateMachine returns the expense lifecycle positioned at initial.
//
//	PENDING --ADVANCE--> PENDING
//	PENDING --APPROVE|OVERRIDE_APPROVE--> APPROVED
//	PENDING --REJECT|OVERRIDE_REJECT--> REJECTED
//
// APPROVED and REJECTED are terminal.
func NewExpenseStateMachine(initial State) StateMachine {
	builder := NewBuilder()

	builder.Configure(StatePending).
		Permit(TriggerAdvance, StatePending).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerOverrideApprove, StateApproved).
		Permit(TriggerOverrideReject, StateRejected)

	return builder.Build(initial)
}
