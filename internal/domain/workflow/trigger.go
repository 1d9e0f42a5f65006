package workflow

// Trigger is an event that moves an expense through its lifecycle
type Trigger string

const (
	// TriggerAdvance moves the expense to the next step; status stays PENDING
	TriggerAdvance         Trigger = "ADVANCE"
	TriggerApprove         Trigger = "APPROVE"
	TriggerReject          Trigger = "REJECT"
	TriggerOverrideApprove Trigger = "OVERRIDE_APPROVE"
	TriggerOverrideReject  Trigger = "OVERRIDE_REJECT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// IsOverride reports whether the trigger bypasses rule evaluation
func (t Trigger) IsOverride() bool {
	return t == TriggerOverrideApprove || t == TriggerOverrideReject
}
