package entity

import "time"

// ApprovalHistory is the audit trail of an expense's approval
type ApprovalHistory struct {
	ID        int64 `json:"id"`
	ExpenseID int64 `json:"expense_id"`
	// ActorID is nil for transitions made by the engine itself
	ActorID        *int64    `json:"actor_id,omitempty"`
	Action         string    `json:"action"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	PreviousStep   int       `json:"previous_step"`
	NewStep        int       `json:"new_step"`
	Comment        string    `json:"comment,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
