package entity

import "time"

// ApprovalAssignment is one approver's pending or final decision on one step of an expense
type ApprovalAssignment struct {
	ID         int64      `json:"id"`
	ExpenseID  int64      `json:"expense_id"`
	StepID     int64      `json:"step_id"`
	ApproverID int64      `json:"approver_id"`
	Status     string     `json:"status"`
	Comment    string     `json:"comment,omitempty"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsPending reports whether the assignment still awaits a decision
func (a *ApprovalAssignment) IsPending() bool {
	return a.Status == AssignmentStatusPending
}

// PendingApproval is an assignment, open or decided, joined with the expense it belongs to
type PendingApproval struct {
	Assignment    *ApprovalAssignment `json:"assignment"`
	Expense       *Expense            `json:"expense"`
	EmployeeEmail string              `json:"employee_email"`
	ApproverEmail string              `json:"approver_email"`
}
