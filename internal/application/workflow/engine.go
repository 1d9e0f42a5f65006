// Package workflow drives expenses through their approval flow: it resolves
// approvers, materialises assignments, evaluates step rules and records the
// resulting transitions.
package workflow

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Engine is the advancement controller. Every method is one unit of work:
// it either commits all of its mutations or none of them.
type Engine interface {
	// Submit stores a new expense and starts it in the same transaction. A
	// failure leaves nothing behind.
	Submit(ctx context.Context, expense *entity.Expense) (*entity.Expense, error)

	// OnExpenseCreated starts an expense that has a flow attached: it moves the
	// expense to step 1, creates the step's assignments and evaluates at once.
	// Calling it again on a started expense only re-evaluates.
	OnExpenseCreated(ctx context.Context, expenseID int64) (*entity.Expense, error)

	// OnAssignmentDecided records an approve/reject decision and re-evaluates
	// the expense's current step.
	OnAssignmentDecided(ctx context.Context, req DecisionRequest) (*entity.Expense, error)

	// OnAdminOverride forces a PENDING expense to APPROVED or REJECTED and closes
	// its open assignments. Rules are not evaluated.
	OnAdminOverride(ctx context.Context, req OverrideRequest) (*entity.Expense, error)

	// Evaluate re-runs evaluation for an expense. It is idempotent.
	Evaluate(ctx context.Context, expenseID int64) (*entity.Expense, error)
}

// DecisionRequest is an approver's (or admin's) decision on one assignment
type DecisionRequest struct {
	AssignmentID int64
	Decision     string // APPROVED or REJECTED
	Comment      string
	ActorID      int64
	ActorIsAdmin bool
}

// OverrideRequest is an admin's forced final decision on an expense
type OverrideRequest struct {
	ExpenseID int64
	Decision  string // APPROVED or REJECTED
	Comment   string
	ActorID   int64
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
