package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ErrDuplicateEmail is returned when a user's email is already registered
var ErrDuplicateEmail = errors.New("email already registered")

// CompanyRepository defines persistence operations for Company
type CompanyRepository interface {
	Create(ctx context.Context, company *entity.Company) error
	GetByID(ctx context.Context, id int64) (*entity.Company, error)
	SetActiveFlow(ctx context.Context, companyID, flowID int64) error
}

// UserRepository defines persistence operations for User
type UserRepository interface {
	// Create inserts the user. A taken email yields ErrDuplicateEmail.
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*entity.User, error)
	ListByCompany(ctx context.Context, companyID int64) ([]*entity.User, error)

	// SetManager sets or clears a user's manager. An unknown user yields workflow.ErrNotFound.
	SetManager(ctx context.Context, userID int64, managerID *int64) error
	// UpdateRole changes a user's role. An unknown user yields workflow.ErrNotFound.
	UpdateRole(ctx context.Context, userID int64, role string) error
}

// FlowRepository defines persistence operations for ApprovalFlow with its steps and rules
type FlowRepository interface {
	// Create inserts the flow, its steps and its rules and assigns their IDs
	Create(ctx context.Context, flow *entity.ApprovalFlow) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalFlow, error)
	ListByCompany(ctx context.Context, companyID int64) ([]*entity.ApprovalFlow, error)
}

// ExpenseRepository defines persistence operations for Expense
type ExpenseRepository interface {
	Create(ctx context.Context, expense *entity.Expense) error
	GetByID(ctx context.Context, id int64) (*entity.Expense, error)
	ListByEmployee(ctx context.Context, employeeID int64) ([]*entity.Expense, error)
	ListByCompany(ctx context.Context, companyID int64) ([]*entity.Expense, error)
	// ListByManager returns the expenses of the manager's direct reports
	ListByManager(ctx context.Context, managerID int64) ([]*entity.Expense, error)

	// UpdateProgress writes status and stepOrder only if the stored row still has the
	// status, step order and version held by expense. On success expense is updated
	// in place; otherwise workflow.ErrConcurrentUpdate is returned.
	UpdateProgress(ctx context.Context, expense *entity.Expense, status string, stepOrder int) error
}

// AssignmentRepository defines persistence operations for ApprovalAssignment
type AssignmentRepository interface {
	// CreateBatch inserts assignments, skipping any (expense, step, approver) that
	// already exists. IDs are set on inserted rows only.
	CreateBatch(ctx context.Context, assignments []*entity.ApprovalAssignment) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalAssignment, error)
	ListByExpense(ctx context.Context, expenseID int64) ([]*entity.ApprovalAssignment, error)
	ListByExpenseAndStep(ctx context.Context, expenseID, stepID int64) ([]*entity.ApprovalAssignment, error)

	// Decide moves a PENDING assignment to status. A non-pending row yields
	// workflow.ErrAlreadyDecided.
	Decide(ctx context.Context, id int64, status, comment string, decidedAt time.Time) error

	// OverridePending closes every PENDING assignment of the expense and returns how many changed
	OverridePending(ctx context.Context, expenseID int64, status, comment string, decidedAt time.Time) (int64, error)

	ListPendingByApprover(ctx context.Context, approverID int64) ([]*entity.PendingApproval, error)
	ListPendingByCompany(ctx context.Context, companyID int64) ([]*entity.PendingApproval, error)

	// ListDecidedByApprover returns the approver's decided assignments, most recent first
	ListDecidedByApprover(ctx context.Context, approverID int64, limit int) ([]*entity.PendingApproval, error)

	// ListPendingCreatedBefore returns open assignments of PENDING expenses created before t
	ListPendingCreatedBefore(ctx context.Context, t time.Time, limit int) ([]*entity.PendingApproval, error)
}

// HistoryRepository defines persistence operations for ApprovalHistory
type HistoryRepository interface {
	Create(ctx context.Context, history *entity.ApprovalHistory) error
	ListByExpense(ctx context.Context, expenseID int64) ([]*entity.ApprovalHistory, error)
	ListByCompany(ctx context.Context, companyID int64) ([]*entity.ApprovalHistory, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
