package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// AssignmentFactory materialises the pending assignments of a step
type AssignmentFactory interface {
	// CreateForStep creates one PENDING assignment per resolved approver and
	// returns every assignment of (expense, step). Repeated calls do not create
	// duplicates.
	CreateForStep(ctx context.Context, expense *entity.Expense, step *entity.ApprovalStep) ([]*entity.ApprovalAssignment, error)
}

type assignmentFactory struct {
	resolver       Resolver
	assignmentRepo port.AssignmentRepository
	logger         Logger
}

// NewAssignmentFactory creates an assignment factory
func NewAssignmentFactory(resolver Resolver, assignmentRepo port.AssignmentRepository, logger Logger) AssignmentFactory {
	if logger == nil {
		logger = nopLogger{}
	}
	return &assignmentFactory{
		resolver:       resolver,
		assignmentRepo: assignmentRepo,
		logger:         logger,
	}
}

func (f *assignmentFactory) CreateForStep(ctx context.Context, expense *entity.Expense, step *entity.ApprovalStep) ([]*entity.ApprovalAssignment, error) {
	approverIDs, err := f.resolver.Resolve(ctx, expense.EmployeeID, expense.CompanyID, step.Approvers)
	if err != nil {
		return nil, fmt.Errorf("resolve approvers for step %d: %w", step.Order, err)
	}

	if len(approverIDs) == 0 {
		f.logger.Warn("Step resolved to no approvers",
			"expense_id", expense.ID,
			"step_order", step.Order,
			"employee_id", expense.EmployeeID,
		)
	} else {
		rows := make([]*entity.ApprovalAssignment, 0, len(approverIDs))
		for _, id := range approverIDs {
			rows = append(rows, &entity.ApprovalAssignment{
				ExpenseID:  expense.ID,
				StepID:     step.ID,
				ApproverID: id,
				Status:     entity.AssignmentStatusPending,
			})
		}
		if err := f.assignmentRepo.CreateBatch(ctx, rows); err != nil {
			return nil, fmt.Errorf("create assignments for step %d: %w", step.Order, err)
		}
	}

	assignments, err := f.assignmentRepo.ListByExpenseAndStep(ctx, expense.ID, step.ID)
	if err != nil {
		return nil, fmt.Errorf("list assignments for step %d: %w", step.Order, err)
	}

	f.logger.Info("Assignments created",
		"expense_id", expense.ID,
		"step_order", step.Order,
		"count", len(assignments),
	)
	return assignments, nil
}
