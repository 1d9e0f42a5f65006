package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// ApprovalService is the approver and admin side of the workflow
type ApprovalService interface {
	// Decide approves or rejects an assignment. Approvers may decide only their
	// own assignments; admins may decide any assignment in their company.
	Decide(ctx context.Context, actor *entity.User, assignmentID int64, decision, comment string) (*entity.Expense, error)

	// Override forces a final decision on a PENDING expense. Admin only.
	Override(ctx context.Context, actor *entity.User, expenseID int64, decision, comment string) (*entity.Expense, error)

	// Reevaluate re-runs evaluation of an expense's current step, or starts an
	// expense that never left step 0. Admin only.
	Reevaluate(ctx context.Context, actor *entity.User, expenseID int64) (*entity.Expense, error)

	// ListPending lists open assignments: the actor's own, or the whole company's for admins
	ListPending(ctx context.Context, actor *entity.User) ([]*entity.PendingApproval, error)

	// History returns the audit trail of one expense
	History(ctx context.Context, actor *entity.User, expenseID int64) ([]*entity.ApprovalHistory, error)

	// CompanyHistory returns the audit trail of every expense in the actor's company. Admin only.
	CompanyHistory(ctx context.Context, actor *entity.User) ([]*entity.ApprovalHistory, error)
}

type approvalServiceImpl struct {
	expenseRepo    port.ExpenseRepository
	assignmentRepo port.AssignmentRepository
	historyRepo    port.HistoryRepository
	engine         workflow.Engine
	logger         Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	expenseRepo port.ExpenseRepository,
	assignmentRepo port.AssignmentRepository,
	historyRepo port.HistoryRepository,
	engine workflow.Engine,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		expenseRepo:    expenseRepo,
		assignmentRepo: assignmentRepo,
		historyRepo:    historyRepo,
		engine:         engine,
		logger:         logger,
	}
}

func (s *approvalServiceImpl) Decide(ctx context.Context, actor *entity.User, assignmentID int64, decision, comment string) (*entity.Expense, error) {
	decision = strings.ToUpper(strings.TrimSpace(decision))

	assignment, err := s.assignmentRepo.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	if assignment == nil {
		return nil, fmt.Errorf("%w: assignment %d", domainwf.ErrNotFound, assignmentID)
	}

	if actor.IsAdmin() {
		if _, err := s.companyExpense(ctx, actor, assignment.ExpenseID); err != nil {
			return nil, err
		}
	} else if assignment.ApproverID != actor.ID {
		return nil, fmt.Errorf("%w: assignment %d", domainwf.ErrNotFound, assignmentID)
	}

	expense, err := s.engine.OnAssignmentDecided(ctx, workflow.DecisionRequest{
		AssignmentID: assignmentID,
		Decision:     decision,
		Comment:      comment,
		ActorID:      actor.ID,
		ActorIsAdmin: actor.IsAdmin(),
	})
	if err != nil {
		s.logger.Warn("Decision refused",
			"error", err,
			"assignment_id", assignmentID,
			"actor_id", actor.ID,
			"decision", decision,
		)
		return nil, err
	}
	return expense, nil
}

func (s *approvalServiceImpl) Override(ctx context.Context, actor *entity.User, expenseID int64, decision, comment string) (*entity.Expense, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can override", ErrForbidden)
	}
	if _, err := s.companyExpense(ctx, actor, expenseID); err != nil {
		return nil, err
	}

	expense, err := s.engine.OnAdminOverride(ctx, workflow.OverrideRequest{
		ExpenseID: expenseID,
		Decision:  strings.ToUpper(strings.TrimSpace(decision)),
		Comment:   comment,
		ActorID:   actor.ID,
	})
	if err != nil {
		s.logger.Warn("Override refused", "error", err, "expense_id", expenseID, "actor_id", actor.ID)
		return nil, err
	}
	return expense, nil
}

func (s *approvalServiceImpl) Reevaluate(ctx context.Context, actor *entity.User, expenseID int64) (*entity.Expense, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can re-evaluate", ErrForbidden)
	}
	before, err := s.companyExpense(ctx, actor, expenseID)
	if err != nil {
		return nil, err
	}

	expense, err := s.engine.Evaluate(ctx, expenseID)
	if err != nil {
		s.logger.Warn("Re-evaluation failed", "error", err, "expense_id", expenseID, "actor_id", actor.ID)
		return nil, err
	}
	if expense.Status != before.Status || expense.StepOrder != before.StepOrder {
		s.logger.Info("Expense re-evaluated",
			"expense_id", expenseID,
			"actor_id", actor.ID,
			"status", expense.Status,
			"step_order", expense.StepOrder,
		)
	}
	return expense, nil
}

func (s *approvalServiceImpl) ListPending(ctx context.Context, actor *entity.User) ([]*entity.PendingApproval, error) {
	var pending []*entity.PendingApproval
	var err error
	if actor.IsAdmin() {
		pending, err = s.assignmentRepo.ListPendingByCompany(ctx, actor.CompanyID)
	} else {
		pending, err = s.assignmentRepo.ListPendingByApprover(ctx, actor.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	return pending, nil
}

func (s *approvalServiceImpl) History(ctx context.Context, actor *entity.User, expenseID int64) ([]*entity.ApprovalHistory, error) {
	expense, err := s.companyExpense(ctx, actor, expenseID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && expense.EmployeeID != actor.ID {
		assignments, err := s.assignmentRepo.ListByExpense(ctx, expenseID)
		if err != nil {
			return nil, fmt.Errorf("list assignments: %w", err)
		}
		if !canView(actor, expense, assignments) {
			return nil, fmt.Errorf("%w: expense %d", domainwf.ErrNotFound, expenseID)
		}
	}

	history, err := s.historyRepo.ListByExpense(ctx, expenseID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return history, nil
}

func (s *approvalServiceImpl) CompanyHistory(ctx context.Context, actor *entity.User) ([]*entity.ApprovalHistory, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can read company history", ErrForbidden)
	}
	history, err := s.historyRepo.ListByCompany(ctx, actor.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return history, nil
}

// companyExpense loads an expense of the actor's company
func (s *approvalServiceImpl) companyExpense(ctx context.Context, actor *entity.User, expenseID int64) (*entity.Expense, error) {
	expense, err := s.expenseRepo.GetByID(ctx, expenseID)
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	if expense == nil || expense.CompanyID != actor.CompanyID {
		return nil, fmt.Errorf("%w: expense %d", domainwf.ErrNotFound, expenseID)
	}
	return expense, nil
}
