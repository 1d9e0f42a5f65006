package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// SubmitExpenseInput is an employee's new claim
type SubmitExpenseInput struct {
	EmployeeID  int64
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Description string
	ExpenseDate time.Time
	// AmountCompany is the amount in the company currency. It may be omitted
	// when Currency already is the company currency.
	AmountCompany *decimal.Decimal
}

// ExpenseService manages expenses from the submitter's side
type ExpenseService interface {
	Submit(ctx context.Context, in SubmitExpenseInput) (*entity.Expense, error)
	Get(ctx context.Context, actor *entity.User, expenseID int64) (*entity.ExpenseDetail, error)
	ListMine(ctx context.Context, actor *entity.User) ([]*entity.Expense, error)

	// ListTeam returns the expenses of the actor's direct reports. Managers and admins only.
	ListTeam(ctx context.Context, actor *entity.User) ([]*entity.Expense, error)

	// ListCompany returns every expense of the actor's company. Admin only.
	ListCompany(ctx context.Context, actor *entity.User) ([]*entity.Expense, error)

	// Activity returns the actor's expenses, their decisions and their manager
	Activity(ctx context.Context, actor *entity.User) (*entity.Activity, error)
}

// activityLimit caps the decisions returned by Activity
const activityLimit = 100

type expenseServiceImpl struct {
	companyRepo    port.CompanyRepository
	userRepo       port.UserRepository
	expenseRepo    port.ExpenseRepository
	assignmentRepo port.AssignmentRepository
	engine         workflow.Engine
	logger         Logger
	now            func() time.Time
}

// NewExpenseService creates a new ExpenseService
func NewExpenseService(
	companyRepo port.CompanyRepository,
	userRepo port.UserRepository,
	expenseRepo port.ExpenseRepository,
	assignmentRepo port.AssignmentRepository,
	engine workflow.Engine,
	logger Logger,
) ExpenseService {
	return &expenseServiceImpl{
		companyRepo:    companyRepo,
		userRepo:       userRepo,
		expenseRepo:    expenseRepo,
		assignmentRepo: assignmentRepo,
		engine:         engine,
		logger:         logger,
		now:            time.Now,
	}
}

// Submit stores the expense on the company's active flow and starts approval.
// An expense submitted while the company has no active flow stays PENDING.
func (s *expenseServiceImpl) Submit(ctx context.Context, in SubmitExpenseInput) (*entity.Expense, error) {
	in.Category = utils.SanitizeString(in.Category)
	in.Description = utils.SanitizeString(in.Description)

	currency, err := utils.NormalizeCurrency(in.Currency)
	if err != nil {
		return nil, validationError("%v", err)
	}
	in.Currency = currency

	if err := s.validate(in); err != nil {
		return nil, err
	}

	employee, err := s.userRepo.GetByID(ctx, in.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	if employee == nil {
		return nil, fmt.Errorf("%w: user %d", domainwf.ErrNotFound, in.EmployeeID)
	}

	company, err := s.companyRepo.GetByID(ctx, employee.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("get company: %w", err)
	}
	if company == nil {
		return nil, fmt.Errorf("%w: company %d", domainwf.ErrNotFound, employee.CompanyID)
	}

	amountCompany := in.Amount
	switch {
	case in.AmountCompany != nil:
		if !in.AmountCompany.IsPositive() {
			return nil, validationError("amount_company must be positive")
		}
		amountCompany = *in.AmountCompany
	case in.Currency != company.CurrencyCode:
		return nil, validationError("amount_company is required when currency %s differs from company currency %s",
			in.Currency, company.CurrencyCode)
	}

	expense := &entity.Expense{
		EmployeeID:       employee.ID,
		CompanyID:        company.ID,
		AmountOriginal:   in.Amount,
		CurrencyOriginal: in.Currency,
		AmountCompany:    amountCompany,
		CurrencyCompany:  company.CurrencyCode,
		Category:         in.Category,
		Description:      in.Description,
		ExpenseDate:      in.ExpenseDate,
		Status:           entity.ExpenseStatusPending,
		FlowID:           company.ActiveFlowID,
	}

	if expense.FlowID == nil {
		s.logger.Warn("Company has no active approval flow", "company_id", company.ID, "employee_id", employee.ID)
	}

	started, err := s.engine.Submit(ctx, expense)
	if err != nil {
		s.logger.Error("Failed to submit expense", "error", err, "employee_id", employee.ID)
		return nil, fmt.Errorf("submit expense: %w", err)
	}

	s.logger.Info("Expense submitted",
		"expense_id", started.ID,
		"employee_id", started.EmployeeID,
		"status", started.Status,
		"step_order", started.StepOrder,
	)
	return started, nil
}

func (s *expenseServiceImpl) validate(in SubmitExpenseInput) error {
	if !in.Amount.IsPositive() {
		return validationError("amount must be positive")
	}
	if in.Category == "" {
		return validationError("category is required")
	}
	if in.ExpenseDate.IsZero() {
		return validationError("expense_date is required")
	}
	if in.ExpenseDate.After(s.now().Add(24 * time.Hour)) {
		return validationError("expense_date cannot be in the future")
	}
	return nil
}

// Get returns the expense with its assignments to its submitter, an approver
// assigned to it or an admin of its company
func (s *expenseServiceImpl) Get(ctx context.Context, actor *entity.User, expenseID int64) (*entity.ExpenseDetail, error) {
	expense, err := s.expenseRepo.GetByID(ctx, expenseID)
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	if expense == nil || expense.CompanyID != actor.CompanyID {
		return nil, fmt.Errorf("%w: expense %d", domainwf.ErrNotFound, expenseID)
	}

	assignments, err := s.assignmentRepo.ListByExpense(ctx, expenseID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}

	if !canView(actor, expense, assignments) {
		return nil, fmt.Errorf("%w: expense %d", domainwf.ErrNotFound, expenseID)
	}

	return &entity.ExpenseDetail{Expense: expense, Assignments: assignments}, nil
}

// ListMine returns the actor's own expenses, newest first
func (s *expenseServiceImpl) ListMine(ctx context.Context, actor *entity.User) ([]*entity.Expense, error) {
	expenses, err := s.expenseRepo.ListByEmployee(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

func (s *expenseServiceImpl) ListTeam(ctx context.Context, actor *entity.User) ([]*entity.Expense, error) {
	if actor.Role != entity.RoleManager && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only managers can list team expenses", ErrForbidden)
	}
	expenses, err := s.expenseRepo.ListByManager(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list team expenses: %w", err)
	}
	return expenses, nil
}

func (s *expenseServiceImpl) ListCompany(ctx context.Context, actor *entity.User) ([]*entity.Expense, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can list company expenses", ErrForbidden)
	}
	expenses, err := s.expenseRepo.ListByCompany(ctx, actor.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("list company expenses: %w", err)
	}
	return expenses, nil
}

func (s *expenseServiceImpl) Activity(ctx context.Context, actor *entity.User) (*entity.Activity, error) {
	expenses, err := s.expenseRepo.ListByEmployee(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	decisions, err := s.assignmentRepo.ListDecidedByApprover(ctx, actor.ID, activityLimit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}

	activity := &entity.Activity{
		Expenses:  nonNilSlice(expenses),
		Decisions: nonNilSlice(decisions),
	}
	if actor.ManagerID != nil {
		manager, err := s.userRepo.GetByID(ctx, *actor.ManagerID)
		if err != nil {
			return nil, fmt.Errorf("get manager: %w", err)
		}
		activity.Manager = manager
	}
	return activity, nil
}

func nonNilSlice[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func canView(actor *entity.User, expense *entity.Expense, assignments []*entity.ApprovalAssignment) bool {
	if actor.IsAdmin() || expense.EmployeeID == actor.ID {
		return true
	}
	for _, a := range assignments {
		if a.ApproverID == actor.ID {
			return true
		}
	}
	return false
}
