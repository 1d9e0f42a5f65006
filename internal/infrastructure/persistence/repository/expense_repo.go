package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

const expenseColumns = `id, employee_id, company_id, amount_original, currency_original,
	amount_company, currency_company, category, description, expense_date,
	status, flow_id, step_order, version, created_at, updated_at`

// ExpenseRepository implements port.ExpenseRepository
type ExpenseRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *sqlite.DB, logger *zap.Logger) port.ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new expense. Amounts are stored as decimal text.
func (r *ExpenseRepository) Create(ctx context.Context, expense *entity.Expense) error {
	now := utcNow()
	if expense.Status == "" {
		expense.Status = entity.ExpenseStatusPending
	}
	expense.CreatedAt = now
	expense.UpdatedAt = now

	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO expenses (
			employee_id, company_id, amount_original, currency_original,
			amount_company, currency_company, category, description, expense_date,
			status, flow_id, step_order, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.EmployeeID,
		expense.CompanyID,
		expense.AmountOriginal.String(),
		expense.CurrencyOriginal,
		expense.AmountCompany.String(),
		expense.CurrencyCompany,
		expense.Category,
		nullString(expense.Description),
		expense.ExpenseDate.UTC(),
		expense.Status,
		nullInt64(expense.FlowID),
		expense.StepOrder,
		expense.Version,
		expense.CreatedAt,
		expense.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create expense", zap.Int64("employee_id", expense.EmployeeID), zap.Error(err))
		return fmt.Errorf("failed to create expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	expense.ID = id
	return nil
}

// GetByID retrieves an expense by ID
func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	expense, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get expense", zap.Int64("expense_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return expense, nil
}

// ListByEmployee retrieves an employee's expenses, newest first
func (r *ExpenseRepository) ListByEmployee(ctx context.Context, employeeID int64) ([]*entity.Expense, error) {
	return r.list(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE employee_id = ? ORDER BY id DESC`, employeeID)
}

// ListByCompany retrieves every expense of a company, oldest first
func (r *ExpenseRepository) ListByCompany(ctx context.Context, companyID int64) ([]*entity.Expense, error) {
	return r.list(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE company_id = ? ORDER BY id`, companyID)
}

// ListByManager retrieves the expenses of the manager's direct reports, newest first
func (r *ExpenseRepository) ListByManager(ctx context.Context, managerID int64) ([]*entity.Expense, error) {
	return r.list(ctx, `SELECT `+expenseColumns+` FROM expenses
		WHERE employee_id IN (SELECT id FROM users WHERE manager_id = ?)
		ORDER BY id DESC`, managerID)
}

// UpdateProgress implements the conditional write used by the workflow engine
func (r *ExpenseRepository) UpdateProgress(ctx context.Context, expense *entity.Expense, status string, stepOrder int) error {
	now := utcNow()

	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		UPDATE expenses
		SET status = ?, step_order = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND status = ? AND step_order = ? AND version = ?`,
		status, stepOrder, now,
		expense.ID, expense.Status, expense.StepOrder, expense.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update expense progress",
			zap.Int64("expense_id", expense.ID),
			zap.String("status", status),
			zap.Int("step_order", stepOrder),
			zap.Error(err))
		return fmt.Errorf("failed to update expense progress: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		r.logger.Warn("Expense changed concurrently",
			zap.Int64("expense_id", expense.ID),
			zap.String("expected_status", expense.Status),
			zap.Int("expected_step", expense.StepOrder),
			zap.Int64("expected_version", expense.Version))
		return fmt.Errorf("%w: expense %d", workflow.ErrConcurrentUpdate, expense.ID)
	}

	expense.Status = status
	expense.StepOrder = stepOrder
	expense.Version++
	expense.UpdatedAt = now
	return nil
}

func (r *ExpenseRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Expense, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list expenses", zap.Error(err))
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*entity.Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	return expenses, rows.Err()
}

func scanExpense(row rowScanner) (*entity.Expense, error) {
	var expense entity.Expense
	var description sql.NullString
	var flowID sql.NullInt64

	if err := row.Scan(
		&expense.ID,
		&expense.EmployeeID,
		&expense.CompanyID,
		&expense.AmountOriginal,
		&expense.CurrencyOriginal,
		&expense.AmountCompany,
		&expense.CurrencyCompany,
		&expense.Category,
		&description,
		&expense.ExpenseDate,
		&expense.Status,
		&flowID,
		&expense.StepOrder,
		&expense.Version,
		&expense.CreatedAt,
		&expense.UpdatedAt,
	); err != nil {
		return nil, err
	}

	expense.Description = description.String
	expense.FlowID = int64Ptr(flowID)
	return &expense, nil
}

// Verify interface compliance
var _ port.ExpenseRepository = (*ExpenseRepository)(nil)
