package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

const assignmentColumns = `id, expense_id, step_id, approver_id, status, comment, decided_at, created_at`

// pendingQuery joins open assignments of the expense's current step with the
// expense and both users' emails
const pendingQuery = `
	SELECT a.id, a.expense_id, a.step_id, a.approver_id, a.status, a.comment, a.decided_at, a.created_at,
		e.id, e.employee_id, e.company_id, e.amount_original, e.currency_original,
		e.amount_company, e.currency_company, e.category, e.description, e.expense_date,
		e.status, e.flow_id, e.step_order, e.version, e.created_at, e.updated_at,
		emp.email, appr.email
	FROM approval_assignments a
	JOIN expenses e ON e.id = a.expense_id
	JOIN approval_steps s ON s.id = a.step_id AND s.step_order = e.step_order
	JOIN users emp ON emp.id = e.employee_id
	JOIN users appr ON appr.id = a.approver_id
	WHERE a.status = 'PENDING' AND e.status = 'PENDING'`

// decidedQuery joins closed assignments with their expense and both users' emails
const decidedQuery = `
	SELECT a.id, a.expense_id, a.step_id, a.approver_id, a.status, a.comment, a.decided_at, a.created_at,
		e.id, e.employee_id, e.company_id, e.amount_original, e.currency_original,
		e.amount_company, e.currency_company, e.category, e.description, e.expense_date,
		e.status, e.flow_id, e.step_order, e.version, e.created_at, e.updated_at,
		emp.email, appr.email
	FROM approval_assignments a
	JOIN expenses e ON e.id = a.expense_id
	JOIN users emp ON emp.id = e.employee_id
	JOIN users appr ON appr.id = a.approver_id
	WHERE a.status <> 'PENDING'`

// AssignmentRepository implements port.AssignmentRepository
type AssignmentRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *sqlite.DB, logger *zap.Logger) port.AssignmentRepository {
	return &AssignmentRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts assignments, skipping rows that already exist for the
// same (expense, step, approver)
func (r *AssignmentRepository) CreateBatch(ctx context.Context, assignments []*entity.ApprovalAssignment) error {
	if len(assignments) == 0 {
		return nil
	}

	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.Executor(txCtx)
		now := utcNow()

		for _, a := range assignments {
			if a.Status == "" {
				a.Status = entity.AssignmentStatusPending
			}
			if a.CreatedAt.IsZero() {
				a.CreatedAt = now
			}

			result, err := exec.ExecContext(txCtx, `
				INSERT INTO approval_assignments (expense_id, step_id, approver_id, status, created_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (expense_id, step_id, approver_id) DO NOTHING`,
				a.ExpenseID, a.StepID, a.ApproverID, a.Status, a.CreatedAt,
			)
			if err != nil {
				r.logger.Error("Failed to create assignment",
					zap.Int64("expense_id", a.ExpenseID),
					zap.Int64("step_id", a.StepID),
					zap.Int64("approver_id", a.ApproverID),
					zap.Error(err))
				return fmt.Errorf("failed to create assignment: %w", err)
			}

			rows, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if rows == 0 {
				r.logger.Debug("Assignment already exists",
					zap.Int64("expense_id", a.ExpenseID),
					zap.Int64("step_id", a.StepID),
					zap.Int64("approver_id", a.ApproverID))
				continue
			}

			if a.ID, err = result.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves an assignment by ID
func (r *AssignmentRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalAssignment, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM approval_assignments WHERE id = ?`, id)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get assignment", zap.Int64("assignment_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// ListByExpense retrieves every assignment of an expense in creation order
func (r *AssignmentRepository) ListByExpense(ctx context.Context, expenseID int64) ([]*entity.ApprovalAssignment, error) {
	return r.list(ctx,
		`SELECT `+assignmentColumns+` FROM approval_assignments WHERE expense_id = ? ORDER BY id`,
		expenseID)
}

// ListByExpenseAndStep retrieves the assignments of one step of an expense
func (r *AssignmentRepository) ListByExpenseAndStep(ctx context.Context, expenseID, stepID int64) ([]*entity.ApprovalAssignment, error) {
	return r.list(ctx,
		`SELECT `+assignmentColumns+` FROM approval_assignments WHERE expense_id = ? AND step_id = ? ORDER BY id`,
		expenseID, stepID)
}

// Decide moves a PENDING assignment to status
func (r *AssignmentRepository) Decide(ctx context.Context, id int64, status, comment string, decidedAt time.Time) error {
	exec := r.db.Executor(ctx)

	result, err := exec.ExecContext(ctx, `
		UPDATE approval_assignments SET status = ?, comment = ?, decided_at = ?
		WHERE id = ? AND status = 'PENDING'`,
		status, nullString(comment), decidedAt.UTC(), id,
	)
	if err != nil {
		r.logger.Error("Failed to decide assignment", zap.Int64("assignment_id", id), zap.Error(err))
		return fmt.Errorf("failed to decide assignment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	var current string
	err = exec.QueryRowContext(ctx, `SELECT status FROM approval_assignments WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: assignment %d", workflow.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to get assignment status: %w", err)
	}
	return fmt.Errorf("%w: assignment %d is %s", workflow.ErrAlreadyDecided, id, current)
}

// OverridePending closes every PENDING assignment of the expense
func (r *AssignmentRepository) OverridePending(ctx context.Context, expenseID int64, status, comment string, decidedAt time.Time) (int64, error) {
	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		UPDATE approval_assignments SET status = ?, comment = ?, decided_at = ?
		WHERE expense_id = ? AND status = 'PENDING'`,
		status, nullString(comment), decidedAt.UTC(), expenseID,
	)
	if err != nil {
		r.logger.Error("Failed to override assignments", zap.Int64("expense_id", expenseID), zap.Error(err))
		return 0, fmt.Errorf("failed to override assignments: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// ListPendingByApprover lists the actionable assignments of one approver
func (r *AssignmentRepository) ListPendingByApprover(ctx context.Context, approverID int64) ([]*entity.PendingApproval, error) {
	return r.listPending(ctx, pendingQuery+` AND a.approver_id = ? ORDER BY a.created_at, a.id`, approverID)
}

// ListPendingByCompany lists every actionable assignment in a company
func (r *AssignmentRepository) ListPendingByCompany(ctx context.Context, companyID int64) ([]*entity.PendingApproval, error) {
	return r.listPending(ctx, pendingQuery+` AND e.company_id = ? ORDER BY a.created_at, a.id`, companyID)
}

// ListPendingCreatedBefore lists actionable assignments older than t, oldest first
func (r *AssignmentRepository) ListPendingCreatedBefore(ctx context.Context, t time.Time, limit int) ([]*entity.PendingApproval, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.listPending(ctx, pendingQuery+` AND a.created_at < ? ORDER BY a.created_at, a.id LIMIT ?`, t.UTC(), limit)
}

// ListDecidedByApprover lists what an approver has decided, most recent first
func (r *AssignmentRepository) ListDecidedByApprover(ctx context.Context, approverID int64, limit int) ([]*entity.PendingApproval, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.listPending(ctx, decidedQuery+` AND a.approver_id = ? ORDER BY a.decided_at DESC, a.id DESC LIMIT ?`, approverID, limit)
}

func (r *AssignmentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalAssignment, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list assignments", zap.Error(err))
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*entity.ApprovalAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func (r *AssignmentRepository) listPending(ctx context.Context, query string, args ...interface{}) ([]*entity.PendingApproval, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list pending approvals", zap.Error(err))
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	defer rows.Close()

	var pending []*entity.PendingApproval
	for rows.Next() {
		var a entity.ApprovalAssignment
		var e entity.Expense
		var comment, description sql.NullString
		var decidedAt sql.NullTime
		var flowID sql.NullInt64
		var p entity.PendingApproval

		if err := rows.Scan(
			&a.ID, &a.ExpenseID, &a.StepID, &a.ApproverID, &a.Status, &comment, &decidedAt, &a.CreatedAt,
			&e.ID, &e.EmployeeID, &e.CompanyID, &e.AmountOriginal, &e.CurrencyOriginal,
			&e.AmountCompany, &e.CurrencyCompany, &e.Category, &description, &e.ExpenseDate,
			&e.Status, &flowID, &e.StepOrder, &e.Version, &e.CreatedAt, &e.UpdatedAt,
			&p.EmployeeEmail, &p.ApproverEmail,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pending approval: %w", err)
		}

		a.Comment = comment.String
		a.DecidedAt = timePtr(decidedAt)
		e.Description = description.String
		e.FlowID = int64Ptr(flowID)
		p.Assignment = &a
		p.Expense = &e
		pending = append(pending, &p)
	}
	return pending, rows.Err()
}

func scanAssignment(row rowScanner) (*entity.ApprovalAssignment, error) {
	var a entity.ApprovalAssignment
	var comment sql.NullString
	var decidedAt sql.NullTime

	if err := row.Scan(
		&a.ID,
		&a.ExpenseID,
		&a.StepID,
		&a.ApproverID,
		&a.Status,
		&comment,
		&decidedAt,
		&a.CreatedAt,
	); err != nil {
		return nil, err
	}

	a.Comment = comment.String
	a.DecidedAt = timePtr(decidedAt)
	return &a, nil
}

// Verify interface compliance
var _ port.AssignmentRepository = (*AssignmentRepository)(nil)
