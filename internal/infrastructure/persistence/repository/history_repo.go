package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqlite.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, history *entity.ApprovalHistory) error {
	if history.Timestamp.IsZero() {
		history.Timestamp = utcNow()
	}

	query := `
		INSERT INTO approval_history (
			expense_id, actor_id, action, previous_status, new_status,
			previous_step, new_step, comment, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		history.ExpenseID,
		nullInt64(history.ActorID),
		history.Action,
		history.PreviousStatus,
		history.NewStatus,
		history.PreviousStep,
		history.NewStep,
		nullString(history.Comment),
		history.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create history record",
			zap.Int64("expense_id", history.ExpenseID),
			zap.String("action", history.Action),
			zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	history.ID = id
	return nil
}

// ListByExpense retrieves all history records for an expense in the order written
func (r *HistoryRepository) ListByExpense(ctx context.Context, expenseID int64) ([]*entity.ApprovalHistory, error) {
	return r.list(ctx, `
		SELECT id, expense_id, actor_id, action, previous_status, new_status,
			previous_step, new_step, comment, timestamp
		FROM approval_history
		WHERE expense_id = ?
		ORDER BY id ASC`, expenseID)
}

// ListByCompany retrieves the history of every expense of a company
func (r *HistoryRepository) ListByCompany(ctx context.Context, companyID int64) ([]*entity.ApprovalHistory, error) {
	return r.list(ctx, `
		SELECT h.id, h.expense_id, h.actor_id, h.action, h.previous_status, h.new_status,
			h.previous_step, h.new_step, h.comment, h.timestamp
		FROM approval_history h
		JOIN expenses e ON e.id = h.expense_id
		WHERE e.company_id = ?
		ORDER BY h.id ASC`, companyID)
}

func (r *HistoryRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalHistory, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list history", zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.ApprovalHistory
	for rows.Next() {
		var record entity.ApprovalHistory
		var actorID sql.NullInt64
		var comment sql.NullString
		err := rows.Scan(
			&record.ID,
			&record.ExpenseID,
			&actorID,
			&record.Action,
			&record.PreviousStatus,
			&record.NewStatus,
			&record.PreviousStep,
			&record.NewStep,
			&comment,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		record.ActorID = int64Ptr(actorID)
		record.Comment = comment.String
		records = append(records, &record)
	}

	return records, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
