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

// CompanyRepository implements port.CompanyRepository
type CompanyRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(db *sqlite.DB, logger *zap.Logger) port.CompanyRepository {
	return &CompanyRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new company
func (r *CompanyRepository) Create(ctx context.Context, company *entity.Company) error {
	if company.CreatedAt.IsZero() {
		company.CreatedAt = utcNow()
	}

	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`INSERT INTO companies (name, currency_code, active_flow_id, created_at) VALUES (?, ?, ?, ?)`,
		company.Name,
		company.CurrencyCode,
		nullInt64(company.ActiveFlowID),
		company.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create company", zap.String("name", company.Name), zap.Error(err))
		return fmt.Errorf("failed to create company: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	company.ID = id
	return nil
}

// GetByID retrieves a company by ID
func (r *CompanyRepository) GetByID(ctx context.Context, id int64) (*entity.Company, error) {
	var company entity.Company
	var activeFlowID sql.NullInt64

	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT id, name, currency_code, active_flow_id, created_at FROM companies WHERE id = ?`, id,
	).Scan(&company.ID, &company.Name, &company.CurrencyCode, &activeFlowID, &company.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get company", zap.Int64("company_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get company: %w", err)
	}

	company.ActiveFlowID = int64Ptr(activeFlowID)
	return &company, nil
}

// SetActiveFlow points the company at flowID for new submissions
func (r *CompanyRepository) SetActiveFlow(ctx context.Context, companyID, flowID int64) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE companies SET active_flow_id = ? WHERE id = ?`, flowID, companyID)
	if err != nil {
		r.logger.Error("Failed to set active flow",
			zap.Int64("company_id", companyID),
			zap.Int64("flow_id", flowID),
			zap.Error(err))
		return fmt.Errorf("failed to set active flow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: company %d", workflow.ErrNotFound, companyID)
	}
	return nil
}

// Verify interface compliance
var _ port.CompanyRepository = (*CompanyRepository)(nil)
