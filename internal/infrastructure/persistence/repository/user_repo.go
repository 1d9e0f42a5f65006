package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

const userColumns = `id, company_id, email, name, role, manager_id, lark_open_id, created_at`

// UserRepository implements port.UserRepository and port.IdentityProvider
type UserRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlite.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = utcNow()
	}
	user.Role = strings.ToUpper(user.Role)

	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO users (company_id, email, name, role, manager_id, lark_open_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.CompanyID,
		user.Email,
		user.Name,
		user.Role,
		nullInt64(user.ManagerID),
		nullString(user.LarkOpenID),
		user.CreatedAt,
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", port.ErrDuplicateEmail, user.Email)
		}
		r.logger.Error("Failed to create user", zap.String("email", user.Email), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	user.ID = id
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.Int64("user_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByIDs retrieves the users that exist among ids, ordered by ID
func (r *UserRepository) GetByIDs(ctx context.Context, ids []int64) ([]*entity.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
}

// ListByCompany retrieves all users of a company
func (r *UserRepository) ListByCompany(ctx context.Context, companyID int64) ([]*entity.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE company_id = ? ORDER BY id`, companyID)
}

// SetManager sets or clears the user's manager
func (r *UserRepository) SetManager(ctx context.Context, userID int64, managerID *int64) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE users SET manager_id = ? WHERE id = ?`, nullInt64(managerID), userID)
	if err != nil {
		r.logger.Error("Failed to set manager", zap.Int64("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to set manager: %w", err)
	}
	return r.expectOne(result, userID)
}

// UpdateRole changes the user's role
func (r *UserRepository) UpdateRole(ctx context.Context, userID int64, role string) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE users SET role = ? WHERE id = ?`, strings.ToUpper(role), userID)
	if err != nil {
		r.logger.Error("Failed to update role", zap.Int64("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to update role: %w", err)
	}
	return r.expectOne(result, userID)
}

func (r *UserRepository) expectOne(result sql.Result, userID int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: user %d", workflow.ErrNotFound, userID)
	}
	return nil
}

// GetManagerOf implements port.IdentityProvider. Unknown employees have no manager.
func (r *UserRepository) GetManagerOf(ctx context.Context, employeeID int64) (*int64, error) {
	var managerID sql.NullInt64
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT manager_id FROM users WHERE id = ?`, employeeID,
	).Scan(&managerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get manager", zap.Int64("employee_id", employeeID), zap.Error(err))
		return nil, fmt.Errorf("failed to get manager: %w", err)
	}
	return int64Ptr(managerID), nil
}

// ListUsersByRole implements port.IdentityProvider
func (r *UserRepository) ListUsersByRole(ctx context.Context, companyID int64, role string) ([]int64, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx,
		`SELECT id FROM users WHERE company_id = ? AND role = ? ORDER BY id`,
		companyID, strings.ToUpper(role),
	)
	if err != nil {
		r.logger.Error("Failed to list users by role",
			zap.Int64("company_id", companyID),
			zap.String("role", role),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *UserRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.User, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list users", zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*entity.User, error) {
	var user entity.User
	var managerID sql.NullInt64
	var larkOpenID sql.NullString

	if err := row.Scan(
		&user.ID,
		&user.CompanyID,
		&user.Email,
		&user.Name,
		&user.Role,
		&managerID,
		&larkOpenID,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}

	user.ManagerID = int64Ptr(managerID)
	user.LarkOpenID = larkOpenID.String
	return &user, nil
}

// Verify interface compliance
var (
	_ port.UserRepository   = (*UserRepository)(nil)
	_ port.IdentityProvider = (*UserRepository)(nil)
)
