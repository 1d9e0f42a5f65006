package repository

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/migrations"
	"github.com/garyjia/expense-approval/pkg/database"
)

// testDB opens a migrated sqlite database in a temp dir
func testDB(t *testing.T) *sqlite.DB {
	t.Helper()
	logger := zap.NewNop()

	raw, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "approval.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 4,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	require.NoError(t, database.NewMigrator(raw, logger).RunMigrations(migrations.FS))
	return sqlite.NewDB(raw.DB, logger)
}

type repos struct {
	db          *sqlite.DB
	companies   *CompanyRepository
	users       *UserRepository
	flows       *FlowRepository
	expenses    *ExpenseRepository
	assignments *AssignmentRepository
	history     *HistoryRepository
}

func newRepos(t *testing.T) *repos {
	t.Helper()
	db := testDB(t)
	logger := zap.NewNop()
	return &repos{
		db:          db,
		companies:   NewCompanyRepository(db, logger).(*CompanyRepository),
		users:       NewUserRepository(db, logger),
		flows:       NewFlowRepository(db, logger).(*FlowRepository),
		expenses:    NewExpenseRepository(db, logger).(*ExpenseRepository),
		assignments: NewAssignmentRepository(db, logger).(*AssignmentRepository),
		history:     NewHistoryRepository(db, logger).(*HistoryRepository),
	}
}

func (r *repos) company(t *testing.T) *entity.Company {
	t.Helper()
	c := &entity.Company{Name: "Acme", CurrencyCode: "USD"}
	require.NoError(t, r.companies.Create(context.Background(), c))
	return c
}

func (r *repos) user(t *testing.T, companyID int64, email, role string, managerID *int64) *entity.User {
	t.Helper()
	u := &entity.User{CompanyID: companyID, Email: email, Name: email, Role: role, ManagerID: managerID}
	require.NoError(t, r.users.Create(context.Background(), u))
	return u
}

func (r *repos) flow(t *testing.T, companyID int64, rules []*entity.ApprovalRule, steps ...*entity.ApprovalStep) *entity.ApprovalFlow {
	t.Helper()
	f := &entity.ApprovalFlow{CompanyID: companyID, Name: "flow", Steps: steps, Rules: rules}
	require.NoError(t, r.flows.Create(context.Background(), f))
	return f
}

func (r *repos) expense(t *testing.T, employee *entity.User, flowID *int64) *entity.Expense {
	t.Helper()
	e := &entity.Expense{
		EmployeeID:       employee.ID,
		CompanyID:        employee.CompanyID,
		AmountOriginal:   decimal.RequireFromString("120.50"),
		CurrencyOriginal: "EUR",
		AmountCompany:    decimal.RequireFromString("131.25"),
		CurrencyCompany:  "USD",
		Category:         "Travel",
		Description:      "Train",
		ExpenseDate:      time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC),
		FlowID:           flowID,
	}
	require.NoError(t, r.expenses.Create(context.Background(), e))
	return e
}

func int64p(v int64) *int64 { return &v }

func float64p(v float64) *float64 { return &v }

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
