package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

func newEngine(r *repos, opts ...workflow.EngineOption) workflow.Engine {
	factory := workflow.NewAssignmentFactory(workflow.NewResolver(r.users, nil), r.assignments, nil)
	return workflow.NewEngine(r.flows, r.expenses, r.assignments, r.history, r.db, factory, opts...)
}

func TestEngineOnSQLite_TwoStepFlow(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	c := r.company(t)
	boss := r.user(t, c.ID, "boss@acme.test", entity.RoleManager, nil)
	adm := r.user(t, c.ID, "admin@acme.test", entity.RoleAdmin, nil)
	emp := r.user(t, c.ID, "emp@acme.test", entity.RoleEmployee, &boss.ID)
	f := r.flow(t, c.ID, nil,
		&entity.ApprovalStep{Order: 1, Approvers: []string{"MANAGER"}},
		&entity.ApprovalStep{Order: 2, Approvers: []string{"ROLE:ADMIN"}},
	)
	e := r.expense(t, emp, &f.ID)
	engine := newEngine(r)

	got, err := engine.OnExpenseCreated(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.StepOrder)

	pending, err := r.assignments.ListPendingByApprover(ctx, boss.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	got, err = engine.OnAssignmentDecided(ctx, workflow.DecisionRequest{
		AssignmentID: pending[0].Assignment.ID,
		Decision:     entity.AssignmentStatusApproved,
		ActorID:      boss.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got.StepOrder)

	pending, err = r.assignments.ListPendingByApprover(ctx, adm.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	got, err = engine.OnAssignmentDecided(ctx, workflow.DecisionRequest{
		AssignmentID: pending[0].Assignment.ID,
		Decision:     entity.AssignmentStatusApproved,
		ActorID:      adm.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.ExpenseStatusApproved, got.Status)

	stored, err := r.expenses.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ExpenseStatusApproved, stored.Status)

	history, err := r.history.ListByExpense(ctx, e.ID)
	require.NoError(t, err)
	var actions []string
	for _, h := range history {
		actions = append(actions, h.Action)
	}
	assert.Equal(t, []string{
		entity.ActionSubmitted,
		entity.ActionDecided,
		entity.ActionAdvanced,
		entity.ActionDecided,
		entity.ActionApproved,
	}, actions)
}

func TestEngineOnSQLite_UnknownUserTokenRollsBack(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	c := r.company(t)
	emp := r.user(t, c.ID, "emp@acme.test", entity.RoleEmployee, nil)
	f := r.flow(t, c.ID, nil, &entity.ApprovalStep{Order: 1, Approvers: []string{"USER:424242"}})
	e := r.expense(t, emp, &f.ID)

	_, err := newEngine(r).OnExpenseCreated(ctx, e.ID)
	require.Error(t, err)

	stored, err := r.expenses.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.StepOrder)
	assert.Equal(t, int64(0), stored.Version)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func TestSubmitOnSQLite_FailureLeavesNoExpense(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	c := r.company(t)
	emp := r.user(t, c.ID, "emp@acme.test", entity.RoleEmployee, nil)
	f := r.flow(t, c.ID, nil, &entity.ApprovalStep{Order: 1, Approvers: []string{"USER:424242"}})
	require.NoError(t, r.companies.SetActiveFlow(ctx, c.ID, f.ID))

	svc := service.NewExpenseService(r.companies, r.users, r.expenses, r.assignments, newEngine(r), nopLogger{})
	_, err := svc.Submit(ctx, service.SubmitExpenseInput{
		EmployeeID:  emp.ID,
		Amount:      decimal.RequireFromString("12.00"),
		Currency:    "USD",
		Category:    "Meals",
		ExpenseDate: time.Now().Add(-24 * time.Hour),
	})
	require.Error(t, err)

	stored, err := r.expenses.ListByEmployee(ctx, emp.ID)
	require.NoError(t, err)
	assert.Empty(t, stored, "failed submission must not leave a stored expense")

	history, err := r.history.ListByCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	// The same employee can submit once the flow is fixed.
	r.user(t, c.ID, "admin@acme.test", entity.RoleAdmin, nil)
	fixed := r.flow(t, c.ID, nil, &entity.ApprovalStep{Order: 1, Approvers: []string{"ROLE:ADMIN"}})
	require.NoError(t, r.companies.SetActiveFlow(ctx, c.ID, fixed.ID))
	got, err := svc.Submit(ctx, service.SubmitExpenseInput{
		EmployeeID:  emp.ID,
		Amount:      decimal.RequireFromString("12.00"),
		Currency:    "USD",
		Category:    "Meals",
		ExpenseDate: time.Now().Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got.StepOrder)
	assert.Equal(t, entity.ExpenseStatusPending, got.Status)

	stored, err = r.expenses.ListByEmployee(ctx, emp.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, got.ID, stored[0].ID)
}

// Each engine has its own in-process lock, so two engines on one database
// stand in for two server processes.
func TestEngineOnSQLite_ConcurrentDecisionsAcrossEngines(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()
	c := r.company(t)
	emp := r.user(t, c.ID, "emp@acme.test", entity.RoleEmployee, nil)

	var approvers []*entity.User
	var tokens []string
	for _, email := range []string{"a@acme.test", "b@acme.test", "c@acme.test", "d@acme.test"} {
		u := r.user(t, c.ID, email, entity.RoleManager, nil)
		approvers = append(approvers, u)
		tokens = append(tokens, "USER:"+itoa(u.ID))
	}
	f := r.flow(t, c.ID,
		[]*entity.ApprovalRule{{Type: entity.RuleTypePercentage, Threshold: float64p(50)}},
		&entity.ApprovalStep{Order: 1, Approvers: tokens},
		&entity.ApprovalStep{Order: 2, Approvers: []string{"USER:" + itoa(approvers[0].ID)}},
	)
	e := r.expense(t, emp, &f.ID)

	engines := []workflow.Engine{newEngine(r), newEngine(r)}
	_, err := engines[0].OnExpenseCreated(ctx, e.ID)
	require.NoError(t, err)

	step1, err := r.assignments.ListByExpenseAndStep(ctx, e.ID, f.Steps[0].ID)
	require.NoError(t, err)
	require.Len(t, step1, 4)

	var wg sync.WaitGroup
	errs := make([]error, len(step1))
	for i, a := range step1 {
		wg.Add(1)
		go func(i int, a *entity.ApprovalAssignment) {
			defer wg.Done()
			_, errs[i] = engines[i%2].OnAssignmentDecided(ctx, workflow.DecisionRequest{
				AssignmentID: a.ID,
				Decision:     entity.AssignmentStatusApproved,
				ActorID:      a.ApproverID,
			})
		}(i, a)
	}
	wg.Wait()

	// Two approvals satisfy the step; later decisions find it stale.
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, domainwf.IsConflict(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 2, succeeded)

	stored, err := r.expenses.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.StepOrder)

	step2, err := r.assignments.ListByExpenseAndStep(ctx, e.ID, f.Steps[1].ID)
	require.NoError(t, err)
	assert.Len(t, step2, 1, "next step materialised exactly once")

	history, err := r.history.ListByExpense(ctx, e.ID)
	require.NoError(t, err)
	advanced := 0
	for _, h := range history {
		if h.Action == entity.ActionAdvanced {
			advanced++
		}
	}
	assert.Equal(t, 1, advanced)
}
