package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

func TestXLSXExporter_Export(t *testing.T) {
	flowID := int64(3)
	actor := int64(11)
	created := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

	expenses := []*entity.Expense{{
		ID:               1,
		EmployeeID:       10,
		AmountOriginal:   decimal.RequireFromString("120.5"),
		CurrencyOriginal: "USD",
		AmountCompany:    decimal.RequireFromString("110"),
		CurrencyCompany:  "EUR",
		Category:         "Travel",
		Description:      "Flight",
		ExpenseDate:      created,
		Status:           entity.ExpenseStatusApproved,
		FlowID:           &flowID,
		StepOrder:        2,
		CreatedAt:        created,
	}}
	history := []*entity.ApprovalHistory{
		{ID: 1, ExpenseID: 1, Action: entity.ActionSubmitted, NewStatus: "PENDING", NewStep: 1, Timestamp: created},
		{ID: 2, ExpenseID: 1, ActorID: &actor, Action: entity.ActionDecided, Comment: "ok", Timestamp: created},
	}

	var buf bytes.Buffer
	exporter := NewXLSXExporter(zap.NewNop())
	require.NoError(t, exporter.Export(context.Background(), &buf, expenses, history))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Expenses", "History"}, f.GetSheetList())

	rows, err := f.GetRows("Expenses")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Expense ID", rows[0][0])
	assert.Equal(t, []string{
		"1", "10", "Travel", "Flight", "2026-05-04",
		"120.50", "USD", "110.00", "EUR",
		"APPROVED", "2", "3", "2026-05-04 10:30:00",
	}, rows[1])

	rows, err = f.GetRows("History")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "SUBMITTED", rows[1][2])
	assert.Equal(t, "", rows[1][3], "engine transitions have no actor")
	assert.Equal(t, "11", rows[2][3])
	assert.Equal(t, "ok", rows[2][8])
}

func TestXLSXExporter_EmptyWorkbook(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewXLSXExporter(zap.NewNop()).Export(context.Background(), &buf, nil, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("History")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestXLSXExporter_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewXLSXExporter(zap.NewNop()).Export(ctx, &bytes.Buffer{}, []*entity.Expense{{ID: 1}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
