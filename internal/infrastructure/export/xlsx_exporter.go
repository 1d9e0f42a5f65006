// Package export renders approval records as spreadsheets.
package export

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const (
	expensesSheet = "Expenses"
	historySheet  = "History"
	dateLayout    = "2006-01-02"
	timeLayout    = "2006-01-02 15:04:05"
)

var (
	expenseHeader = []interface{}{
		"Expense ID", "Employee ID", "Category", "Description", "Expense Date",
		"Amount", "Currency", "Company Amount", "Company Currency",
		"Status", "Step", "Flow ID", "Created At",
	}
	historyHeader = []interface{}{
		"History ID", "Expense ID", "Action", "Actor ID",
		"Previous Status", "New Status", "Previous Step", "New Step",
		"Comment", "Timestamp",
	}
)

// XLSXExporter writes expenses and their history into a two-sheet workbook
type XLSXExporter struct {
	logger *zap.Logger
}

// NewXLSXExporter creates a new workbook exporter
func NewXLSXExporter(logger *zap.Logger) *XLSXExporter {
	return &XLSXExporter{logger: logger}
}

// ContentType implements port.HistoryExporter
func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Export implements port.HistoryExporter
func (e *XLSXExporter) Export(ctx context.Context, w io.Writer, expenses []*entity.Expense, history []*entity.ApprovalHistory) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), expensesSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(historySheet); err != nil {
		return fmt.Errorf("failed to create history sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	rows := make([][]interface{}, 0, len(expenses))
	for _, exp := range expenses {
		rows = append(rows, expenseRow(exp))
	}
	if err := e.writeSheet(ctx, f, expensesSheet, expenseHeader, rows, headerStyle); err != nil {
		return err
	}

	rows = rows[:0]
	for _, h := range history {
		rows = append(rows, historyRow(h))
	}
	if err := e.writeSheet(ctx, f, historySheet, historyHeader, rows, headerStyle); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Approval history workbook written",
		zap.Int("expenses", len(expenses)),
		zap.Int("history_records", len(history)))
	return nil
}

func (e *XLSXExporter) writeSheet(ctx context.Context, f *excelize.File, sheet string, header []interface{}, rows [][]interface{}, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		e.logger.Warn("Failed to style header", zap.String("sheet", sheet), zap.Error(err))
	}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sheet, "A"+strconv.Itoa(i+2), &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func expenseRow(exp *entity.Expense) []interface{} {
	flowID := ""
	if exp.FlowID != nil {
		flowID = strconv.FormatInt(*exp.FlowID, 10)
	}
	return []interface{}{
		exp.ID,
		exp.EmployeeID,
		exp.Category,
		exp.Description,
		exp.ExpenseDate.Format(dateLayout),
		exp.AmountOriginal.StringFixed(2),
		exp.CurrencyOriginal,
		exp.AmountCompany.StringFixed(2),
		exp.CurrencyCompany,
		exp.Status,
		exp.StepOrder,
		flowID,
		exp.CreatedAt.Format(timeLayout),
	}
}

func historyRow(h *entity.ApprovalHistory) []interface{} {
	actor := ""
	if h.ActorID != nil {
		actor = strconv.FormatInt(*h.ActorID, 10)
	}
	return []interface{}{
		h.ID,
		h.ExpenseID,
		h.Action,
		actor,
		h.PreviousStatus,
		h.NewStatus,
		h.PreviousStep,
		h.NewStep,
		h.Comment,
		h.Timestamp.Format(timeLayout),
	}
}

var _ port.HistoryExporter = (*XLSXExporter)(nil)
