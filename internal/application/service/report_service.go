package service

import (
	"context"
	"fmt"
	"io"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ReportService exports a company's approval records
type ReportService interface {
	// ExportHistory writes every expense of the actor's company with its
	// history to w. Admin only.
	ExportHistory(ctx context.Context, actor *entity.User, w io.Writer) error
	ContentType() string
}

type reportServiceImpl struct {
	expenseRepo port.ExpenseRepository
	historyRepo port.HistoryRepository
	exporter    port.HistoryExporter
	logger      Logger
}

// NewReportService creates a new ReportService
func NewReportService(
	expenseRepo port.ExpenseRepository,
	historyRepo port.HistoryRepository,
	exporter port.HistoryExporter,
	logger Logger,
) ReportService {
	return &reportServiceImpl{
		expenseRepo: expenseRepo,
		historyRepo: historyRepo,
		exporter:    exporter,
		logger:      logger,
	}
}

func (s *reportServiceImpl) ContentType() string {
	return s.exporter.ContentType()
}

func (s *reportServiceImpl) ExportHistory(ctx context.Context, actor *entity.User, w io.Writer) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: only admins can export history", ErrForbidden)
	}

	expenses, err := s.expenseRepo.ListByCompany(ctx, actor.CompanyID)
	if err != nil {
		return fmt.Errorf("list expenses: %w", err)
	}
	history, err := s.historyRepo.ListByCompany(ctx, actor.CompanyID)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}

	if err := s.exporter.Export(ctx, w, expenses, history); err != nil {
		s.logger.Error("Failed to export history", "error", err, "company_id", actor.CompanyID)
		return fmt.Errorf("export history: %w", err)
	}

	s.logger.Info("History exported",
		"company_id", actor.CompanyID,
		"expenses", len(expenses),
		"history_records", len(history),
	)
	return nil
}
