package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// FlowRepository implements port.FlowRepository. Steps and rules are stored in
// their own tables and always loaded with the flow.
type FlowRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewFlowRepository creates a new flow repository
func NewFlowRepository(db *sqlite.DB, logger *zap.Logger) port.FlowRepository {
	return &FlowRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the flow with its steps and rules in one transaction
func (r *FlowRepository) Create(ctx context.Context, flow *entity.ApprovalFlow) error {
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = utcNow()
	}

	err := r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.Executor(txCtx)

		result, err := exec.ExecContext(txCtx,
			`INSERT INTO approval_flows (company_id, name, created_at) VALUES (?, ?, ?)`,
			flow.CompanyID, flow.Name, flow.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert flow: %w", err)
		}
		if flow.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}

		for _, step := range flow.Steps {
			approvers := step.Approvers
			if approvers == nil {
				approvers = []string{}
			}
			encoded, err := json.Marshal(approvers)
			if err != nil {
				return fmt.Errorf("failed to encode approvers: %w", err)
			}

			result, err := exec.ExecContext(txCtx,
				`INSERT INTO approval_steps (flow_id, step_order, approvers, manager_first) VALUES (?, ?, ?, ?)`,
				flow.ID, step.Order, string(encoded), step.ManagerFirst,
			)
			if err != nil {
				return fmt.Errorf("failed to insert step %d: %w", step.Order, err)
			}
			if step.ID, err = result.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
			step.FlowID = flow.ID
		}

		for _, rule := range flow.Rules {
			if rule.Logic == "" {
				rule.Logic = entity.RuleLogicOr
			}
			result, err := exec.ExecContext(txCtx, `
				INSERT INTO approval_rules (flow_id, rule_type, threshold, specific_approver_id, logic)
				VALUES (?, ?, ?, ?, ?)`,
				flow.ID, rule.Type, nullFloat64(rule.Threshold), nullInt64(rule.SpecificApproverID), rule.Logic,
			)
			if err != nil {
				return fmt.Errorf("failed to insert rule: %w", err)
			}
			if rule.ID, err = result.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
			rule.FlowID = flow.ID
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to create flow",
			zap.Int64("company_id", flow.CompanyID),
			zap.String("name", flow.Name),
			zap.Error(err))
		return fmt.Errorf("failed to create flow: %w", err)
	}
	return nil
}

// GetByID retrieves a flow with its steps and rules
func (r *FlowRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalFlow, error) {
	var flow entity.ApprovalFlow
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT id, company_id, name, created_at FROM approval_flows WHERE id = ?`, id,
	).Scan(&flow.ID, &flow.CompanyID, &flow.Name, &flow.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get flow", zap.Int64("flow_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}

	if err := r.loadChildren(ctx, &flow); err != nil {
		r.logger.Error("Failed to load flow steps and rules", zap.Int64("flow_id", id), zap.Error(err))
		return nil, err
	}
	return &flow, nil
}

// ListByCompany retrieves every flow of a company, newest first
func (r *FlowRepository) ListByCompany(ctx context.Context, companyID int64) ([]*entity.ApprovalFlow, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx,
		`SELECT id, company_id, name, created_at FROM approval_flows WHERE company_id = ? ORDER BY id DESC`,
		companyID,
	)
	if err != nil {
		r.logger.Error("Failed to list flows", zap.Int64("company_id", companyID), zap.Error(err))
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	var flows []*entity.ApprovalFlow
	for rows.Next() {
		var flow entity.ApprovalFlow
		if err := rows.Scan(&flow.ID, &flow.CompanyID, &flow.Name, &flow.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}
		flows = append(flows, &flow)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	rows.Close()

	for _, flow := range flows {
		if err := r.loadChildren(ctx, flow); err != nil {
			return nil, err
		}
	}
	return flows, nil
}

func (r *FlowRepository) loadChildren(ctx context.Context, flow *entity.ApprovalFlow) error {
	exec := r.db.Executor(ctx)

	stepRows, err := exec.QueryContext(ctx,
		`SELECT id, flow_id, step_order, approvers, manager_first FROM approval_steps WHERE flow_id = ? ORDER BY step_order`,
		flow.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get steps: %w", err)
	}
	defer stepRows.Close()

	flow.Steps = nil
	for stepRows.Next() {
		var step entity.ApprovalStep
		var approvers string
		if err := stepRows.Scan(&step.ID, &step.FlowID, &step.Order, &approvers, &step.ManagerFirst); err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(approvers), &step.Approvers); err != nil {
			return fmt.Errorf("failed to decode approvers of step %d: %w", step.ID, err)
		}
		flow.Steps = append(flow.Steps, &step)
	}
	if err := stepRows.Err(); err != nil {
		return fmt.Errorf("failed to get steps: %w", err)
	}

	ruleRows, err := exec.QueryContext(ctx,
		`SELECT id, flow_id, rule_type, threshold, specific_approver_id, logic FROM approval_rules WHERE flow_id = ? ORDER BY id`,
		flow.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get rules: %w", err)
	}
	defer ruleRows.Close()

	flow.Rules = nil
	for ruleRows.Next() {
		var rule entity.ApprovalRule
		var threshold sql.NullFloat64
		var specificID sql.NullInt64
		if err := ruleRows.Scan(&rule.ID, &rule.FlowID, &rule.Type, &threshold, &specificID, &rule.Logic); err != nil {
			return fmt.Errorf("failed to scan rule: %w", err)
		}
		rule.Threshold = float64Ptr(threshold)
		rule.SpecificApproverID = int64Ptr(specificID)
		flow.Rules = append(flow.Rules, &rule)
	}
	return ruleRows.Err()
}

// Verify interface compliance
var _ port.FlowRepository = (*FlowRepository)(nil)
