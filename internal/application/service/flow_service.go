package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approver"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// DefaultFlowName names the flow created by EnsureDefaultFlow
const DefaultFlowName = "Default manager approval"

// StepInput describes one step of a new flow
type StepInput struct {
	Order        int      `json:"order"`
	Approvers    []string `json:"approvers"`
	ManagerFirst bool     `json:"manager_first"`
}

// RuleInput describes one rule of a new flow
type RuleInput struct {
	Type               string   `json:"type"`
	Threshold          *float64 `json:"threshold"`
	SpecificApproverID *int64   `json:"specific_approver_id"`
	Logic              string   `json:"logic"`
}

// CreateFlowInput is a new approval flow for a company
type CreateFlowInput struct {
	CompanyID int64
	Name      string
	Steps     []StepInput
	Rules     []RuleInput
	// Activate makes the flow the company's active flow once created
	Activate bool
}

// FlowService administers approval flows
type FlowService interface {
	Create(ctx context.Context, in CreateFlowInput) (*entity.ApprovalFlow, error)
	Activate(ctx context.Context, companyID, flowID int64) error
	Get(ctx context.Context, companyID, flowID int64) (*entity.ApprovalFlow, error)
	List(ctx context.Context, companyID int64) ([]*entity.ApprovalFlow, error)

	// EnsureDefaultFlow returns the company's active flow, creating and
	// activating a single MANAGER step flow when there is none
	EnsureDefaultFlow(ctx context.Context, companyID int64) (*entity.ApprovalFlow, error)
}

type flowServiceImpl struct {
	companyRepo port.CompanyRepository
	userRepo    port.UserRepository
	flowRepo    port.FlowRepository
	txManager   port.TransactionManager
	logger      Logger
}

// NewFlowService creates a new FlowService
func NewFlowService(
	companyRepo port.CompanyRepository,
	userRepo port.UserRepository,
	flowRepo port.FlowRepository,
	txManager port.TransactionManager,
	logger Logger,
) FlowService {
	return &flowServiceImpl{
		companyRepo: companyRepo,
		userRepo:    userRepo,
		flowRepo:    flowRepo,
		txManager:   txManager,
		logger:      logger,
	}
}

func (s *flowServiceImpl) Create(ctx context.Context, in CreateFlowInput) (*entity.ApprovalFlow, error) {
	company, err := s.companyRepo.GetByID(ctx, in.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("get company: %w", err)
	}
	if company == nil {
		return nil, fmt.Errorf("%w: company %d", domainwf.ErrNotFound, in.CompanyID)
	}

	flow, err := s.build(ctx, in)
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.flowRepo.Create(txCtx, flow); err != nil {
			return fmt.Errorf("create flow: %w", err)
		}
		if in.Activate {
			if err := s.companyRepo.SetActiveFlow(txCtx, in.CompanyID, flow.ID); err != nil {
				return fmt.Errorf("activate flow: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create flow", "error", err, "company_id", in.CompanyID)
		return nil, err
	}

	s.logger.Info("Approval flow created",
		"flow_id", flow.ID,
		"company_id", flow.CompanyID,
		"steps", len(flow.Steps),
		"rules", len(flow.Rules),
		"active", in.Activate,
	)
	return flow, nil
}

// build validates the input and turns it into a flow entity
func (s *flowServiceImpl) build(ctx context.Context, in CreateFlowInput) (*entity.ApprovalFlow, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, validationError("flow name is required")
	}
	if len(in.Steps) == 0 {
		return nil, validationError("a flow needs at least one step")
	}

	steps := make([]*entity.ApprovalStep, 0, len(in.Steps))
	var referenced []int64
	for _, st := range in.Steps {
		tokens := make([]string, 0, len(st.Approvers))
		for _, raw := range st.Approvers {
			key, err := approver.Parse(raw)
			if err != nil {
				return nil, validationError("step %d: %v", st.Order, err)
			}
			if key.Kind == approver.KindUser {
				referenced = append(referenced, key.UserID)
			}
			tokens = append(tokens, strings.TrimSpace(raw))
		}
		steps = append(steps, &entity.ApprovalStep{
			Order:        st.Order,
			Approvers:    tokens,
			ManagerFirst: st.ManagerFirst,
		})
	}

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	for i, st := range steps {
		if st.Order != i+1 {
			return nil, validationError("step orders must be 1..%d without gaps or repeats", len(steps))
		}
	}

	rules := make([]*entity.ApprovalRule, 0, len(in.Rules))
	for i, r := range in.Rules {
		rule, err := buildRule(r)
		if err != nil {
			return nil, validationError("rule %d: %v", i+1, err)
		}
		if rule.SpecificApproverID != nil {
			referenced = append(referenced, *rule.SpecificApproverID)
		}
		rules = append(rules, rule)
	}

	if err := s.checkUsers(ctx, in.CompanyID, referenced); err != nil {
		return nil, err
	}

	return &entity.ApprovalFlow{
		CompanyID: in.CompanyID,
		Name:      name,
		Steps:     steps,
		Rules:     rules,
	}, nil
}

func buildRule(in RuleInput) (*entity.ApprovalRule, error) {
	rule := &entity.ApprovalRule{
		Type:               strings.ToUpper(strings.TrimSpace(in.Type)),
		Threshold:          in.Threshold,
		SpecificApproverID: in.SpecificApproverID,
		Logic:              strings.ToUpper(strings.TrimSpace(in.Logic)),
	}
	if rule.Logic == "" {
		rule.Logic = entity.RuleLogicOr
	}
	if rule.Logic != entity.RuleLogicOr && rule.Logic != entity.RuleLogicAnd {
		return nil, fmt.Errorf("logic must be AND or OR, got %q", in.Logic)
	}
	if rule.Threshold != nil && (*rule.Threshold < 0 || *rule.Threshold > 100) {
		return nil, fmt.Errorf("threshold must be between 0 and 100")
	}

	switch rule.Type {
	case entity.RuleTypePercentage:
		if rule.Threshold == nil {
			return nil, fmt.Errorf("PERCENTAGE rule needs a threshold")
		}
	case entity.RuleTypeSpecificApprover:
		if rule.SpecificApproverID == nil {
			return nil, fmt.Errorf("SPECIFIC_APPROVER rule needs specific_approver_id")
		}
	case entity.RuleTypeHybrid:
		if rule.Threshold == nil && rule.SpecificApproverID == nil {
			return nil, fmt.Errorf("HYBRID rule needs a threshold or specific_approver_id")
		}
	default:
		return nil, fmt.Errorf("unknown rule type %q", in.Type)
	}
	return rule, nil
}

// checkUsers verifies every referenced user belongs to the company
func (s *flowServiceImpl) checkUsers(ctx context.Context, companyID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("get users: %w", err)
	}
	found := make(map[int64]bool, len(users))
	for _, u := range users {
		if u.CompanyID == companyID {
			found[u.ID] = true
		}
	}
	for _, id := range ids {
		if !found[id] {
			return validationError("user %d is not a member of company %d", id, companyID)
		}
	}
	return nil
}

func (s *flowServiceImpl) Activate(ctx context.Context, companyID, flowID int64) error {
	if _, err := s.Get(ctx, companyID, flowID); err != nil {
		return err
	}
	if err := s.companyRepo.SetActiveFlow(ctx, companyID, flowID); err != nil {
		s.logger.Error("Failed to activate flow", "error", err, "company_id", companyID, "flow_id", flowID)
		return fmt.Errorf("activate flow: %w", err)
	}
	s.logger.Info("Approval flow activated", "company_id", companyID, "flow_id", flowID)
	return nil
}

func (s *flowServiceImpl) Get(ctx context.Context, companyID, flowID int64) (*entity.ApprovalFlow, error) {
	flow, err := s.flowRepo.GetByID(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("get flow: %w", err)
	}
	if flow == nil || flow.CompanyID != companyID {
		return nil, fmt.Errorf("%w: flow %d", domainwf.ErrNotFound, flowID)
	}
	return flow, nil
}

func (s *flowServiceImpl) List(ctx context.Context, companyID int64) ([]*entity.ApprovalFlow, error) {
	flows, err := s.flowRepo.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	return flows, nil
}

func (s *flowServiceImpl) EnsureDefaultFlow(ctx context.Context, companyID int64) (*entity.ApprovalFlow, error) {
	company, err := s.companyRepo.GetByID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("get company: %w", err)
	}
	if company == nil {
		return nil, fmt.Errorf("%w: company %d", domainwf.ErrNotFound, companyID)
	}
	if company.ActiveFlowID != nil {
		return s.Get(ctx, companyID, *company.ActiveFlowID)
	}

	return s.Create(ctx, CreateFlowInput{
		CompanyID: companyID,
		Name:      DefaultFlowName,
		Steps: []StepInput{{
			Order:        1,
			Approvers:    approver.DefaultTokens,
			ManagerFirst: true,
		}},
		Activate: true,
	})
}
