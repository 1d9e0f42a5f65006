package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// SignupInput registers a company together with its first admin
type SignupInput struct {
	CompanyName  string
	CurrencyCode string
	AdminEmail   string
	AdminName    string
}

// SignupResult is everything Signup created
type SignupResult struct {
	Company *entity.Company      `json:"company"`
	Admin   *entity.User         `json:"admin"`
	Flow    *entity.ApprovalFlow `json:"flow"`
}

// CreateUserInput is a new member of the actor's company
type CreateUserInput struct {
	Email      string
	Name       string
	Role       string
	ManagerID  *int64
	LarkOpenID string
}

// DirectoryService administers companies and their people. Approver
// resolution reads the roles and manager links it maintains.
type DirectoryService interface {
	// Signup creates a company, its admin and an active default flow in one transaction
	Signup(ctx context.Context, in SignupInput) (*SignupResult, error)

	// CreateUser adds a user to the actor's company. Admin only.
	CreateUser(ctx context.Context, actor *entity.User, in CreateUserInput) (*entity.User, error)

	// ListUsers lists the actor's company. Admin only.
	ListUsers(ctx context.Context, actor *entity.User) ([]*entity.User, error)

	// SetManager sets or, with a nil managerID, clears an employee's manager. Admin only.
	SetManager(ctx context.Context, actor *entity.User, employeeID int64, managerID *int64) (*entity.User, error)

	// UpdateRole changes a user's role. Admin only.
	UpdateRole(ctx context.Context, actor *entity.User, userID int64, role string) (*entity.User, error)
}

type directoryServiceImpl struct {
	companyRepo port.CompanyRepository
	userRepo    port.UserRepository
	flows       FlowService
	txManager   port.TransactionManager
	logger      Logger
}

// NewDirectoryService creates a new DirectoryService
func NewDirectoryService(
	companyRepo port.CompanyRepository,
	userRepo port.UserRepository,
	flows FlowService,
	txManager port.TransactionManager,
	logger Logger,
) DirectoryService {
	return &directoryServiceImpl{
		companyRepo: companyRepo,
		userRepo:    userRepo,
		flows:       flows,
		txManager:   txManager,
		logger:      logger,
	}
}

func (s *directoryServiceImpl) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	name := utils.SanitizeString(in.CompanyName)
	if name == "" {
		return nil, validationError("company name is required")
	}
	currency, err := utils.NormalizeCurrency(in.CurrencyCode)
	if err != nil {
		return nil, validationError("%v", err)
	}
	email, err := utils.NormalizeEmail(in.AdminEmail)
	if err != nil {
		return nil, validationError("%v", err)
	}
	adminName := utils.SanitizeString(in.AdminName)
	if adminName == "" {
		adminName = email
	}

	result := &SignupResult{
		Company: &entity.Company{Name: name, CurrencyCode: currency},
	}
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.companyRepo.Create(txCtx, result.Company); err != nil {
			return fmt.Errorf("create company: %w", err)
		}

		result.Admin = &entity.User{
			CompanyID: result.Company.ID,
			Email:     email,
			Name:      adminName,
			Role:      entity.RoleAdmin,
		}
		if err := s.userRepo.Create(txCtx, result.Admin); err != nil {
			return fmt.Errorf("create admin: %w", err)
		}

		flow, err := s.flows.EnsureDefaultFlow(txCtx, result.Company.ID)
		if err != nil {
			return fmt.Errorf("create default flow: %w", err)
		}
		result.Flow = flow
		result.Company.ActiveFlowID = &flow.ID
		return nil
	})
	if err != nil {
		if errors.Is(err, port.ErrDuplicateEmail) {
			s.logger.Warn("Signup refused", "error", err, "email", email)
		} else {
			s.logger.Error("Signup failed", "error", err, "company", name)
		}
		return nil, err
	}

	s.logger.Info("Company registered",
		"company_id", result.Company.ID,
		"admin_id", result.Admin.ID,
		"flow_id", result.Flow.ID,
	)
	return result, nil
}

func (s *directoryServiceImpl) CreateUser(ctx context.Context, actor *entity.User, in CreateUserInput) (*entity.User, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can create users", ErrForbidden)
	}

	email, err := utils.NormalizeEmail(in.Email)
	if err != nil {
		return nil, validationError("%v", err)
	}
	role, err := normalizeRole(in.Role)
	if err != nil {
		return nil, err
	}
	name := utils.SanitizeString(in.Name)
	if name == "" {
		name = email
	}
	if in.ManagerID != nil {
		if _, err := s.member(ctx, actor, *in.ManagerID); err != nil {
			return nil, err
		}
	}

	user := &entity.User{
		CompanyID:  actor.CompanyID,
		Email:      email,
		Name:       name,
		Role:       role,
		ManagerID:  in.ManagerID,
		LarkOpenID: strings.TrimSpace(in.LarkOpenID),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		s.logger.Warn("Failed to create user", "error", err, "company_id", actor.CompanyID, "email", email)
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("User created",
		"user_id", user.ID,
		"company_id", user.CompanyID,
		"role", user.Role,
		"actor_id", actor.ID,
	)
	return user, nil
}

func (s *directoryServiceImpl) ListUsers(ctx context.Context, actor *entity.User) ([]*entity.User, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can list users", ErrForbidden)
	}
	users, err := s.userRepo.ListByCompany(ctx, actor.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *directoryServiceImpl) SetManager(ctx context.Context, actor *entity.User, employeeID int64, managerID *int64) (*entity.User, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can set managers", ErrForbidden)
	}
	employee, err := s.member(ctx, actor, employeeID)
	if err != nil {
		return nil, err
	}

	if managerID != nil {
		if *managerID == employeeID {
			return nil, validationError("user %d cannot manage themselves", employeeID)
		}
		if _, err := s.member(ctx, actor, *managerID); err != nil {
			return nil, err
		}
		if err := s.checkNoCycle(ctx, employeeID, *managerID); err != nil {
			return nil, err
		}
	}

	if err := s.userRepo.SetManager(ctx, employeeID, managerID); err != nil {
		return nil, fmt.Errorf("set manager: %w", err)
	}
	employee.ManagerID = managerID

	s.logger.Info("Manager updated", "user_id", employeeID, "manager_id", managerID, "actor_id", actor.ID)
	return employee, nil
}

// checkNoCycle walks up from managerID and refuses a chain that reaches employeeID
func (s *directoryServiceImpl) checkNoCycle(ctx context.Context, employeeID, managerID int64) error {
	seen := map[int64]bool{}
	current := &managerID
	for current != nil && !seen[*current] {
		if *current == employeeID {
			return validationError("user %d already reports to user %d", managerID, employeeID)
		}
		seen[*current] = true
		next, err := s.userRepo.GetByID(ctx, *current)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if next == nil {
			return nil
		}
		current = next.ManagerID
	}
	return nil
}

func (s *directoryServiceImpl) UpdateRole(ctx context.Context, actor *entity.User, userID int64, role string) (*entity.User, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can change roles", ErrForbidden)
	}
	role, err := normalizeRole(role)
	if err != nil {
		return nil, err
	}
	user, err := s.member(ctx, actor, userID)
	if err != nil {
		return nil, err
	}
	if user.ID == actor.ID && role != entity.RoleAdmin {
		return nil, validationError("admins cannot demote themselves")
	}

	if err := s.userRepo.UpdateRole(ctx, userID, role); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	previous := user.Role
	user.Role = role

	s.logger.Info("Role changed",
		"user_id", userID,
		"previous_role", previous,
		"role", role,
		"actor_id", actor.ID,
	)
	return user, nil
}

// member loads a user of the actor's company
func (s *directoryServiceImpl) member(ctx context.Context, actor *entity.User, userID int64) (*entity.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || user.CompanyID != actor.CompanyID {
		return nil, fmt.Errorf("%w: user %d", domainwf.ErrNotFound, userID)
	}
	return user, nil
}

func normalizeRole(role string) (string, error) {
	role = strings.ToUpper(strings.TrimSpace(role))
	switch role {
	case entity.RoleAdmin, entity.RoleManager, entity.RoleEmployee:
		return role, nil
	default:
		return "", validationError("unknown role %q", role)
	}
}
