package http

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	health   HealthCheck
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, health HealthCheck, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		health:   health,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Version    string      `json:"version"`
	Components interface{} `json:"components,omitempty"`
}

// SubmitExpenseRequest is the body of POST /api/expenses
type SubmitExpenseRequest struct {
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency"`
	Category      string           `json:"category" binding:"required"`
	Description   string           `json:"description"`
	ExpenseDate   string           `json:"expense_date" binding:"required"`
	AmountCompany *decimal.Decimal `json:"amount_company"`
}

// DecisionRequest is the body of approve and reject requests
type DecisionRequest struct {
	Comment string `json:"comment"`
}

// OverrideRequest is the body of POST /api/admin/expenses/:id/override
type OverrideRequest struct {
	Decision string `json:"decision" binding:"required"`
	Comment  string `json:"comment"`
}

// CreateFlowRequest is the body of POST /api/admin/flows
type CreateFlowRequest struct {
	Name     string              `json:"name" binding:"required"`
	Steps    []service.StepInput `json:"steps"`
	Rules    []service.RuleInput `json:"rules"`
	Activate bool                `json:"activate"`
}

// SignupRequest is the body of POST /api/signup
type SignupRequest struct {
	CompanyName  string `json:"company_name" binding:"required"`
	CurrencyCode string `json:"currency_code" binding:"required"`
	AdminEmail   string `json:"admin_email" binding:"required"`
	AdminName    string `json:"admin_name"`
}

// CreateUserRequest is the body of POST /api/admin/users
type CreateUserRequest struct {
	Email      string `json:"email" binding:"required"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	ManagerID  *int64 `json:"manager_id"`
	LarkOpenID string `json:"lark_open_id"`
}

// UpdateRoleRequest is the body of PATCH /api/admin/users/:id
type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// ManagerRelationRequest is the body of POST /api/admin/manager-relations.
// A null manager_id clears the relation.
type ManagerRelationRequest struct {
	EmployeeID int64  `json:"employee_id" binding:"required"`
	ManagerID  *int64 `json:"manager_id"`
}

// Version is reported by the health check
var Version = "dev"

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	}

	status := http.StatusOK
	if h.health != nil {
		healthy, details := h.health(c.Request.Context())
		response.Components = details
		if !healthy {
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// SubmitExpense handles POST /api/expenses
func (h *Handlers) SubmitExpense(c *gin.Context) {
	var req SubmitExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	expenseDate, err := parseDate(req.ExpenseDate)
	if err != nil {
		h.badRequest(c, "invalid expense_date", err)
		return
	}

	actor := actorFrom(c)
	expense, err := h.services.Expense.Submit(c.Request.Context(), service.SubmitExpenseInput{
		EmployeeID:    actor.ID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Category:      req.Category,
		Description:   req.Description,
		ExpenseDate:   expenseDate,
		AmountCompany: req.AmountCompany,
	})
	if err != nil {
		h.writeError(c, "Failed to submit expense", err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    expense,
	})
}

// GetExpense handles GET /api/expenses/:id
func (h *Handlers) GetExpense(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	detail, err := h.services.Expense.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.writeError(c, "Failed to get expense", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    detail,
	})
}

// GetExpenseHistory handles GET /api/expenses/:id/history
func (h *Handlers) GetExpenseHistory(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	history, err := h.services.Approval.History(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.writeError(c, "Failed to get expense history", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    nonNil(history),
	})
}

// ListMyExpenses handles GET /api/expenses/mine
func (h *Handlers) ListMyExpenses(c *gin.Context) {
	expenses, err := h.services.Expense.ListMine(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, "Failed to list expenses", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    nonNil(expenses),
	})
}

// ListTeamExpenses handles GET /api/expenses/team
func (h *Handlers) ListTeamExpenses(c *gin.Context) {
	expenses, err := h.services.Expense.ListTeam(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, "Failed to list team expenses", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    nonNil(expenses),
	})
}

// ListAllExpenses handles GET /api/expenses/all
func (h *Handlers) ListAllExpenses(c *gin.Context) {
	expenses, err := h.services.Expense.ListCompany(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, "Failed to list company expenses", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    nonNil(expenses),
	})
}

// MyActivity handles GET /api/me/activity
func (h *Handlers) MyActivity(c *gin.Context) {
	activity, err := h.services.Expense.Activity(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, "Failed to get activity", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    activity,
	})
}

// ListPending handles GET /api/approvals/pending
func (h *Handlers) ListPending(c *gin.Context) {
	pending, err := h.services.Approval.ListPending(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, "Failed to list pending approvals", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    nonNil(pending),
	})
}

// Approve handles POST /api/approvals/:id/approve
func (h *Handlers) Approve(c *gin.Context) {
	h.decide(c, entity.AssignmentStatusApproved)
}

// Reject handles POST /api/approvals/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	h.decide(c, entity.AssignmentStatusRejected)
}

func (h *Handlers) decide(c *gin.Context, decision string) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid request body", err)
			return
		}
	}

	expense, err := h.services.Approval.Decide(c.Request.Context(), actorFrom(c), id, decision, req.Comment)
	if err != nil {
		h.writeError(c, "Failed to record decision", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    expense,
	})
}

// Override handles POST /api/admin/expenses/:id/override
func (h *Handlers) Override(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	expense, err := h.services.Approval.Override(c.Request.Context(), actorFrom(c), id, req.Decision, req.Comment)
	if err != nil {
		h.writeError(c, "Failed to override expense", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    expense,
	})
}

// Reevaluate handles POST /api/admin/expenses/:id/evaluate
func (h *Handlers) Reevaluate(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	expense, err := h.services.Approval.Reevaluate(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.writeError(c, "Failed to re-evaluate expense", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    expense,
	})
}

// Signup handles POST /api/signup
func (h *Handlers) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	result, err := h.services.Directory.Signup(c.Request.Context(), service.SignupInput{
		CompanyName:  req.CompanyName,
		CurrencyCode: req.CurrencyCode,
		AdminEmail:   req.AdminEmail,
		AdminName:    req.AdminName,
	})
	if err != nil {
		h.writeError(c, "Failed to sign up", err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    result,
	})
}

// CreateUser handles POST /api/admin/users
func (h *Handlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}
	if req.Role == "" {
		req.Role = entity.RoleEmployee
	}

	user, err := h.services.Directory.CreateUser(c.Request.Context(), actorFrom(c), service.CreateUserInput{
		Email:      req.Email,
		Name:       req.Name,
		Role:       req.Role,
		ManagerID:  req.ManagerID,
		LarkOpenID: req.LarkOpenID,
	})
	if err != nil {
		h.writeError(c, "Failed to create user", err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    user,
	})
}

// ListUsers handles GET /api/admin/users
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.services.Directory.ListUsers(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, "Failed to list users", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    nonNil(users),
	})
}

// UpdateUserRole handles PATCH /api/admin/users/:id
func (h *Handlers) UpdateUserRole(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	user, err := h.services.Directory.UpdateRole(c.Request.Context(), actorFrom(c), id, req.Role)
	if err != nil {
		h.writeError(c, "Failed to update role", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    user,
	})
}

// SetManager handles POST /api/admin/manager-relations
func (h *Handlers) SetManager(c *gin.Context) {
	var req ManagerRelationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	user, err := h.services.Directory.SetManager(c.Request.Context(), actorFrom(c), req.EmployeeID, req.ManagerID)
	if err != nil {
		h.writeError(c, "Failed to set manager", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    user,
	})
}

// CreateFlow handles POST /api/admin/flows
func (h *Handlers) CreateFlow(c *gin.Context) {
	var req CreateFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	flow, err := h.services.Flow.Create(c.Request.Context(), service.CreateFlowInput{
		CompanyID: actorFrom(c).CompanyID,
		Name:      req.Name,
		Steps:     req.Steps,
		Rules:     req.Rules,
		Activate:  req.Activate,
	})
	if err != nil {
		h.writeError(c, "Failed to create flow", err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    flow,
	})
}

// ListFlows handles GET /api/admin/flows
func (h *Handlers) ListFlows(c *gin.Context) {
	flows, err := h.services.Flow.List(c.Request.Context(), actorFrom(c).CompanyID)
	if err != nil {
		h.writeError(c, "Failed to list flows", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    nonNil(flows),
	})
}

// GetFlow handles GET /api/admin/flows/:id
func (h *Handlers) GetFlow(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	flow, err := h.services.Flow.Get(c.Request.Context(), actorFrom(c).CompanyID, id)
	if err != nil {
		h.writeError(c, "Failed to get flow", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    flow,
	})
}

// ActivateFlow handles POST /api/admin/flows/:id/activate
func (h *Handlers) ActivateFlow(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	if err := h.services.Flow.Activate(c.Request.Context(), actorFrom(c).CompanyID, id); err != nil {
		h.writeError(c, "Failed to activate flow", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    gin.H{"active_flow_id": id},
	})
}

// CompanyHistory handles GET /api/admin/history
func (h *Handlers) CompanyHistory(c *gin.Context) {
	history, err := h.services.Approval.CompanyHistory(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, "Failed to get company history", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    nonNil(history),
	})
}

// ExportHistory handles GET /api/admin/history/export
func (h *Handlers) ExportHistory(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.services.Report.ExportHistory(c.Request.Context(), actorFrom(c), &buf); err != nil {
		h.writeError(c, "Failed to export history", err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="approval-history.xlsx"`)
	c.Data(http.StatusOK, h.services.Report.ContentType(), buf.Bytes())
}

// pathID parses the :id path parameter, answering 400 when it is malformed
func (h *Handlers) pathID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "invalid id", err)
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	h.logger.Warn("Bad request", "path", c.Request.URL.Path, "message", msg, "error", err)
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
	})
}

// writeError maps application errors to HTTP status codes
func (h *Handlers) writeError(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, "path", c.Request.URL.Path, "error", err)
		c.JSON(status, Response{
			Success: false,
			Error:   "internal error",
		})
		return
	}

	h.logger.Warn(msg, "path", c.Request.URL.Path, "status", status, "error", err)
	c.JSON(status, Response{
		Success: false,
		Error:   err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domainwf.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, domainwf.ErrInvalidDecision),
		errors.Is(err, domainwf.ErrInvalidFlow):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case domainwf.IsConflict(err),
		errors.Is(err, port.ErrDuplicateEmail):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// parseDate accepts a calendar date or an RFC 3339 timestamp
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// nonNil keeps empty lists rendering as [] instead of null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
