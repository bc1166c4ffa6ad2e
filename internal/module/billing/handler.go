package billing

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker/v2"

	apperrors "github.com/squirrelhq/billing-service/internal/shared/errors"
	"github.com/squirrelhq/billing-service/internal/shared/middleware"
	"github.com/squirrelhq/billing-service/internal/shared/response"
)

// OrganizationHeader switches a request from user scope to the named
// organization's scope.
const OrganizationHeader = "X-Organization-Id"

// Handler handles HTTP requests for billing.
type Handler struct {
	catalog *Catalog
	ledger  *Ledger
	plans   *Plans
	gate    *Gate
	paynow  *PayNow
}

// NewHandler creates a new billing handler.
func NewHandler(catalog *Catalog, ledger *Ledger, plans *Plans, gate *Gate, paynow *PayNow) *Handler {
	return &Handler{catalog: catalog, ledger: ledger, plans: plans, gate: gate, paynow: paynow}
}

// RegisterRoutes registers the billing routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	billing := r.Group("/billing")
	{
		billing.GET("/plans", h.ListPlans)
		billing.GET("/me/plan", h.GetPlan)
		billing.GET("/me/credits", h.GetCredits)
		billing.GET("/me/usage", h.ListUsage)
		billing.POST("/change-plan", h.ChangePlan)
		billing.POST("/check-feature", h.CheckFeature)
		billing.POST("/credits/adjust", middleware.RequireRole("admin"), h.AdjustCredits)
		billing.POST("/mock/topup", h.MockTopUp)
		billing.POST("/mock/activate-pro", h.MockActivatePro)
	}
}

// requestScope resolves the account the request acts on: the
// authenticated user, or the organization named by the scope header.
func requestScope(c *gin.Context) (AccountScope, bool) {
	if orgID := c.GetHeader(OrganizationHeader); orgID != "" {
		return OrgScope(orgID), true
	}
	if userID := middleware.GetUserID(c); userID != "" {
		return UserScope(userID), true
	}
	return AccountScope{}, false
}

func scopeOrAbort(c *gin.Context) (AccountScope, bool) {
	account, ok := requestScope(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
	}
	return account, ok
}

// appErrorMapping binds a domain sentinel to the shared error taxonomy
// so the HTTP mapping has a single source of codes and messages.
func appErrorMapping(sentinel error, appErr *apperrors.AppError) response.ErrorMapping {
	return response.ErrorMapping{
		Err:     sentinel,
		Status:  appErr.StatusCode,
		Code:    appErr.Code,
		Message: appErr.Message,
	}
}

// billingErrorMappings translate domain errors into HTTP responses.
var billingErrorMappings = []response.ErrorMapping{
	appErrorMapping(ErrInvalidAmount, apperrors.InvalidAmount("amount must be positive")),
	appErrorMapping(ErrInsufficientCredit, apperrors.InsufficientCredit()),
	appErrorMapping(ErrNoActivePlan, apperrors.NoActivePlan("")),
	appErrorMapping(ErrFeatureNotAllowed, apperrors.FeatureNotAllowed("")),
	appErrorMapping(ErrPlanNotFound, apperrors.NotFound("plan")),
	appErrorMapping(ErrAccountNotFound, apperrors.NotFound("account")),
	appErrorMapping(ErrInvalidScope, apperrors.BadRequest("invalid account scope")),
	appErrorMapping(gobreaker.ErrOpenState, apperrors.ServiceUnavailable("payment gateway unavailable, retry shortly")),
	appErrorMapping(gobreaker.ErrTooManyRequests, apperrors.ServiceUnavailable("payment gateway unavailable, retry shortly")),
}

func handleBillingError(c *gin.Context, err error) {
	if response.HandleError(c, err, billingErrorMappings) {
		return
	}
	response.FromAppError(c, err)
}

// ListPlans returns the plan catalog.
func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.catalog.ListPlans(c.Request.Context())
	if err != nil {
		response.InternalError(c, "failed to list plans")
		return
	}
	responses := make([]*PlanResponse, len(plans))
	for i, plan := range plans {
		responses[i] = plan.ToResponse()
	}
	c.JSON(http.StatusOK, GetPlansResponse{Plans: responses})
}

// GetPlan returns the caller's billing state, creating it on first
// touch.
func (h *Handler) GetPlan(c *gin.Context) {
	account, ok := scopeOrAbort(c)
	if !ok {
		return
	}
	state, err := h.ledger.Ensure(c.Request.Context(), account)
	if err != nil {
		handleBillingError(c, err)
		return
	}
	c.JSON(http.StatusOK, state.ToResponse())
}

// GetCredits returns the caller's balance with recent history.
func (h *Handler) GetCredits(c *gin.Context) {
	account, ok := scopeOrAbort(c)
	if !ok {
		return
	}
	overview, err := h.ledger.Overview(c.Request.Context(), account)
	if err != nil {
		handleBillingError(c, err)
		return
	}
	events := make([]*UsageEventResponse, len(overview.Events))
	for i, e := range overview.Events {
		events[i] = e.ToResponse()
	}
	c.JSON(http.StatusOK, gin.H{
		"balance": overview.Balance,
		"plan":    overview.Plan,
		"events":  events,
	})
}

// ListUsage returns the caller's usage events, most recent first.
// Supports from/to (RFC 3339), type, and limit query filters.
func (h *Handler) ListUsage(c *gin.Context) {
	account, ok := scopeOrAbort(c)
	if !ok {
		return
	}

	var filter UsageFilter
	filter.Type = c.Query("type")
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(c, "invalid from timestamp")
			return
		}
		filter.From = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(c, "invalid to timestamp")
			return
		}
		filter.To = &t
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		filter.Limit = n
	}

	events, err := h.ledger.ListUsage(c.Request.Context(), account, filter)
	if err != nil {
		handleBillingError(c, err)
		return
	}
	responses := make([]*UsageEventResponse, len(events))
	for i, e := range events {
		responses[i] = e.ToResponse()
	}
	c.JSON(http.StatusOK, gin.H{"events": responses})
}

// ChangePlan assigns a plan to the caller's account.
func (h *Handler) ChangePlan(c *gin.Context) {
	account, ok := scopeOrAbort(c)
	if !ok {
		return
	}
	var req ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	result, err := h.plans.ChangePlan(c.Request.Context(), account, req.Plan, req.Reason)
	if err != nil {
		handleBillingError(c, err)
		return
	}
	if result.Status == PlanChangeManualRequired {
		c.JSON(http.StatusAccepted, result)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": result.Status,
		"plan":   result.Plan.ToResponse(),
	})
}

// CheckFeature answers whether the caller's plan allows the feature.
func (h *Handler) CheckFeature(c *gin.Context) {
	account, ok := scopeOrAbort(c)
	if !ok {
		return
	}
	var req CheckFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	decision, err := h.gate.CheckAccess(c.Request.Context(), account, req.Feature, req.CreditCost)
	if err != nil {
		handleBillingError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// AdjustCredits applies a manual credit grant. Admin only.
func (h *Handler) AdjustCredits(c *gin.Context) {
	account, ok := scopeOrAbort(c)
	if !ok {
		return
	}
	var req AddCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	result, err := h.plans.AdjustCredits(c.Request.Context(), account, req.Amount)
	if err != nil {
		handleBillingError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// MockTopUp simulates a payment and credits the account.
func (h *Handler) MockTopUp(c *gin.Context) {
	account, ok := scopeOrAbort(c)
	if !ok {
		return
	}
	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	receipt, err := h.paynow.TopUp(c.Request.Context(), account, req.Amount)
	if err != nil {
		handleBillingError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// MockActivatePro simulates a pro subscription purchase.
func (h *Handler) MockActivatePro(c *gin.Context) {
	account, ok := scopeOrAbort(c)
	if !ok {
		return
	}
	result, err := h.paynow.ActivatePro(c.Request.Context(), account)
	if err != nil {
		handleBillingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": result.Status,
		"plan":   result.Plan.ToResponse(),
	})
}
