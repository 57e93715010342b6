package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/versewise/versewise-server/internal/api/middleware"
	"github.com/versewise/versewise-server/internal/model/dto"
	"github.com/versewise/versewise-server/internal/pkg/response"
	"github.com/versewise/versewise-server/internal/service"
)

type BillingHandler struct {
	entitlementService *service.EntitlementService
}

func NewBillingHandler(entitlementService *service.EntitlementService) *BillingHandler {
	return &BillingHandler{
		entitlementService: entitlementService,
	}
}

// CreateCheckout returns the hosted checkout URL for the premium plan.
// POST /api/v1/billing/checkout
func (h *BillingHandler) CreateCheckout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	url, err := h.entitlementService.CreateCheckout(c.Request.Context(), userID)
	if err != nil {
		h.writeBillingError(c, err)
		return
	}

	response.Success(c, dto.CheckoutSessionResponse{URL: url})
}

// CreatePortal returns the hosted billing-portal URL.
// POST /api/v1/billing/portal
func (h *BillingHandler) CreatePortal(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	url, err := h.entitlementService.CreatePortal(c.Request.Context(), userID)
	if err != nil {
		h.writeBillingError(c, err)
		return
	}

	response.Success(c, dto.PortalSessionResponse{URL: url})
}

// VerifyCheckout is the synchronous fallback after the checkout redirect:
// it confirms the session with the provider without waiting for the webhook.
// POST /api/v1/billing/verify-checkout
func (h *BillingHandler) VerifyCheckout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.VerifyCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	result, err := h.entitlementService.VerifyCheckout(c.Request.Context(), userID, req.SessionID)
	if err != nil {
		h.writeBillingError(c, err)
		return
	}

	response.Success(c, result)
}

// SyncSubscription overwrites local entitlement with the provider's
// authoritative snapshot.
// POST /api/v1/billing/sync
func (h *BillingHandler) SyncSubscription(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	result, err := h.entitlementService.SyncSubscription(c.Request.Context(), userID)
	if err != nil {
		h.writeBillingError(c, err)
		return
	}

	response.Success(c, result)
}

// CancelSubscription schedules the subscription to end at period close.
// POST /api/v1/billing/cancel
func (h *BillingHandler) CancelSubscription(c *gin.Context) {
	h.setCancelAtPeriodEnd(c, true)
}

// ResumeSubscription clears a scheduled cancellation.
// POST /api/v1/billing/resume
func (h *BillingHandler) ResumeSubscription(c *gin.Context) {
	h.setCancelAtPeriodEnd(c, false)
}

func (h *BillingHandler) setCancelAtPeriodEnd(c *gin.Context, cancel bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	result, err := h.entitlementService.SetCancelAtPeriodEnd(c.Request.Context(), userID, cancel)
	if err != nil {
		h.writeBillingError(c, err)
		return
	}

	response.Success(c, result)
}

func (h *BillingHandler) writeBillingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		response.AuthError(c, "")
	case errors.Is(err, service.ErrBillingUnavailable):
		response.UpstreamError(c, "")
	case errors.Is(err, service.ErrCheckoutIncomplete):
		response.PaymentIncompleteError(c, err.Error())
	case errors.Is(err, service.ErrCheckoutMismatch):
		response.PermissionError(c, err.Error())
	case errors.Is(err, service.ErrNoBillingAccount), errors.Is(err, service.ErrNoSubscription):
		response.ParamError(c, err.Error())
	default:
		response.ServerError(c, "")
	}
}
