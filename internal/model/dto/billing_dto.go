package dto

// CheckoutSessionResponse carries the hosted checkout URL.
type CheckoutSessionResponse struct {
	URL string `json:"url"`
}

// PortalSessionResponse carries the hosted billing-portal URL.
type PortalSessionResponse struct {
	URL string `json:"url"`
}

// VerifyCheckoutRequest names the checkout session to confirm.
type VerifyCheckoutRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// EntitlementResponse reports the subscription state after a billing
// operation or sync.
type EntitlementResponse struct {
	SubscriptionStatus string `json:"subscription_status"`
	CurrentPeriodEnd   string `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end,omitempty"`
}
