package dto

// RegisterRequest is the payload for password-based signup.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// RegisterResponse carries the new account id.
type RegisterResponse struct {
	UserID int64 `json:"user_id"`
}

// LoginRequest is the payload for password login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the session token and the signed-in user.
type LoginResponse struct {
	Token string    `json:"token"`
	User  *UserInfo `json:"user"`
}

// VerifyEmailRequest carries the mailed verification code.
type VerifyEmailRequest struct {
	Code string `json:"code" binding:"required"`
}

// UserInfo is the user shape returned to the frontend.
type UserInfo struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	SubscriptionStatus string     `json:"subscription_status"`
	CurrentPeriodEnd   string     `json:"current_period_end,omitempty"`
	EmailVerified      bool       `json:"email_verified,omitempty"`
	Usage              *UsageInfo `json:"usage,omitempty"`
	CreatedAt          string     `json:"created_at,omitempty"`
}

// UsageInfo is the daily-allowance display block.
type UsageInfo struct {
	DailyLimit    int    `json:"daily_limit"`
	UsedToday     int    `json:"used_today"`
	Remaining     int    `json:"remaining"`
	Unlimited     bool   `json:"unlimited"`
	LifetimeCount int64  `json:"lifetime_count"`
	ResetAt       string `json:"reset_at,omitempty"`
}

// UpdateProfileRequest updates the display name; nothing else is editable.
type UpdateProfileRequest struct {
	Name *string `json:"name,omitempty" binding:"omitempty,min=1,max=100"`
}
