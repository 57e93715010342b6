package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/versewise/versewise-server/internal/model"
)

// TestUser creates a verified free-tier user.
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	nano := time.Now().UnixNano()
	passwordHash := "$2a$10$abcdefghijklmnopqrstuvwxyz123456" // bcrypt hash placeholder
	user := &model.User{
		Name:               fmt.Sprintf("testuser_%d", nano%10000),
		Email:              fmt.Sprintf("test_%d@example.com", nano),
		PasswordHash:       &passwordHash,
		SubscriptionStatus: model.SubscriptionFree,
		EmailVerified:      true,
		Active:             true,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithName sets the display name.
func WithName(name string) func(*model.User) {
	return func(u *model.User) {
		u.Name = name
	}
}

// WithEmail sets the email.
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = email
	}
}

// WithPasswordHash sets the stored credential hash.
func WithPasswordHash(hash string) func(*model.User) {
	return func(u *model.User) {
		u.PasswordHash = &hash
	}
}

// WithStatus sets the subscription status.
func WithStatus(status string) func(*model.User) {
	return func(u *model.User) {
		u.SubscriptionStatus = status
	}
}

// WithPremium marks the user premium with a period end 30 days out.
func WithPremium() func(*model.User) {
	return func(u *model.User) {
		periodEnd := time.Now().Add(30 * 24 * time.Hour)
		u.SubscriptionStatus = model.SubscriptionPremium
		u.CurrentPeriodEnd = &periodEnd
	}
}

// WithUsage sets the daily counter and its window date.
func WithUsage(count int, date time.Time) func(*model.User) {
	return func(u *model.User) {
		u.DailyMessageCount = count
		u.UsageDate = &date
		u.LifetimeMessageCount = int64(count)
	}
}

// WithStripeRefs sets the billing customer and subscription references.
func WithStripeRefs(customerID, subscriptionID string) func(*model.User) {
	return func(u *model.User) {
		if customerID != "" {
			u.StripeCustomerID = &customerID
		}
		if subscriptionID != "" {
			u.StripeSubscriptionID = &subscriptionID
		}
	}
}

// WithGoogleID marks the user as externally authenticated.
func WithGoogleID(id string) func(*model.User) {
	return func(u *model.User) {
		u.GoogleID = &id
		u.PasswordHash = nil
	}
}

// WithUnverified gives the user a pending verification code.
func WithUnverified(code string) func(*model.User) {
	return func(u *model.User) {
		expiresAt := time.Now().Add(24 * time.Hour)
		u.EmailVerified = false
		u.VerificationCode = &code
		u.VerificationExpiresAt = &expiresAt
	}
}

// WithInactive soft-deletes the user.
func WithInactive() func(*model.User) {
	return func(u *model.User) {
		u.Active = false
	}
}
