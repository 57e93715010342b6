package model

import (
	"time"
)

// Subscription statuses. Premium grants unlimited metered usage; cancelled
// keeps the billing linkage but meters like free.
const (
	SubscriptionFree      = "free"
	SubscriptionPremium   = "premium"
	SubscriptionCancelled = "cancelled"
)

type User struct {
	ID                    int64      `gorm:"primaryKey" json:"id"`
	Name                  string     `gorm:"size:100" json:"name"`
	Email                 string     `gorm:"size:100;uniqueIndex;not null" json:"email"`
	PasswordHash          *string    `gorm:"size:255" json:"-"`
	GoogleID              *string    `gorm:"column:google_id;size:50;uniqueIndex" json:"-"`
	SubscriptionStatus    string     `gorm:"size:20;default:free;index" json:"subscription_status"`
	StripeCustomerID      *string    `gorm:"column:stripe_customer_id;size:100;uniqueIndex" json:"-"`
	StripeSubscriptionID  *string    `gorm:"column:stripe_subscription_id;size:100;index" json:"-"`
	CurrentPeriodEnd      *time.Time `json:"current_period_end,omitempty"`
	DailyMessageCount     int        `gorm:"default:0" json:"daily_message_count"`
	UsageDate             *time.Time `json:"usage_date,omitempty"`
	LifetimeMessageCount  int64      `gorm:"default:0" json:"lifetime_message_count"`
	EmailVerified         bool       `gorm:"default:false" json:"email_verified"`
	VerificationCode      *string    `gorm:"size:100" json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`
	Active                bool       `gorm:"default:true" json:"active"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// IsPremium reports whether the user currently holds unlimited access.
func (u *User) IsPremium() bool {
	return u.SubscriptionStatus == SubscriptionPremium
}
