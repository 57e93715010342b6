package billing

import (
	"encoding/json"
	"fmt"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
)

// EventKind tags the provider events the entitlement engine understands.
type EventKind string

const (
	KindCheckoutCompleted    EventKind = "checkout_completed"
	KindSubscriptionChanged  EventKind = "subscription_changed"
	KindSubscriptionDeleted  EventKind = "subscription_deleted"
	KindInvoicePaid          EventKind = "invoice_paid"
	KindInvoicePaymentFailed EventKind = "invoice_payment_failed"
)

// Event is the provider-independent billing event handed to the entitlement
// engine. Exactly one Kind is set; payload fields are filled as far as the
// provider event carries them.
type Event struct {
	Kind              EventKind
	ProviderEventID   string
	UserRef           string // correlation id from checkout metadata
	CustomerID        string
	SubscriptionID    string
	Status            string // provider subscription status
	CancelAtPeriodEnd bool
	PeriodEnd         *time.Time
	PaymentStatus     string // checkout payment status
}

// CheckoutSession is a minimal representation of a Stripe checkout session.
type CheckoutSession struct {
	ID            string            `json:"id"`
	Customer      string            `json:"customer"`
	Subscription  string            `json:"subscription"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

// Paid reports whether the session has been settled.
func (s *CheckoutSession) Paid() bool {
	return s.PaymentStatus == "paid"
}

// UserRef returns the correlation id embedded at session creation.
func (s *CheckoutSession) UserRef() string {
	return s.Metadata["user_id"]
}

// Subscription is a minimal representation of a Stripe subscription.
type Subscription struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

// PeriodEnd returns the current period end, reading the item-level field
// newer API versions use when the top-level one is absent.
func (s *Subscription) PeriodEnd() *time.Time {
	unix := s.CurrentPeriodEnd
	if unix == 0 {
		for _, item := range s.Items.Data {
			if item.CurrentPeriodEnd > 0 {
				unix = item.CurrentPeriodEnd
				break
			}
		}
	}
	if unix == 0 {
		return nil
	}
	t := time.Unix(unix, 0).UTC()
	return &t
}

// Invoice is a minimal representation of a Stripe invoice.
type Invoice struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// SubscriptionID returns the invoice's subscription, reading the nested
// location newer API versions use when the top-level one is absent.
func (i *Invoice) SubscriptionID() string {
	if i.Subscription != "" {
		return i.Subscription
	}
	return i.Parent.SubscriptionDetails.Subscription
}

// EventFromStripe translates a verified provider event into an Event.
// Unsupported event types return (nil, nil): the caller acknowledges and
// ignores them.
func EventFromStripe(event stripelib.Event) (*Event, error) {
	switch event.Type {
	case "checkout.session.completed":
		var session CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("decode checkout.session: %w", err)
		}
		return &Event{
			Kind:            KindCheckoutCompleted,
			ProviderEventID: event.ID,
			UserRef:         session.UserRef(),
			CustomerID:      session.Customer,
			SubscriptionID:  session.Subscription,
			PaymentStatus:   session.PaymentStatus,
		}, nil

	case "customer.subscription.created", "customer.subscription.updated":
		var sub Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		return &Event{
			Kind:              KindSubscriptionChanged,
			ProviderEventID:   event.ID,
			UserRef:           sub.Metadata["user_id"],
			CustomerID:        sub.Customer,
			SubscriptionID:    sub.ID,
			Status:            sub.Status,
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			PeriodEnd:         sub.PeriodEnd(),
		}, nil

	case "customer.subscription.deleted":
		var sub Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		return &Event{
			Kind:            KindSubscriptionDeleted,
			ProviderEventID: event.ID,
			UserRef:         sub.Metadata["user_id"],
			CustomerID:      sub.Customer,
			SubscriptionID:  sub.ID,
			Status:          sub.Status,
		}, nil

	case "invoice.payment_succeeded":
		var inv Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		return &Event{
			Kind:            KindInvoicePaid,
			ProviderEventID: event.ID,
			CustomerID:      inv.Customer,
			SubscriptionID:  inv.SubscriptionID(),
		}, nil

	case "invoice.payment_failed":
		var inv Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		return &Event{
			Kind:            KindInvoicePaymentFailed,
			ProviderEventID: event.ID,
			CustomerID:      inv.Customer,
			SubscriptionID:  inv.SubscriptionID(),
		}, nil

	default:
		return nil, nil
	}
}
