package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/versewise/versewise-server/config"
)

// ErrInvalidSignature marks a webhook payload that failed signature
// verification. Never retried by the provider.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Gateway is the payment-processor surface the services depend on. All
// methods are fallible remote calls; an error never implies any entitlement
// change happened.
type Gateway interface {
	CreateCustomer(ctx context.Context, email, name string, userID int64) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID string, userID int64) (string, error)
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	ListSubscriptions(ctx context.Context, customerID, status string) ([]*Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error)
	ConstructWebhookEvent(payload []byte, sigHeader string) (stripelib.Event, error)
}

// StripeGateway implements Gateway on the Stripe API.
type StripeGateway struct {
	api *client.API
	cfg config.StripeConfig
}

var _ Gateway = (*StripeGateway)(nil)

func NewStripeGateway(cfg config.StripeConfig) *StripeGateway {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &StripeGateway{
		api: api,
		cfg: cfg,
	}
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, email, name string, userID int64) (string, error) {
	params := &stripelib.CustomerParams{
		Params: stripelib.Params{Context: ctx},
		Email:  stripelib.String(email),
		Name:   stripelib.String(name),
	}
	params.AddMetadata("user_id", strconv.FormatInt(userID, 10))

	cust, err := g.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return cust.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, customerID string, userID int64) (string, error) {
	params := &stripelib.CheckoutSessionParams{
		Params:   stripelib.Params{Context: ctx},
		Customer: stripelib.String(customerID),
		Mode:     stripelib.String(string(stripelib.CheckoutSessionModeSubscription)),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Price:    stripelib.String(g.cfg.PriceID),
				Quantity: stripelib.Int64(1),
			},
		},
		SuccessURL: stripelib.String(g.cfg.SuccessURL),
		CancelURL:  stripelib.String(g.cfg.CancelURL),
		SubscriptionData: &stripelib.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": strconv.FormatInt(userID, 10)},
		},
	}
	// Correlation id travels on the session itself, so the completed-checkout
	// webhook and the verify fallback can both resolve the user.
	params.AddMetadata("user_id", strconv.FormatInt(userID, 10))

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	params := &stripelib.BillingPortalSessionParams{
		Params:    stripelib.Params{Context: ctx},
		Customer:  stripelib.String(customerID),
		ReturnURL: stripelib.String(g.cfg.PortalReturnURL),
	}

	sess, err := g.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return sess.URL, nil
}

func (g *StripeGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	sess, err := g.api.CheckoutSessions.Get(sessionID, &stripelib.CheckoutSessionParams{
		Params: stripelib.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}

	out := &CheckoutSession{
		ID:            sess.ID,
		PaymentStatus: string(sess.PaymentStatus),
		Metadata:      sess.Metadata,
	}
	if sess.Customer != nil {
		out.Customer = sess.Customer.ID
	}
	if sess.Subscription != nil {
		out.Subscription = sess.Subscription.ID
	}
	return out, nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	sub, err := g.api.Subscriptions.Get(subscriptionID, &stripelib.SubscriptionParams{
		Params: stripelib.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return subscriptionFromStripe(sub), nil
}

func (g *StripeGateway) ListSubscriptions(ctx context.Context, customerID, status string) ([]*Subscription, error) {
	params := &stripelib.SubscriptionListParams{
		ListParams: stripelib.ListParams{Context: ctx},
		Customer:   stripelib.String(customerID),
		Status:     stripelib.String(status),
	}

	var subs []*Subscription
	iter := g.api.Subscriptions.List(params)
	for iter.Next() {
		subs = append(subs, subscriptionFromStripe(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

func (g *StripeGateway) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error) {
	sub, err := g.api.Subscriptions.Update(subscriptionID, &stripelib.SubscriptionParams{
		Params:            stripelib.Params{Context: ctx},
		CancelAtPeriodEnd: stripelib.Bool(cancel),
	})
	if err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	return subscriptionFromStripe(sub), nil
}

// ConstructWebhookEvent verifies the signature over the raw payload before
// any parsing happens.
func (g *StripeGateway) ConstructWebhookEvent(payload []byte, sigHeader string) (stripelib.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, g.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripelib.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

func subscriptionFromStripe(sub *stripelib.Subscription) *Subscription {
	out := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		out.Customer = sub.Customer.ID
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.CurrentPeriodEnd > 0 {
				out.CurrentPeriodEnd = item.CurrentPeriodEnd
				break
			}
		}
	}
	return out
}
