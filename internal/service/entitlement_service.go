package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/versewise/versewise-server/config"
	"github.com/versewise/versewise-server/internal/model"
	"github.com/versewise/versewise-server/internal/model/dto"
	"github.com/versewise/versewise-server/internal/pkg/billing"
	"github.com/versewise/versewise-server/internal/pkg/metrics"
	"github.com/versewise/versewise-server/internal/pkg/pubsub"
	"github.com/versewise/versewise-server/internal/pkg/queue"
	"github.com/versewise/versewise-server/internal/repository"
)

var (
	ErrBillingUnavailable = errors.New("billing provider unavailable")
	ErrCheckoutIncomplete = errors.New("checkout session not paid")
	ErrCheckoutMismatch   = errors.New("checkout session belongs to another account")
	ErrNoBillingAccount   = errors.New("no billing account on file")
	ErrNoSubscription     = errors.New("no subscription on file")
)

// TransitionResult reports what an applied billing event did.
type TransitionResult struct {
	Matched bool
	UserID  int64
	Status  string
	Changed bool
}

// EntitlementService is the single authority for subscription-state
// transitions. Webhook deliveries, the verify-checkout fallback and the
// manual sync fallback all funnel into Apply, so every path obeys the same
// transition rules.
type EntitlementService struct {
	userRepo    *repository.UserRepository
	gateway     billing.Gateway
	notifyQueue *queue.Queue
	publisher   *pubsub.Publisher
	cfg         *config.Config
}

func NewEntitlementService(
	userRepo *repository.UserRepository,
	gateway billing.Gateway,
	notifyQueue *queue.Queue,
	publisher *pubsub.Publisher,
	cfg *config.Config,
) *EntitlementService {
	return &EntitlementService{
		userRepo:    userRepo,
		gateway:     gateway,
		notifyQueue: notifyQueue,
		publisher:   publisher,
		cfg:         cfg,
	}
}

// Apply runs one billing event through the transition table. Safe to call
// repeatedly with the same event (provider delivery is at-least-once) and
// with events out of generation order: the engine is last-write-wins by
// arrival and deliberately does no timestamp comparison, so a stale event
// can transiently overwrite fresher state until the next event or a manual
// sync corrects it.
func (s *EntitlementService) Apply(ctx context.Context, ev *billing.Event) (*TransitionResult, error) {
	user, err := s.resolveUser(ev)
	if err != nil {
		return nil, err
	}
	if user == nil {
		log.Warn().
			Str("kind", string(ev.Kind)).
			Str("provider_event_id", ev.ProviderEventID).
			Str("customer_id", ev.CustomerID).
			Str("subscription_id", ev.SubscriptionID).
			Msg("billing event matched no user")
		return &TransitionResult{Matched: false}, nil
	}

	var (
		status string
		fields map[string]interface{}
	)

	switch ev.Kind {
	case billing.KindCheckoutCompleted:
		if ev.PaymentStatus != "paid" || ev.SubscriptionID == "" {
			log.Info().
				Int64("user_id", user.ID).
				Str("payment_status", ev.PaymentStatus).
				Msg("checkout session not settled, no transition")
			return s.unchanged(user), nil
		}
		status = model.SubscriptionPremium
		fields = map[string]interface{}{
			"stripe_subscription_id": ev.SubscriptionID,
		}
		s.attachCustomerRef(user, ev, fields)

	case billing.KindSubscriptionChanged:
		switch ev.Status {
		case "active", "trialing":
			status = model.SubscriptionPremium
			fields = map[string]interface{}{
				"stripe_subscription_id": ev.SubscriptionID,
				"current_period_end":     ev.PeriodEnd,
			}
			s.attachCustomerRef(user, ev, fields)
		case "canceled":
			status = model.SubscriptionCancelled
		default:
			status = model.SubscriptionFree
		}

	case billing.KindSubscriptionDeleted:
		status = model.SubscriptionFree
		fields = map[string]interface{}{
			"stripe_subscription_id": nil,
			"current_period_end":     nil,
		}

	case billing.KindInvoicePaid:
		if user.IsPremium() {
			return s.unchanged(user), nil
		}
		status = model.SubscriptionPremium

	case billing.KindInvoicePaymentFailed:
		// No automatic downgrade: the provider's subscription-status event
		// carries any downgrade. We only tell the user.
		s.enqueueNotification(ctx, queue.KindPaymentFailed, user)
		return s.unchanged(user), nil

	default:
		return nil, fmt.Errorf("unhandled billing event kind %q", ev.Kind)
	}

	return s.transition(ctx, user, status, fields, ev.PeriodEnd)
}

// resolveUser finds the account a billing event belongs to: correlation id
// from checkout metadata first, then stored customer ref, then stored
// subscription ref.
func (s *EntitlementService) resolveUser(ev *billing.Event) (*model.User, error) {
	if ev.UserRef != "" {
		if id, parseErr := strconv.ParseInt(ev.UserRef, 10, 64); parseErr == nil {
			user, err := s.userRepo.GetByID(id)
			if err == nil {
				return user, nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
		}
	}

	if ev.CustomerID != "" {
		user, err := s.userRepo.GetByStripeCustomerID(ev.CustomerID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if ev.SubscriptionID != "" {
		user, err := s.userRepo.GetByStripeSubscriptionID(ev.SubscriptionID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	return nil, nil
}

// attachCustomerRef records the event's customer ref for users that have
// none yet. An existing ref is never overwritten: customer linkage is
// assigned at most once.
func (s *EntitlementService) attachCustomerRef(user *model.User, ev *billing.Event, fields map[string]interface{}) {
	if ev.CustomerID != "" && user.StripeCustomerID == nil {
		fields["stripe_customer_id"] = ev.CustomerID
	}
}

// transition persists the entitlement fields and fans out the change.
func (s *EntitlementService) transition(ctx context.Context, user *model.User, status string, fields map[string]interface{}, periodEnd *time.Time) (*TransitionResult, error) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["subscription_status"] = status

	if err := s.userRepo.UpdateFields(user.ID, fields); err != nil {
		return nil, fmt.Errorf("persist entitlement: %w", err)
	}

	changed := user.SubscriptionStatus != status
	if changed {
		metrics.EntitlementTransitionsTotal.WithLabelValues(status).Inc()
		log.Info().
			Int64("user_id", user.ID).
			Str("from", user.SubscriptionStatus).
			Str("to", status).
			Msg("entitlement transition")

		s.publishChange(ctx, user.ID, status, periodEnd)

		if status == model.SubscriptionPremium {
			s.enqueueNotification(ctx, queue.KindPremiumWelcome, user)
		}
	}

	return &TransitionResult{Matched: true, UserID: user.ID, Status: status, Changed: changed}, nil
}

func (s *EntitlementService) unchanged(user *model.User) *TransitionResult {
	return &TransitionResult{Matched: true, UserID: user.ID, Status: user.SubscriptionStatus}
}

func (s *EntitlementService) publishChange(ctx context.Context, userID int64, status string, periodEnd *time.Time) {
	if s.publisher == nil {
		return
	}

	msg := &pubsub.EntitlementMessage{
		UserID:             userID,
		SubscriptionStatus: status,
	}
	if periodEnd != nil {
		msg.CurrentPeriodEnd = periodEnd.UTC().Format(time.RFC3339)
	}

	if err := s.publisher.PublishEntitlement(ctx, msg); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("failed to publish entitlement change")
	}
}

func (s *EntitlementService) enqueueNotification(ctx context.Context, kind string, user *model.User) {
	if s.notifyQueue == nil {
		return
	}

	msg := &queue.NotificationMessage{
		Kind:   kind,
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	}
	if err := s.notifyQueue.Push(ctx, msg); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Str("kind", kind).Msg("failed to enqueue notification")
	}
}

// VerifyCheckout is the synchronous fallback after the hosted checkout
// redirect: it confirms the session with the provider and applies the same
// checkout-completed transition the webhook would.
func (s *EntitlementService) VerifyCheckout(ctx context.Context, userID int64, sessionID string) (*dto.EntitlementResponse, error) {
	user, err := loadActiveUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}

	sess, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to retrieve checkout session")
		return nil, ErrBillingUnavailable
	}

	owned := sess.UserRef() == strconv.FormatInt(userID, 10) ||
		(user.StripeCustomerID != nil && sess.Customer == *user.StripeCustomerID)
	if !owned {
		return nil, ErrCheckoutMismatch
	}

	if !sess.Paid() {
		return nil, ErrCheckoutIncomplete
	}

	ev := &billing.Event{
		Kind:           billing.KindCheckoutCompleted,
		UserRef:        strconv.FormatInt(userID, 10),
		CustomerID:     sess.Customer,
		SubscriptionID: sess.Subscription,
		PaymentStatus:  sess.PaymentStatus,
	}
	if _, err := s.Apply(ctx, ev); err != nil {
		return nil, err
	}

	return s.currentEntitlement(userID)
}

// SyncSubscription is the manual fallback: it asks the provider for the
// authoritative subscription state and overwrites local entitlement with
// that snapshot.
func (s *EntitlementService) SyncSubscription(ctx context.Context, userID int64) (*dto.EntitlementResponse, error) {
	user, err := loadActiveUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	sub, err := s.findCurrentSubscription(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if sub == nil {
		// Nothing active or trialing at the provider: free snapshot.
		ev := &billing.Event{
			Kind:       billing.KindSubscriptionChanged,
			UserRef:    strconv.FormatInt(userID, 10),
			CustomerID: customerID,
		}
		if _, err := s.Apply(ctx, ev); err != nil {
			return nil, err
		}
		return s.currentEntitlement(userID)
	}

	ev := &billing.Event{
		Kind:              billing.KindSubscriptionChanged,
		UserRef:           strconv.FormatInt(userID, 10),
		CustomerID:        customerID,
		SubscriptionID:    sub.ID,
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		PeriodEnd:         sub.PeriodEnd(),
	}
	if _, err := s.Apply(ctx, ev); err != nil {
		return nil, err
	}

	resp, err := s.currentEntitlement(userID)
	if err != nil {
		return nil, err
	}
	resp.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	return resp, nil
}

// CreateCheckout ensures the Stripe customer exists and returns the hosted
// checkout URL for the configured premium price.
func (s *EntitlementService) CreateCheckout(ctx context.Context, userID int64) (string, error) {
	user, err := loadActiveUser(s.userRepo, userID)
	if err != nil {
		return "", err
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	url, err := s.gateway.CreateCheckoutSession(ctx, customerID, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to create checkout session")
		return "", ErrBillingUnavailable
	}
	return url, nil
}

// CreatePortal returns a billing-portal URL for self-service management.
func (s *EntitlementService) CreatePortal(ctx context.Context, userID int64) (string, error) {
	user, err := loadActiveUser(s.userRepo, userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID == nil {
		return "", ErrNoBillingAccount
	}

	url, err := s.gateway.CreatePortalSession(ctx, *user.StripeCustomerID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to create portal session")
		return "", ErrBillingUnavailable
	}
	return url, nil
}

// SetCancelAtPeriodEnd toggles auto-renewal on the stored subscription and
// applies the returned snapshot so local state stays fresh.
func (s *EntitlementService) SetCancelAtPeriodEnd(ctx context.Context, userID int64, cancel bool) (*dto.EntitlementResponse, error) {
	user, err := loadActiveUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	if user.StripeSubscriptionID == nil {
		return nil, ErrNoSubscription
	}

	sub, err := s.gateway.SetCancelAtPeriodEnd(ctx, *user.StripeSubscriptionID, cancel)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to update subscription")
		return nil, ErrBillingUnavailable
	}

	ev := &billing.Event{
		Kind:              billing.KindSubscriptionChanged,
		UserRef:           strconv.FormatInt(userID, 10),
		CustomerID:        sub.Customer,
		SubscriptionID:    sub.ID,
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		PeriodEnd:         sub.PeriodEnd(),
	}
	if _, err := s.Apply(ctx, ev); err != nil {
		return nil, err
	}

	resp, err := s.currentEntitlement(userID)
	if err != nil {
		return nil, err
	}
	resp.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	return resp, nil
}

// ensureCustomer returns the stored customer ref, creating the provider
// customer exactly once when no ref exists yet.
func (s *EntitlementService) ensureCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID != nil {
		return *user.StripeCustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, user.Email, user.Name, user.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to create billing customer")
		return "", ErrBillingUnavailable
	}

	if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{
		"stripe_customer_id": customerID,
	}); err != nil {
		return "", fmt.Errorf("persist customer ref: %w", err)
	}
	user.StripeCustomerID = &customerID

	return customerID, nil
}

// findCurrentSubscription looks for an active subscription, then a trialing
// one. Nil means the customer has neither.
func (s *EntitlementService) findCurrentSubscription(ctx context.Context, customerID string) (*billing.Subscription, error) {
	for _, status := range []string{"active", "trialing"} {
		subs, err := s.gateway.ListSubscriptions(ctx, customerID, status)
		if err != nil {
			log.Error().Err(err).Str("customer_id", customerID).Msg("failed to list subscriptions")
			return nil, ErrBillingUnavailable
		}
		if len(subs) > 0 {
			return subs[0], nil
		}
	}
	return nil, nil
}

func (s *EntitlementService) currentEntitlement(userID int64) (*dto.EntitlementResponse, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	resp := &dto.EntitlementResponse{
		SubscriptionStatus: user.SubscriptionStatus,
	}
	if user.CurrentPeriodEnd != nil {
		resp.CurrentPeriodEnd = user.CurrentPeriodEnd.UTC().Format(time.RFC3339)
	}
	return resp, nil
}
