package handler

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripelib "github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/versewise/versewise-server/config"
	"github.com/versewise/versewise-server/internal/api/middleware"
	"github.com/versewise/versewise-server/internal/model"
	"github.com/versewise/versewise-server/internal/model/dto"
	"github.com/versewise/versewise-server/internal/pkg/billing"
	"github.com/versewise/versewise-server/internal/pkg/pubsub"
	"github.com/versewise/versewise-server/internal/pkg/queue"
	"github.com/versewise/versewise-server/internal/pkg/response"
	"github.com/versewise/versewise-server/internal/repository"
	"github.com/versewise/versewise-server/internal/service"
	"github.com/versewise/versewise-server/internal/testutil"
)

// stubBillingGateway is a func-field stub of billing.Gateway.
type stubBillingGateway struct {
	CreateCheckoutSessionFunc func(ctx context.Context, customerID string, userID int64) (string, error)
	CreatePortalSessionFunc   func(ctx context.Context, customerID string) (string, error)
	GetCheckoutSessionFunc    func(ctx context.Context, sessionID string) (*billing.CheckoutSession, error)
	ListSubscriptionsFunc     func(ctx context.Context, customerID, status string) ([]*billing.Subscription, error)
	SetCancelFunc             func(ctx context.Context, subscriptionID string, cancel bool) (*billing.Subscription, error)
}

var _ billing.Gateway = (*stubBillingGateway)(nil)

func (f *stubBillingGateway) CreateCustomer(ctx context.Context, email, name string, userID int64) (string, error) {
	return "cus_test", nil
}

func (f *stubBillingGateway) CreateCheckoutSession(ctx context.Context, customerID string, userID int64) (string, error) {
	if f.CreateCheckoutSessionFunc != nil {
		return f.CreateCheckoutSessionFunc(ctx, customerID, userID)
	}
	return "https://checkout.example.com/session", nil
}

func (f *stubBillingGateway) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	if f.CreatePortalSessionFunc != nil {
		return f.CreatePortalSessionFunc(ctx, customerID)
	}
	return "https://portal.example.com/session", nil
}

func (f *stubBillingGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*billing.CheckoutSession, error) {
	if f.GetCheckoutSessionFunc != nil {
		return f.GetCheckoutSessionFunc(ctx, sessionID)
	}
	return nil, errors.New("stubBillingGateway: GetCheckoutSession not stubbed")
}

func (f *stubBillingGateway) GetSubscription(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	return nil, errors.New("stubBillingGateway: GetSubscription not stubbed")
}

func (f *stubBillingGateway) ListSubscriptions(ctx context.Context, customerID, status string) ([]*billing.Subscription, error) {
	if f.ListSubscriptionsFunc != nil {
		return f.ListSubscriptionsFunc(ctx, customerID, status)
	}
	return nil, nil
}

func (f *stubBillingGateway) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*billing.Subscription, error) {
	if f.SetCancelFunc != nil {
		return f.SetCancelFunc(ctx, subscriptionID, cancel)
	}
	return nil, errors.New("stubBillingGateway: SetCancelAtPeriodEnd not stubbed")
}

func (f *stubBillingGateway) ConstructWebhookEvent(payload []byte, sigHeader string) (stripelib.Event, error) {
	return stripelib.Event{}, errors.New("stubBillingGateway: ConstructWebhookEvent not stubbed")
}

type billingHandlerEnv struct {
	handler *BillingHandler
	gateway *stubBillingGateway
	repo    *repository.UserRepository
	db      *gorm.DB
}

func setupBillingHandler(t *testing.T) (*billingHandlerEnv, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	redisClient, redisCleanup := testutil.SetupTestRedis(t)

	userRepo := repository.NewUserRepository(db)
	gw := &stubBillingGateway{}
	notifyQueue := queue.NewQueue(redisClient, "test_notifications")
	publisher := pubsub.NewPublisher(redisClient)

	cfg := &config.Config{
		Subscription: config.SubscriptionConfig{FreeDailyMessages: 5},
	}

	entitlementService := service.NewEntitlementService(userRepo, gw, notifyQueue, publisher, cfg)

	env := &billingHandlerEnv{
		handler: NewBillingHandler(entitlementService),
		gateway: gw,
		repo:    userRepo,
		db:      db,
	}

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
		redisCleanup()
	}

	return env, cleanup
}

func billingRouter(h *BillingHandler, userID int64) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if userID != 0 {
			c.Set(middleware.UserIDKey, userID)
		}
		c.Next()
	})
	router.POST("/checkout", h.CreateCheckout)
	router.POST("/portal", h.CreatePortal)
	router.POST("/verify-checkout", h.VerifyCheckout)
	router.POST("/sync", h.SyncSubscription)
	router.POST("/cancel", h.CancelSubscription)
	router.POST("/resume", h.ResumeSubscription)
	return router
}

func TestBillingHandler_CreateCheckout_Success(t *testing.T) {
	env, cleanup := setupBillingHandler(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db)
	router := billingRouter(env.handler, user.ID)

	w := performRequest(router, "POST", "/checkout", nil)
	resp := parseResponse(t, w)

	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, "https://checkout.example.com/session", dataMap(t, resp)["url"])

	// First checkout creates and persists the billing customer.
	stored, err := env.repo.GetByID(user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.StripeCustomerID)
	assert.Equal(t, "cus_test", *stored.StripeCustomerID)
}

func TestBillingHandler_CreateCheckout_ProviderDown(t *testing.T) {
	env, cleanup := setupBillingHandler(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db)
	env.gateway.CreateCheckoutSessionFunc = func(ctx context.Context, customerID string, userID int64) (string, error) {
		return "", errors.New("stripe: 503")
	}
	router := billingRouter(env.handler, user.ID)

	w := performRequest(router, "POST", "/checkout", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeUpstreamError, resp.Code)
	assert.Equal(t, "upstream service unavailable, please try again", resp.Message)
}

func TestBillingHandler_CreateCheckout_Unauthenticated(t *testing.T) {
	env, cleanup := setupBillingHandler(t)
	defer cleanup()

	router := billingRouter(env.handler, 0)

	w := performRequest(router, "POST", "/checkout", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestBillingHandler_CreatePortal_Success(t *testing.T) {
	env, cleanup := setupBillingHandler(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db, testutil.WithStripeRefs("cus_123", ""))
	router := billingRouter(env.handler, user.ID)

	w := performRequest(router, "POST", "/portal", nil)
	resp := parseResponse(t, w)

	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, "https://portal.example.com/session", dataMap(t, resp)["url"])
}

func TestBillingHandler_CreatePortal_NoBillingAccount(t *testing.T) {
	env, cleanup := setupBillingHandler(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db)
	router := billingRouter(env.handler, user.ID)

	w := performRequest(router, "POST", "/portal", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeParamError, resp.Code)
	assert.Equal(t, "no billing account on file", resp.Message)
}

func TestBillingHandler_VerifyCheckout_Success(t *testing.T) {
	env, cleanup := setupBillingHandler(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db)
	env.gateway.GetCheckoutSessionFunc = func(ctx context.Context, sessionID string) (*billing.CheckoutSession, error) {
		return &billing.CheckoutSession{
			ID:            sessionID,
			Customer:      "cus_abc",
			Subscription:  "sub_abc",
			PaymentStatus: "paid",
			Metadata:      map[string]string{"user_id": strconv.FormatInt(user.ID, 10)},
		}, nil
	}
	router := billingRouter(env.handler, user.ID)

	w := performRequest(router, "POST", "/verify-checkout", dto.VerifyCheckoutRequest{
		SessionID: "cs_test_123",
	})
	resp := parseResponse(t, w)

	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, model.SubscriptionPremium, dataMap(t, resp)["subscription_status"])

	stored, err := env.repo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionPremium, stored.SubscriptionStatus)
	require.NotNil(t, stored.StripeSubscriptionID)
	assert.Equal(t, "sub_abc", *stored.StripeSubscriptionID)
}

func TestBillingHandler_VerifyCheckout_Unpaid(t *testing.T) {
	env, cleanup := setupBillingHandler(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db)
	env.gateway.GetCheckoutSessionFunc = func(ctx context.Context, sessionID string) (*billing.CheckoutSession, error) {
		return &billing.CheckoutSession{
			ID:            sessionID,
			Customer:      "cus_abc",
			PaymentStatus: "unpaid",
			Metadata:      map[string]string{"user_id": strconv.FormatInt(user.ID, 10)},
		}, nil
	}
	router := billingRouter(env.handler, user.ID)

	w := performRequest(router, "POST", "/verify-checkout", dto.VerifyCheckoutRequest{
		SessionID: "cs_test_123",
	})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodePaymentIncomplete, resp.Code)

	stored, err := env.repo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionFree, stored.SubscriptionStatus)
}

func TestBillingHandler_VerifyCheckout_WrongOwner(t *testing.T) {
	env, cleanup := setupBillingHandler(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db)
	env.gateway.GetCheckoutSessionFunc = func(ctx context.Context, sessionID string) (*billing.CheckoutSession, error) {
		return &billing.CheckoutSession{
			ID:            sessionID,
			Customer:      "cus_somebody_else",
			PaymentStatus: "paid",
			Metadata:      map[string]string{"user_id": "424242"},
		}, nil
	}
	router := billingRouter(env.handler, user.ID)

	w := performRequest(router, "POST", "/verify-checkout", dto.VerifyCheckoutRequest{
		SessionID: "cs_test_123",
	})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodePermissionDenied, resp.Code)
}

func TestBillingHandler_VerifyCheckout_MissingSessionID(t *testing.T) {
	env, cleanup := setupBillingHandler(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db)
	router := billingRouter(env.handler, user.ID)

	w := performRequest(router, "POST", "/verify-checkout", map[string]string{})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestBillingHandler_Sync_ActiveSubscription(t *testing.T) {
	env, cleanup := setupBillingHandler(t)
	defer cleanup()

	periodEnd := time.Now().Add(30 * 24 * time.Hour).Unix()
	user := testutil.TestUser(t, env.db, testutil.WithStripeRefs("cus_123", ""))
	env.gateway.ListSubscriptionsFunc = func(ctx context.Context, customerID, status string) ([]*billing.Subscription, error) {
		if status != "active" {
			return nil, nil
		}
		return []*billing.Subscription{{
			ID:               "sub_789",
			Customer:         customerID,
			Status:           "active",
			CurrentPeriodEnd: periodEnd,
		}}, nil
	}
	router := billingRouter(env.handler, user.ID)

	w := performRequest(router, "POST", "/sync", nil)
	resp := parseResponse(t, w)

	require.Equal(t, response.CodeSuccess, resp.Code)
	data := dataMap(t, resp)
	assert.Equal(t, model.SubscriptionPremium, data["subscription_status"])
	assert.NotEmpty(t, data["current_period_end"])

	stored, err := env.repo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionPremium, stored.SubscriptionStatus)
}

func TestBillingHandler_Sync_NothingAtProvider(t *testing.T) {
	env, cleanup := setupBillingHandler(t)
	defer cleanup()

	// Locally premium, but the provider has no live subscription.
	user := testutil.TestUser(t, env.db,
		testutil.WithPremium(),
		testutil.WithStripeRefs("cus_123", "sub_gone"),
	)
	router := billingRouter(env.handler, user.ID)

	w := performRequest(router, "POST", "/sync", nil)
	resp := parseResponse(t, w)

	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, model.SubscriptionFree, dataMap(t, resp)["subscription_status"])

	stored, err := env.repo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionFree, stored.SubscriptionStatus)
}

func TestBillingHandler_Cancel_Success(t *testing.T) {
	env, cleanup := setupBillingHandler(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db,
		testutil.WithPremium(),
		testutil.WithStripeRefs("cus_123", "sub_789"),
	)

	var gotCancel bool
	env.gateway.SetCancelFunc = func(ctx context.Context, subscriptionID string, cancel bool) (*billing.Subscription, error) {
		gotCancel = cancel
		return &billing.Subscription{
			ID:                subscriptionID,
			Customer:          "cus_123",
			Status:            "active",
			CancelAtPeriodEnd: cancel,
			CurrentPeriodEnd:  time.Now().Add(10 * 24 * time.Hour).Unix(),
		}, nil
	}
	router := billingRouter(env.handler, user.ID)

	w := performRequest(router, "POST", "/cancel", nil)
	resp := parseResponse(t, w)

	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.True(t, gotCancel)
	data := dataMap(t, resp)
	assert.Equal(t, model.SubscriptionPremium, data["subscription_status"])
	assert.Equal(t, true, data["cancel_at_period_end"])
}

func TestBillingHandler_Resume_Success(t *testing.T) {
	env, cleanup := setupBillingHandler(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db,
		testutil.WithPremium(),
		testutil.WithStripeRefs("cus_123", "sub_789"),
	)

	var gotCancel = true
	env.gateway.SetCancelFunc = func(ctx context.Context, subscriptionID string, cancel bool) (*billing.Subscription, error) {
		gotCancel = cancel
		return &billing.Subscription{
			ID:                subscriptionID,
			Customer:          "cus_123",
			Status:            "active",
			CancelAtPeriodEnd: cancel,
			CurrentPeriodEnd:  time.Now().Add(10 * 24 * time.Hour).Unix(),
		}, nil
	}
	router := billingRouter(env.handler, user.ID)

	w := performRequest(router, "POST", "/resume", nil)
	resp := parseResponse(t, w)

	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.False(t, gotCancel)
	assert.Equal(t, model.SubscriptionPremium, dataMap(t, resp)["subscription_status"])
}

func TestBillingHandler_Cancel_NoSubscription(t *testing.T) {
	env, cleanup := setupBillingHandler(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db)
	router := billingRouter(env.handler, user.ID)

	w := performRequest(router, "POST", "/cancel", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeParamError, resp.Code)
	assert.Equal(t, "no subscription on file", resp.Message)
}
