package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/versewise/versewise-server/internal/model"
	"github.com/versewise/versewise-server/internal/testutil"
)

func TestUserRepository_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	user := testutil.TestUser(t, db, testutil.WithEmail("test@example.com"))

	assert.NotZero(t, user.ID)
	assert.Equal(t, "test@example.com", user.Email)
	assert.Equal(t, model.SubscriptionFree, user.SubscriptionStatus)
}

func TestUserRepository_GetByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	created := testutil.TestUser(t, db)

	found, err := repo.GetByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, created.Name, found.Name)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)

	_, err := repo.GetByID(99999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUserRepository_GetByEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	testutil.TestUser(t, db, testutil.WithEmail("unique@example.com"))

	found, err := repo.GetByEmail("unique@example.com")
	require.NoError(t, err)
	assert.Equal(t, "unique@example.com", found.Email)
}

func TestUserRepository_GetByGoogleID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	created := testutil.TestUser(t, db, testutil.WithGoogleID("google-abc-123"))

	found, err := repo.GetByGoogleID("google-abc-123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = repo.GetByGoogleID("google-unknown")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUserRepository_GetByStripeRefs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	created := testutil.TestUser(t, db, testutil.WithStripeRefs("cus_123", "sub_456"))

	byCustomer, err := repo.GetByStripeCustomerID("cus_123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byCustomer.ID)

	bySubscription, err := repo.GetByStripeSubscriptionID("sub_456")
	require.NoError(t, err)
	assert.Equal(t, created.ID, bySubscription.ID)

	_, err = repo.GetByStripeCustomerID("cus_unknown")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUserRepository_GetByVerificationCode(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	created := testutil.TestUser(t, db, testutil.WithUnverified("codeabc1234567890def234567890abc"))

	found, err := repo.GetByVerificationCode("codeabc1234567890def234567890abc")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.False(t, found.EmailVerified)
}

func TestUserRepository_UpdateFields(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	user := testutil.TestUser(t, db)

	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC()
	err := repo.UpdateFields(user.ID, map[string]interface{}{
		"subscription_status": model.SubscriptionPremium,
		"current_period_end":  periodEnd,
	})
	require.NoError(t, err)

	updated, err := repo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionPremium, updated.SubscriptionStatus)
	require.NotNil(t, updated.CurrentPeriodEnd)
	assert.WithinDuration(t, periodEnd, *updated.CurrentPeriodEnd, time.Second)
}

func TestUserRepository_IncrementUsage(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	user := testutil.TestUser(t, db, testutil.WithUsage(2, time.Now().UTC()))

	require.NoError(t, repo.IncrementUsage(user.ID))

	updated, err := repo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.DailyMessageCount)
	assert.Equal(t, int64(3), updated.LifetimeMessageCount)
}

func TestUserRepository_RollUsageWindow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	user := testutil.TestUser(t, db, testutil.WithUsage(5, yesterday))

	today := time.Now().UTC().Truncate(24 * time.Hour)
	require.NoError(t, repo.RollUsageWindow(user.ID, today))

	updated, err := repo.GetByID(user.ID)
	require.NoError(t, err)
	// New window opens with this message already counted.
	assert.Equal(t, 1, updated.DailyMessageCount)
	assert.Equal(t, int64(6), updated.LifetimeMessageCount)
	require.NotNil(t, updated.UsageDate)
	assert.Equal(t, today.Day(), updated.UsageDate.UTC().Day())
}

func TestUserRepository_ResetStaleUsage(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	stale := testutil.TestUser(t, db, testutil.WithUsage(4, yesterday))
	fresh := testutil.TestUser(t, db, testutil.WithUsage(2, time.Now().UTC()))

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	affected, err := repo.ResetStaleUsage(today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	updated, err := repo.GetByID(stale.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.DailyMessageCount)

	untouched, err := repo.GetByID(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, untouched.DailyMessageCount)
}

func TestUserRepository_ExistsByEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	testutil.TestUser(t, db, testutil.WithEmail("exists@example.com"))

	exists, err := repo.ExistsByEmail("exists@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByEmail("notexists@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUserRepository_DeleteUnverifiedBefore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)

	expired := testutil.TestUser(t, db, testutil.WithUnverified("expired123456789012345678901234a"))
	longAgo := time.Now().Add(-72 * time.Hour)
	require.NoError(t, db.Model(expired).Update("verification_expires_at", longAgo).Error)

	pending := testutil.TestUser(t, db, testutil.WithUnverified("pending123456789012345678901234b"))
	verified := testutil.TestUser(t, db)

	cutoff := time.Now().Add(-24 * time.Hour)

	count, err := repo.CountUnverifiedBefore(cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	removed, err := repo.DeleteUnverifiedBefore(cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	assert.ErrorIs(t, db.First(&model.User{}, expired.ID).Error, gorm.ErrRecordNotFound)
	assert.NoError(t, db.First(&model.User{}, pending.ID).Error)
	assert.NoError(t, db.First(&model.User{}, verified.ID).Error)
}
