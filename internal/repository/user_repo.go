package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/versewise/versewise-server/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

func (r *UserRepository) GetByID(id int64) (*model.User, error) {
	var user model.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByGoogleID(googleID string) (*model.User, error) {
	var user model.User
	err := r.db.Where("google_id = ?", googleID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByStripeCustomerID(customerID string) (*model.User, error) {
	var user model.User
	err := r.db.Where("stripe_customer_id = ?", customerID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByStripeSubscriptionID(subscriptionID string) (*model.User, error) {
	var user model.User
	err := r.db.Where("stripe_subscription_id = ?", subscriptionID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByVerificationCode(code string) (*model.User, error) {
	var user model.User
	err := r.db.Where("verification_code = ?", code).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Update(user *model.User) error {
	return r.db.Save(user).Error
}

func (r *UserRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}

func (r *UserRepository) IncrementUsage(id int64) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"daily_message_count":    gorm.Expr("daily_message_count + 1"),
		"lifetime_message_count": gorm.Expr("lifetime_message_count + 1"),
	}).Error
}

func (r *UserRepository) RollUsageWindow(id int64, usageDate time.Time) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"daily_message_count":    1,
		"usage_date":             usageDate,
		"lifetime_message_count": gorm.Expr("lifetime_message_count + 1"),
	}).Error
}

func (r *UserRepository) ResetStaleUsage(today time.Time) (int64, error) {
	res := r.db.Model(&model.User{}).
		Where("usage_date IS NOT NULL AND usage_date < ? AND daily_message_count > 0", today).
		Updates(map[string]interface{}{
			"daily_message_count": 0,
			"usage_date":          today,
		})
	return res.RowsAffected, res.Error
}

func (r *UserRepository) ExistsByEmail(email string) (bool, error) {
	var count int64
	err := r.db.Model(&model.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) CountUnverifiedBefore(cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.User{}).Where(
		"email_verified = ? AND verification_expires_at IS NOT NULL AND verification_expires_at < ?",
		false, cutoff,
	).Count(&count).Error
	return count, err
}

func (r *UserRepository) DeleteUnverifiedBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where(
		"email_verified = ? AND verification_expires_at IS NOT NULL AND verification_expires_at < ?",
		false, cutoff,
	).Delete(&model.User{})
	return res.RowsAffected, res.Error
}
