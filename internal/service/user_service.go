package service

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/versewise/versewise-server/internal/model"
	"github.com/versewise/versewise-server/internal/model/dto"
	"github.com/versewise/versewise-server/internal/repository"
)

// loadActiveUser fetches a user and treats soft-deleted accounts the same
// as missing ones, so a token outliving the account stops working.
func loadActiveUser(repo *repository.UserRepository, userID int64) (*model.User, error) {
	user, err := repo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !user.Active {
		return nil, ErrUserNotFound
	}
	return user, nil
}

type UserService struct {
	userRepo     *repository.UserRepository
	quotaService *QuotaService
}

func NewUserService(userRepo *repository.UserRepository, quotaService *QuotaService) *UserService {
	return &UserService{
		userRepo:     userRepo,
		quotaService: quotaService,
	}
}

// GetProfile returns the signed-in user with the entitlement and usage
// blocks the account page renders.
func (s *UserService) GetProfile(userID int64) (*dto.UserInfo, error) {
	user, err := loadActiveUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}

	info := buildUserInfo(user)
	info.Usage = s.quotaService.BuildUsageInfo(user, time.Now().UTC())
	return info, nil
}

// UpdateProfile changes the display name. Nothing else is editable.
func (s *UserService) UpdateProfile(userID int64, req *dto.UpdateProfileRequest) (*dto.UserInfo, error) {
	user, err := loadActiveUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = *req.Name
		if err := s.userRepo.Update(user); err != nil {
			return nil, err
		}
	}

	info := buildUserInfo(user)
	info.Usage = s.quotaService.BuildUsageInfo(user, time.Now().UTC())
	return info, nil
}

// DeleteAccount soft-deletes the user. The row stays so billing references
// and lifetime counters survive; authentication fails from now on.
func (s *UserService) DeleteAccount(userID int64) error {
	user, err := loadActiveUser(s.userRepo, userID)
	if err != nil {
		return err
	}

	return s.userRepo.UpdateFields(user.ID, map[string]interface{}{
		"active": false,
	})
}
