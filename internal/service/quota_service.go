package service

import (
	"errors"
	"time"

	"github.com/versewise/versewise-server/config"
	"github.com/versewise/versewise-server/internal/model"
	"github.com/versewise/versewise-server/internal/model/dto"
	"github.com/versewise/versewise-server/internal/repository"
)

var ErrPremiumRequired = errors.New("premium subscription required")

// QuotaDecision is the outcome of the daily-allowance policy.
type QuotaDecision struct {
	Allowed   bool
	Remaining int
	Unlimited bool
	ResetAt   *time.Time
}

type QuotaService struct {
	userRepo *repository.UserRepository
	cfg      *config.Config
}

func NewQuotaService(userRepo *repository.UserRepository, cfg *config.Config) *QuotaService {
	return &QuotaService{
		userRepo: userRepo,
		cfg:      cfg,
	}
}

// CanProceed applies the daily-allowance policy to an already-loaded user.
// Premium users are unlimited. Everyone else gets the configured allowance
// per calendar day (UTC); a counter from an earlier day counts as fresh.
func (s *QuotaService) CanProceed(user *model.User, now time.Time) QuotaDecision {
	if user.IsPremium() {
		return QuotaDecision{Allowed: true, Unlimited: true}
	}

	allowance := s.cfg.Subscription.FreeDailyMessages
	resetAt := nextMidnight(now)

	if user.UsageDate == nil || !sameDay(*user.UsageDate, now) {
		// Window rolled over, full allowance available.
		return QuotaDecision{
			Allowed:   allowance > 0,
			Remaining: allowance,
			ResetAt:   &resetAt,
		}
	}

	remaining := allowance - user.DailyMessageCount
	if remaining < 0 {
		remaining = 0
	}

	return QuotaDecision{
		Allowed:   remaining > 0,
		Remaining: remaining,
		ResetAt:   &resetAt,
	}
}

// RequirePremium is the admission rule at the chat endpoint: only premium
// users may proceed, regardless of remaining allowance.
func (s *QuotaService) RequirePremium(user *model.User) error {
	if !user.IsPremium() {
		return ErrPremiumRequired
	}
	return nil
}

// RecordUsage counts one consumed message. Callers invoke it only after the
// metered operation succeeded.
func (s *QuotaService) RecordUsage(userID int64) error {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if user.UsageDate != nil && sameDay(*user.UsageDate, now) {
		return s.userRepo.IncrementUsage(userID)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.userRepo.RollUsageWindow(userID, today)
}

// ResetDailyCounters zeroes counters whose window is older than today.
func (s *QuotaService) ResetDailyCounters() (int64, error) {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.userRepo.ResetStaleUsage(today)
}

// GetUsageInfo builds the usage block for profile responses.
func (s *QuotaService) GetUsageInfo(userID int64) (*dto.UsageInfo, error) {
	user, err := loadActiveUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	return s.BuildUsageInfo(user, time.Now().UTC()), nil
}

// BuildUsageInfo derives the display form of the allowance policy.
func (s *QuotaService) BuildUsageInfo(user *model.User, now time.Time) *dto.UsageInfo {
	info := &dto.UsageInfo{
		LifetimeCount: user.LifetimeMessageCount,
	}

	if user.IsPremium() {
		info.Unlimited = true
		return info
	}

	decision := s.CanProceed(user, now)
	info.DailyLimit = s.cfg.Subscription.FreeDailyMessages
	info.Remaining = decision.Remaining
	info.UsedToday = info.DailyLimit - decision.Remaining
	if info.UsedToday < 0 {
		info.UsedToday = 0
	}
	if decision.ResetAt != nil {
		info.ResetAt = decision.ResetAt.Format(time.RFC3339)
	}

	return info
}

func sameDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func nextMidnight(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}
