package cron

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/versewise/versewise-server/internal/repository"
	"github.com/versewise/versewise-server/internal/service"
)

type Service struct {
	quotaService      *service.QuotaService
	userRepo          *repository.UserRepository
	verifyExpireHours int
	stopChan          chan struct{}
}

func NewService(
	quotaService *service.QuotaService,
	userRepo *repository.UserRepository,
	verifyExpireHours int,
) *Service {
	return &Service{
		quotaService:      quotaService,
		userRepo:          userRepo,
		verifyExpireHours: verifyExpireHours,
		stopChan:          make(chan struct{}),
	}
}

// Start launches the background jobs.
func (s *Service) Start() {
	go s.runDailyUsageReset()
	go s.runUnverifiedPurge()
	log.Info().Msg("cron service started (usage reset + unverified purge)")
}

// Stop terminates the background jobs.
func (s *Service) Stop() {
	close(s.stopChan)
	log.Info().Msg("cron service stopped")
}

// runDailyUsageReset fires at UTC midnight, then every 24h.
func (s *Service) runDailyUsageReset() {
	now := time.Now().UTC()
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	timer := time.NewTimer(nextMidnight.Sub(now))

	for {
		select {
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			s.resetDailyUsage()
			timer.Reset(24 * time.Hour)
		}
	}
}

// resetDailyUsage zeroes stale daily message counters.
func (s *Service) resetDailyUsage() {
	log.Info().Msg("starting daily usage reset")
	count, err := s.quotaService.ResetDailyCounters()
	if err != nil {
		log.Error().Err(err).Msg("failed to reset daily usage counters")
		return
	}
	log.Info().Int64("users", count).Msg("daily usage reset completed")
}

// runUnverifiedPurge removes abandoned unverified accounts hourly.
func (s *Service) runUnverifiedPurge() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.purgeUnverified()
		}
	}
}

// purgeUnverified deletes accounts whose verification window lapsed.
func (s *Service) purgeUnverified() {
	if s.userRepo == nil {
		return
	}

	expireHours := s.verifyExpireHours
	if expireHours <= 0 {
		expireHours = 24
	}
	cutoff := time.Now().Add(-time.Duration(expireHours) * time.Hour)

	removed, err := s.userRepo.DeleteUnverifiedBefore(cutoff)
	if err != nil {
		log.Error().Err(err).Msg("failed to purge unverified accounts")
		return
	}
	if removed > 0 {
		log.Info().Int64("removed", removed).Msg("purged unverified accounts")
	}
}

// RunNow triggers the usage reset immediately (tests or manual use).
func (s *Service) RunNow() error {
	log.Info().Msg("manual usage reset triggered")
	_, err := s.quotaService.ResetDailyCounters()
	return err
}
