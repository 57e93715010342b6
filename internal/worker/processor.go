package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/versewise/versewise-server/internal/pkg/email"
	"github.com/versewise/versewise-server/internal/pkg/queue"
	"github.com/versewise/versewise-server/internal/repository"
)

// Sender delivers the notification mails the worker produces. Satisfied by
// email.Service; tests substitute a fake.
type Sender interface {
	SendVerification(to, name, verifyLink string) error
	SendPaymentFailed(to, name string) error
	SendPremiumWelcome(to, name string) error
}

var _ Sender = (*email.Service)(nil)

// Processor turns queued notifications into outbound mail.
type Processor struct {
	userRepo *repository.UserRepository
	sender   Sender
}

func NewProcessor(userRepo *repository.UserRepository, sender Sender) *Processor {
	return &Processor{
		userRepo: userRepo,
		sender:   sender,
	}
}

// Process delivers one notification. The queue is at-most-once on our side:
// a returned error is logged by the caller and the message is dropped, never
// requeued, so a flaky SMTP server cannot wedge the queue.
func (p *Processor) Process(ctx context.Context, msg *queue.NotificationMessage) error {
	user, err := p.userRepo.GetByID(msg.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Account purged between enqueue and delivery.
			log.Warn().
				Str("message_id", msg.ID).
				Str("kind", msg.Kind).
				Int64("user_id", msg.UserID).
				Msg("notification target no longer exists, dropping")
			return nil
		}
		return fmt.Errorf("failed to load user %d: %w", msg.UserID, err)
	}

	if !user.Active {
		log.Info().
			Str("message_id", msg.ID).
			Str("kind", msg.Kind).
			Int64("user_id", user.ID).
			Msg("notification target deactivated, dropping")
		return nil
	}

	// The live record wins over the snapshot on the message: the user may
	// have changed their display name since enqueue.
	switch msg.Kind {
	case queue.KindVerification:
		err = p.sender.SendVerification(user.Email, user.Name, msg.VerifyLink)
	case queue.KindPaymentFailed:
		err = p.sender.SendPaymentFailed(user.Email, user.Name)
	case queue.KindPremiumWelcome:
		err = p.sender.SendPremiumWelcome(user.Email, user.Name)
	default:
		log.Warn().
			Str("message_id", msg.ID).
			Str("kind", msg.Kind).
			Msg("unknown notification kind, dropping")
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to send %s mail to user %d: %w", msg.Kind, msg.UserID, err)
	}

	log.Info().
		Str("message_id", msg.ID).
		Str("kind", msg.Kind).
		Int64("user_id", user.ID).
		Msg("notification mail sent")

	return nil
}
