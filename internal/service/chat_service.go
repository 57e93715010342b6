package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/versewise/versewise-server/internal/model"
	"github.com/versewise/versewise-server/internal/model/dto"
	"github.com/versewise/versewise-server/internal/pkg/llm"
	"github.com/versewise/versewise-server/internal/pkg/metrics"
)

var ErrGenerationFailed = errors.New("answer generation failed")

// ChatService runs the metered conversation operation. Admission is checked
// at the route; this service only generates and meters. No transcript is
// stored server-side: the client replays history it wants considered.
type ChatService struct {
	generator    llm.Generator
	quotaService *QuotaService
}

func NewChatService(generator llm.Generator, quotaService *QuotaService) *ChatService {
	return &ChatService{
		generator:    generator,
		quotaService: quotaService,
	}
}

// Ask generates the whole answer in one call. Usage is recorded only after
// generation succeeds; a failed generation costs nothing.
func (s *ChatService) Ask(ctx context.Context, user *model.User, req *dto.AskRequest) (*dto.AskResponse, error) {
	prompt := llm.BuildPrompt(req.Question, toTurns(req.History))

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		metrics.ChatRequestsTotal.WithLabelValues("upstream_error").Inc()
		log.Error().Err(err).Int64("user_id", user.ID).Msg("generation failed")
		return nil, ErrGenerationFailed
	}

	metrics.ChatRequestsTotal.WithLabelValues("ok").Inc()
	usage := s.recordAndBuildUsage(user)

	return &dto.AskResponse{
		Answer: answer,
		Usage:  usage,
	}, nil
}

// Stream generates the answer incrementally, invoking onDelta per chunk.
// The returned usage info belongs in the terminal stream event; usage is
// recorded only when the stream ran to completion.
func (s *ChatService) Stream(ctx context.Context, user *model.User, req *dto.AskRequest, onDelta func(text string) error) (*dto.UsageInfo, error) {
	prompt := llm.BuildPrompt(req.Question, toTurns(req.History))

	if err := s.generator.GenerateStream(ctx, prompt, onDelta); err != nil {
		metrics.ChatRequestsTotal.WithLabelValues("upstream_error").Inc()
		log.Error().Err(err).Int64("user_id", user.ID).Msg("stream generation failed")
		return nil, ErrGenerationFailed
	}

	metrics.ChatRequestsTotal.WithLabelValues("ok").Inc()
	return s.recordAndBuildUsage(user), nil
}

// recordAndBuildUsage meters the completed operation and returns the fresh
// usage block. Metering failures are logged, not surfaced: the user already
// has their answer.
func (s *ChatService) recordAndBuildUsage(user *model.User) *dto.UsageInfo {
	if err := s.quotaService.RecordUsage(user.ID); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to record usage")
		return s.quotaService.BuildUsageInfo(user, time.Now().UTC())
	}

	usage, err := s.quotaService.GetUsageInfo(user.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to load usage info")
		return s.quotaService.BuildUsageInfo(user, time.Now().UTC())
	}
	return usage
}

func toTurns(history []dto.ChatTurn) []llm.Turn {
	if len(history) == 0 {
		return nil
	}
	turns := make([]llm.Turn, 0, len(history))
	for _, h := range history {
		turns = append(turns, llm.Turn{Role: h.Role, Text: h.Text})
	}
	return turns
}
