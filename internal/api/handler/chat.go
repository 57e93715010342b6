package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/versewise/versewise-server/internal/api/middleware"
	"github.com/versewise/versewise-server/internal/model/dto"
	"github.com/versewise/versewise-server/internal/pkg/response"
	"github.com/versewise/versewise-server/internal/service"
)

type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// Ask answers a question in one response.
// POST /api/v1/chat/ask
func (h *ChatHandler) Ask(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.chatService.Ask(c.Request.Context(), user, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGenerationFailed):
			response.UpstreamError(c, "")
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, resp)
}

// Stream answers a question as a server-sent event stream: `delta` events
// carry text chunks, one final `done` event carries the usage block, and a
// mid-stream failure emits an `error` event before closing.
// POST /api/v1/chat/stream
func (h *ChatHandler) Stream(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.Flush()

	onDelta := func(text string) error {
		c.SSEvent("delta", dto.StreamDelta{Text: text})
		c.Writer.Flush()
		return nil
	}

	usage, err := h.chatService.Stream(c.Request.Context(), user, &req, onDelta)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", user.ID).Msg("chat stream aborted")
		c.SSEvent("error", dto.StreamError{Message: "answer generation failed, please try again"})
		c.Writer.Flush()
		return
	}

	c.SSEvent("done", dto.StreamDone{Usage: usage})
	c.Writer.Flush()
}
