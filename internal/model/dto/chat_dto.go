package dto

// ChatTurn is one prior exchange the client replays for context. The server
// keeps no transcript.
type ChatTurn struct {
	Role string `json:"role" binding:"required,oneof=user assistant"`
	Text string `json:"text" binding:"required"`
}

// AskRequest is the payload for a metered chat request.
type AskRequest struct {
	Question string     `json:"question" binding:"required,min=1,max=4000"`
	History  []ChatTurn `json:"history,omitempty" binding:"omitempty,max=20,dive"`
}

// AskResponse is the whole-answer reply.
type AskResponse struct {
	Answer string     `json:"answer"`
	Usage  *UsageInfo `json:"usage,omitempty"`
}

// StreamDelta is one `delta` event on the answer stream.
type StreamDelta struct {
	Text string `json:"text"`
}

// StreamDone is the terminal `done` event on the answer stream.
type StreamDone struct {
	Usage *UsageInfo `json:"usage,omitempty"`
}

// StreamError is the `error` event emitted when generation fails mid-stream.
type StreamError struct {
	Message string `json:"message"`
}
