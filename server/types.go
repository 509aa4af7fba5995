package annoserv

import (
	"time"

	"github.com/bosley/soundanno/annotation"
)

const (
	MessageHello = "hello"
	MessageLabel = "label"
)

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Type      string    `json:"type"`
	ClientID  string    `json:"clientId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

type openResponse struct {
	Path string `json:"path"`
}

type annotateResponse struct {
	Label annotation.Label `json:"label"`
}

type neededResponse struct {
	File   string `json:"file"`
	Needed bool   `json:"needed"`
}

type libraryResponse struct {
	Dir   string   `json:"dir"`
	Files []string `json:"files"`
}
