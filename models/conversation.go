package models

import "time"

// History line prefixes. The conversation log is a flat string of
// alternating "User: ..." and "Assistant: ..." lines.
const (
	UserLinePrefix      = "User: "
	AssistantLinePrefix = "Assistant: "
)

type ConversationSession struct {
	SessionID   string    `json:"sessionId"`
	History     string    `json:"history"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type SessionSummary struct {
	SessionID   string    `json:"sessionId"`
	TurnCount   int       `json:"turnCount"`
	Preview     string    `json:"preview,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type ChatRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"sessionId,omitempty"`
}

type ChatResponse struct {
	Answer      string    `json:"answer"`
	SessionID   string    `json:"sessionId"`
	Sources     []Source  `json:"sources"`
	LastUpdated time.Time `json:"lastUpdated"`
}
