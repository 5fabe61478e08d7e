package models

import "time"

// Message is one exchange in a persona thread. Never mutated once stored.
type Message struct {
	ID          int64     `json:"id"`
	SubID       int64     `json:"subId"`
	UserMessage string    `json:"userMessage"`
	AIResponse  string    `json:"aiResponse"`
	AudioURL    string    `json:"audioUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type InsertMessage struct {
	SubID       int64  `json:"subId" validate:"required|min:1"`
	UserMessage string `json:"userMessage" validate:"required|maxLen:4000"`
	AIResponse  string `json:"-"`
	AudioURL    string `json:"-"`
}
