package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/coah80/pastvoices/internal/config"
)

var ErrChatUnavailable = errors.New("chat is not available - OPENAI_API_KEY is not configured")

const fallbackReply = "I'm sorry, I couldn't generate a response."

const conversationGuidelines = `

IMPORTANT CONVERSATION GUIDELINES:
1. Keep responses extremely concise - just ONE PARAGRAPH or at most one and a half paragraphs
2. Use a warm, friendly tone that matches your historical personality
3. Start with a direct answer before briefly elaborating
4. Include one brief interesting fact or perspective
5. Avoid all lengthy explanations and academic language
6. Use simple, conversational language as if speaking to a friend
7. If relevant, include your famous quote very briefly
8. End with a short question to encourage conversation
9. Maintain a casual, accessible speaking style
10. Aim for responses that would sound natural in speech (30-60 seconds when spoken)

Remember: This is a casual chat, not a lecture. Be brief, warm, and engaging.`

// ConversationalPrompt appends the chat style guidelines to a persona prompt.
func ConversationalPrompt(prompt string) string {
	return prompt + conversationGuidelines
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type OpenAIClient struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewOpenAIClient(cfg config.OpenAIConfig) *OpenAIClient {
	return &OpenAIClient{cfg: cfg, client: &http.Client{Timeout: 60 * time.Second}}
}

func (c *OpenAIClient) Enabled() bool {
	return c != nil && c.cfg.APIKey != ""
}

// Complete sends one system + user turn and returns the reply text.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	if !c.Enabled() {
		return "", ErrChatUnavailable
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	var data chatResponse
	jsonErr := json.Unmarshal(respBody, &data)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if jsonErr == nil && data.Error != nil && data.Error.Message != "" {
			return "", fmt.Errorf("openai: %s", data.Error.Message)
		}
		return "", fmt.Errorf("openai: HTTP %d", resp.StatusCode)
	}
	if jsonErr != nil {
		return "", fmt.Errorf("openai: invalid JSON response")
	}

	if len(data.Choices) == 0 || strings.TrimSpace(data.Choices[0].Message.Content) == "" {
		return fallbackReply, nil
	}
	return data.Choices[0].Message.Content, nil
}
