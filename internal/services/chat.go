package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/coah80/pastvoices/internal/catalog"
	"github.com/coah80/pastvoices/internal/models"
)

type ChatService struct {
	store  catalog.Store
	llm    *OpenAIClient
	tts    *ElevenLabsClient
	logger zerolog.Logger
}

func NewChatService(store catalog.Store, llm *OpenAIClient, tts *ElevenLabsClient, logger zerolog.Logger) *ChatService {
	return &ChatService{store: store, llm: llm, tts: tts, logger: logger}
}

func (s *ChatService) Messages(ctx context.Context, subID int64) ([]models.Message, error) {
	return s.store.ListMessages(ctx, subID)
}

// Send asks the persona for a reply and stores the exchange. The audio url
// is the persona's own voice file when it has one, otherwise synthesized
// speech when a TTS key is configured, otherwise empty.
func (s *ChatService) Send(ctx context.Context, in models.InsertMessage) (*models.Message, error) {
	if err := validateStruct("message", &in); err != nil {
		return nil, err
	}
	p, err := s.store.GetPersona(ctx, in.SubID)
	if err != nil {
		return nil, err
	}

	reply, err := s.llm.Complete(ctx, ConversationalPrompt(p.Prompt), in.UserMessage)
	if err != nil {
		return nil, err
	}

	audio := models.Deref(p.VoiceFile)
	switch {
	case audio != "":
	case s.tts.Enabled():
		url, err := s.tts.Speak(ctx, p.Name, reply)
		if err != nil {
			s.logger.Error().Err(err).Str("figure", p.Name).Msg("Error generating audio response")
		} else {
			audio = url
			s.logger.Info().Str("figure", p.Name).Str("audio", url).Msg("Generated audio response")
		}
	default:
		s.logger.Debug().Str("figure", p.Name).Msg("No voice file and no TTS key configured")
	}

	in.AIResponse = reply
	in.AudioURL = audio
	return s.store.CreateMessage(ctx, in)
}

// Voice returns spoken audio for text. A persona with its own voice file
// short-circuits synthesis.
func (s *ChatService) Voice(ctx context.Context, text, figure string, subID int64) (string, error) {
	if !s.tts.Enabled() {
		return "", ErrVoiceUnavailable
	}
	if text == "" || figure == "" {
		return "", invalid("Missing required parameters: text and figure")
	}
	if subID > 0 {
		p, err := s.store.GetPersona(ctx, subID)
		if err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return "", err
		}
		if p != nil && p.VoiceFile != nil {
			return *p.VoiceFile, nil
		}
	}
	return s.tts.Speak(ctx, figure, text)
}
