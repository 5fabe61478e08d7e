package services

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/coah80/pastvoices/internal/config"
	"github.com/coah80/pastvoices/internal/media"
	"github.com/coah80/pastvoices/internal/util"
)

var ErrVoiceUnavailable = errors.New("voice generation is not available - ELEVENLABS_API_KEY is not configured")

var figureVoices = map[string]string{
	"Albert Einstein":        "TxGEqnHWrfWFTfGW9XjX",
	"Leonardo da Vinci":      "VR6AewLTigWG4xSOukaG",
	"Nikola Tesla":           "ErXwobaYiN019PkySvjV",
	"Socrates":               "pNInz6obpgDQGcFmaJgB",
	"Confucius":              "N2lVS1w4EtoT3dr4eOWO",
	"Martin Luther King Jr.": "ODq5zmih8GrVes37Dizd",
	"Mahatma Gandhi":         "SOYHLrjzK2X1ezoPC6cr",
	"Abraham Lincoln":        "jsCqWAovK2LkecY7zXl4",
	"William Shakespeare":    "ZQe5CZNOzWyzPSCn5a3c",
	"Nelson Mandela":         "bVMeCyTHy58xNoL34h3p",
	"Galileo Galilei":        "flq6f7yk4E4fJM5XTYuZ",
	"Marie Curie":            "EXAVITQu4vr4xnSDxMaL",
	"Cleopatra":              "jBpfuIE2acCO8z3wKNLl",
	"Joan of Arc":            "MF3mGyEYCl7XYWbV9V6O",
	"Amelia Earhart":         "21m00Tcm4TlvDq8ikWAM",
	"Frida Kahlo":            "AZnzlk1XvdvUeBnXmlld",
	"Aretha Franklin":        "z9fAnlkpzviPz146aGWa",
	"Ada Lovelace":           "XB0fDUnXU5powFXDhCwa",
	"Elizabeth I":            "D38z5RcWu1voky8WS1ja",
	"Mary Shelley":           "29vD33N1CtxCmqQRPOHJ",
	"Catherine the Great":    "oWAxZDx7w5VEj9dCyTzz",
	"Rosa Parks":             "IKne3meq5aSn9XLyUdCD",
}

const (
	defaultMaleVoice   = "ErXwobaYiN019PkySvjV"
	defaultFemaleVoice = "EXAVITQu4vr4xnSDxMaL"
)

// VoiceFor picks the TTS voice for a figure. Unknown names fall back on a
// crude guess from the last letter.
func VoiceFor(figure string) string {
	if id, ok := figureVoices[figure]; ok {
		return id
	}
	if strings.HasSuffix(figure, "a") {
		return defaultFemaleVoice
	}
	return defaultMaleVoice
}

// AudioCacheName is the file a figure's spoken text is cached under.
func AudioCacheName(figure, text string) string {
	sum := md5.Sum([]byte(figure + "-" + text))
	return hex.EncodeToString(sum[:]) + ".mp3"
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type ElevenLabsClient struct {
	cfg    config.ElevenLabsConfig
	lib    *media.Library
	client *http.Client
	logger zerolog.Logger
}

func NewElevenLabsClient(cfg config.ElevenLabsConfig, lib *media.Library, logger zerolog.Logger) *ElevenLabsClient {
	return &ElevenLabsClient{
		cfg:    cfg,
		lib:    lib,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger,
	}
}

func (c *ElevenLabsClient) Enabled() bool {
	return c != nil && c.cfg.APIKey != ""
}

// Speak returns the /uploads/audio url for text read in the figure's voice,
// synthesizing it only when no cached file exists.
func (c *ElevenLabsClient) Speak(ctx context.Context, figure, text string) (string, error) {
	if !c.Enabled() {
		return "", ErrVoiceUnavailable
	}

	out := c.lib.Path(config.AudioDir, AudioCacheName(figure, text))
	if _, ok := util.FileSize(out); ok {
		c.logger.Debug().Str("file", filepath.Base(out)).Msg("Using cached audio file")
		return c.lib.URL(out)
	}

	audio, err := c.synthesize(ctx, VoiceFor(figure), text)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", fmt.Errorf("creating audio dir: %w", err)
	}
	tmp := out + ".tmp"
	if err := os.WriteFile(tmp, audio, 0644); err != nil {
		return "", fmt.Errorf("writing audio: %w", err)
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("writing audio: %w", err)
	}
	return c.lib.URL(out)
}

func (c *ElevenLabsClient) synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	body, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: c.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       0.75,
			SimilarityBoost: 0.75,
			Style:           0.5,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=mp3_44100_128", strings.TrimRight(c.cfg.BaseURL, "/"), voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading elevenlabs response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("elevenlabs: HTTP %d", resp.StatusCode)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("elevenlabs: empty audio")
	}
	return data, nil
}
