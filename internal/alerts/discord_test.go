package alerts

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coah80/pastvoices/internal/config"
)

func newTestDiscord(t *testing.T) (*Discord, *[]*discordgo.WebhookParams) {
	t.Helper()
	d, err := NewDiscord(config.DiscordConfig{
		WebhookURL: "https://discord.com/api/webhooks/123456/tok-en",
		PingUserID: "42",
	}, zerolog.Nop())
	require.NoError(t, err)

	var sent []*discordgo.WebhookParams
	d.async = false
	d.execute = func(id, token string, p *discordgo.WebhookParams) error {
		assert.Equal(t, "123456", id)
		assert.Equal(t, "tok-en", token)
		sent = append(sent, p)
		return nil
	}
	return d, &sent
}

func TestNewDiscord_DisabledWithoutWebhook(t *testing.T) {
	d, err := NewDiscord(config.DiscordConfig{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, d)

	// nil notifier methods are safe
	d.OptimizationFailed(1, "a.mp4", errors.New("boom"))
}

func TestNewDiscord_RejectsBadURL(t *testing.T) {
	_, err := NewDiscord(config.DiscordConfig{WebhookURL: "https://discord.com/api/channels/1"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestDiscord_OptimizationFailedEmbed(t *testing.T) {
	d, sent := newTestDiscord(t)
	d.OptimizationFailed(7, "1700-abc-talk.mp4", errors.New("ffmpeg exited with code 1"))

	require.Len(t, *sent, 1)
	p := (*sent)[0]
	assert.Equal(t, "<@42>", p.Content)
	require.Len(t, p.Embeds, 1)
	e := p.Embeds[0]
	assert.Equal(t, "Video Optimization Failed", e.Title)
	assert.Equal(t, colorRed, e.Color)
	require.Len(t, e.Fields, 3)
	assert.Equal(t, "Persona", e.Fields[0].Name)
	assert.Equal(t, "7", e.Fields[0].Value)
}

func TestDiscord_CooldownPerCategory(t *testing.T) {
	d, sent := newTestDiscord(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	d.OptimizationFailed(1, "a.mp4", errors.New("x"))
	d.OptimizationFailed(2, "b.mp4", errors.New("y"))
	d.MaintenanceFailed("cleanup", errors.New("z"))
	assert.Len(t, *sent, 2)

	now = now.Add(31 * time.Second)
	d.OptimizationFailed(3, "c.mp4", errors.New("w"))
	assert.Len(t, *sent, 3)
}

func TestParseWebhookURL(t *testing.T) {
	id, token, err := parseWebhookURL("https://discordapp.com/api/v10/webhooks/99/abc")
	require.NoError(t, err)
	assert.Equal(t, "99", id)
	assert.Equal(t, "abc", token)
}
