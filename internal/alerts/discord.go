package alerts

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/coah80/pastvoices/internal/config"
)

const (
	colorOrange = 0xFFA500
	colorRed    = 0xFF4444
	colorGreen  = 0x2ECC71
)

// Field is one embed field; empty values are dropped.
type Field struct {
	Name  string
	Value string
}

type executeFunc func(webhookID, token string, params *discordgo.WebhookParams) error

// Discord posts embeds to a webhook. Each category has its own cooldown so a
// burst of identical failures produces a single message.
type Discord struct {
	webhookID string
	token     string
	pingUser  string
	logger    zerolog.Logger

	mu        sync.Mutex
	cooldowns map[string]time.Time
	now       func() time.Time
	execute   executeFunc
	async     bool
}

// NewDiscord returns nil when no webhook is configured; a nil *Discord is a
// valid no-op notifier.
func NewDiscord(cfg config.DiscordConfig, logger zerolog.Logger) (*Discord, error) {
	if cfg.WebhookURL == "" {
		return nil, nil
	}
	id, token, err := parseWebhookURL(cfg.WebhookURL)
	if err != nil {
		return nil, err
	}
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	return &Discord{
		webhookID: id,
		token:     token,
		pingUser:  cfg.PingUserID,
		logger:    logger,
		cooldowns: make(map[string]time.Time),
		now:       time.Now,
		async:     true,
		execute: func(webhookID, token string, params *discordgo.WebhookParams) error {
			_, err := session.WebhookExecute(webhookID, token, false, params)
			return err
		},
	}, nil
}

// parseWebhookURL pulls id and token out of
// https://discord.com/api/webhooks/<id>/<token>.
func parseWebhookURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid discord webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("invalid discord webhook url: missing id or token")
}

func (d *Discord) send(category string, cooldown time.Duration, ping bool, color int, title, description string, fields ...Field) {
	if d == nil {
		return
	}

	d.mu.Lock()
	now := d.now()
	if cooldown > 0 {
		if last, ok := d.cooldowns[category]; ok && now.Sub(last) < cooldown {
			d.mu.Unlock()
			return
		}
	}
	d.cooldowns[category] = now
	d.mu.Unlock()

	var embedFields []*discordgo.MessageEmbedField
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		embedFields = append(embedFields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  truncate(f.Value, 1024),
			Inline: true,
		})
	}

	params := &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       title,
			Description: truncate(description, 2048),
			Color:       color,
			Fields:      embedFields,
			Timestamp:   now.UTC().Format(time.RFC3339),
			Footer:      &discordgo.MessageEmbedFooter{Text: config.AppName + " " + config.Version},
		}},
	}
	if ping && d.pingUser != "" {
		params.Content = fmt.Sprintf("<@%s>", d.pingUser)
	}

	deliver := func() {
		if err := d.execute(d.webhookID, d.token, params); err != nil {
			d.logger.Warn().Err(err).Str("category", category).Msg("Discord alert failed")
		}
	}
	if d.async {
		go deliver()
		return
	}
	deliver()
}

func (d *Discord) ServerStarted(addr string) {
	d.send("server-start", 0, false, colorGreen, "Server Started", fmt.Sprintf("%s %s listening on %s", config.AppName, config.Version, addr))
}

func (d *Discord) ServerStopping() {
	d.send("server-stop", 0, false, colorOrange, "Server Stopping", config.AppName+" is shutting down")
}

func (d *Discord) OptimizationFailed(personaID int64, file string, err error) {
	persona := ""
	if personaID > 0 {
		persona = fmt.Sprintf("%d", personaID)
	}
	d.send("optimizer", 30*time.Second, true, colorRed, "Video Optimization Failed", "The original upload is still being served.",
		Field{Name: "Persona", Value: persona},
		Field{Name: "File", Value: truncate(file, 200)},
		Field{Name: "Error", Value: truncate(err.Error(), 500)},
	)
}

func (d *Discord) MaintenanceFailed(job string, err error) {
	d.send("maintenance-failed", 60*time.Second, true, colorRed, "Storage Maintenance Failed", err.Error(),
		Field{Name: "Job", Value: job},
	)
}

func (d *Discord) MaintenanceFinished(deleted int, reclaimed string, moved int) {
	d.send("maintenance", 0, false, colorGreen, "Storage Maintenance Complete", "",
		Field{Name: "Deleted", Value: fmt.Sprintf("%d", deleted)},
		Field{Name: "Reclaimed", Value: reclaimed},
		Field{Name: "Moved", Value: fmt.Sprintf("%d", moved)},
	)
}

func (d *Discord) LowDiskSpace(availGB float64) {
	d.send("disk", 30*time.Minute, true, colorOrange, "Low Disk Space", fmt.Sprintf("Only %.1fGB free on the content volume", availGB))
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}
