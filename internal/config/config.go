package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var Version = "dev"

const AppName = "pastvoices"

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required|in:trace,debug,info,warn,error"`
	Format string `mapstructure:"format" validate:"required|in:console,json"`
}

type StoreConfig struct {
	// "sqlite" keeps full persona records durable; "memory" reseeds on start
	// and replays the video-url record file.
	Type string `mapstructure:"type" validate:"required|in:sqlite,memory"`
	Path string `mapstructure:"path"`
}

type OptimizerConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	FFmpegPath   string `mapstructure:"ffmpeg_path" validate:"required"`
	MaxWidth     int    `mapstructure:"max_width" validate:"required|min:16"`
	VideoBitrate string `mapstructure:"video_bitrate" validate:"required"`
	AudioBitrate string `mapstructure:"audio_bitrate" validate:"required"`
	Preset       string `mapstructure:"preset" validate:"required"`
	// only mp4 output is supported: the encoder args are libx264/aac
	Format         string `mapstructure:"format" validate:"required|in:mp4"`
	DeleteOriginal bool   `mapstructure:"delete_original"`
	BatchSize      int    `mapstructure:"batch_size" validate:"required|min:1"`
}

type ThumbnailConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Timestamp string `mapstructure:"timestamp"`
	Size      string `mapstructure:"size"`
	Quality   int    `mapstructure:"quality"`
}

type MediaConfig struct {
	LargeAssetBytes  int64         `mapstructure:"large_asset_bytes" validate:"required|min:1"`
	MaintenanceGrace time.Duration `mapstructure:"maintenance_grace"`
}

type TaskConfig struct {
	Workers      int           `mapstructure:"workers" validate:"required|min:1"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	Retention    time.Duration `mapstructure:"retention"`
}

type RateLimitConfig struct {
	Window time.Duration `mapstructure:"window"`
	Max    int           `mapstructure:"max"`
}

type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	SizeMB  int  `mapstructure:"size_mb"`
	TTL     int  `mapstructure:"ttl_seconds"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
}

type ElevenLabsConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	ModelID string `mapstructure:"model_id"`
}

type DiscordConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	PingUserID string `mapstructure:"ping_user_id"`
}

type BackupConfig struct {
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Prefix    string `mapstructure:"s3_prefix"`
	S3Region    string `mapstructure:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
}

type Config struct {
	Env         string           `mapstructure:"env"`
	Port        int              `mapstructure:"port" validate:"required|min:1|max:65535"`
	ContentRoot string           `mapstructure:"content_root" validate:"required"`
	DataDir     string           `mapstructure:"data_dir" validate:"required"`
	PublicDir   string           `mapstructure:"public_dir"`
	CORSFile    string           `mapstructure:"cors_file"`
	AdminToken  string           `mapstructure:"admin_token"`
	Log         LogConfig        `mapstructure:"log"`
	Store       StoreConfig      `mapstructure:"store"`
	Optimizer   OptimizerConfig  `mapstructure:"optimizer"`
	Thumbnails  ThumbnailConfig  `mapstructure:"thumbnails"`
	Media       MediaConfig      `mapstructure:"media"`
	Tasks       TaskConfig       `mapstructure:"tasks"`
	RateLimit   RateLimitConfig  `mapstructure:"rate_limit"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
	OpenAI      OpenAIConfig     `mapstructure:"openai"`
	ElevenLabs  ElevenLabsConfig `mapstructure:"elevenlabs"`
	Discord     DiscordConfig    `mapstructure:"discord"`
	Backup      BackupConfig     `mapstructure:"backup"`
}

var envBindings = map[string]string{
	"env":                     "APP_ENV",
	"port":                    "PORT",
	"content_root":            "CONTENT_ROOT",
	"data_dir":                "DATA_DIR",
	"public_dir":              "PUBLIC_DIR",
	"admin_token":             "ADMIN_TOKEN",
	"log.level":               "LOG_LEVEL",
	"log.format":              "LOG_FORMAT",
	"store.type":              "STORE_TYPE",
	"store.path":              "STORE_PATH",
	"optimizer.enabled":       "OPTIMIZER_ENABLED",
	"optimizer.ffmpeg_path":   "FFMPEG_PATH",
	"media.large_asset_bytes": "LARGE_ASSET_BYTES",
	"media.maintenance_grace": "MAINTENANCE_GRACE",
	"metrics.enabled":         "METRICS_ENABLED",
	"openai.api_key":          "OPENAI_API_KEY",
	"elevenlabs.api_key":      "ELEVENLABS_API_KEY",
	"discord.webhook_url":     "DISCORD_WEBHOOK_URL",
	"discord.ping_user_id":    "DISCORD_PING_USER_ID",
	"backup.s3_bucket":        "S3_BUCKET",
	"backup.s3_prefix":        "S3_PREFIX",
	"backup.s3_region":        "S3_REGION",
	"backup.s3_endpoint":      "S3_ENDPOINT",
	"backup.s3_access_key":    "S3_ACCESS_KEY",
	"backup.s3_secret_key":    "S3_SECRET_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("port", 5000)
	v.SetDefault("content_root", "uploads")
	v.SetDefault("data_dir", "data")
	v.SetDefault("public_dir", "public")
	v.SetDefault("cors_file", "cors-origins.txt")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("store.type", "sqlite")

	v.SetDefault("optimizer.enabled", true)
	v.SetDefault("optimizer.ffmpeg_path", "ffmpeg")
	v.SetDefault("optimizer.max_width", 720)
	v.SetDefault("optimizer.video_bitrate", "1M")
	v.SetDefault("optimizer.audio_bitrate", "128k")
	v.SetDefault("optimizer.preset", "medium")
	v.SetDefault("optimizer.format", "mp4")
	v.SetDefault("optimizer.delete_original", false)
	v.SetDefault("optimizer.batch_size", 3)

	v.SetDefault("thumbnails.enabled", true)
	v.SetDefault("thumbnails.timestamp", "00:00:01")
	v.SetDefault("thumbnails.size", "320x180")
	v.SetDefault("thumbnails.quality", 2)

	v.SetDefault("media.large_asset_bytes", 100*1024*1024)
	v.SetDefault("media.maintenance_grace", 10*time.Minute)

	v.SetDefault("tasks.workers", 2)
	v.SetDefault("tasks.retry_backoff", 5*time.Second)
	v.SetDefault("tasks.retention", time.Hour)

	v.SetDefault("rate_limit.window", 60*time.Second)
	v.SetDefault("rate_limit.max", 120)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.size_mb", 8)
	v.SetDefault("cache.ttl_seconds", 30)

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.temperature", 0.8)

	v.SetDefault("elevenlabs.base_url", "https://api.elevenlabs.io/v1")
	v.SetDefault("elevenlabs.model_id", "eleven_turbo_v2")
}

// Load reads .env, then the optional config file at path, then environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	if conf.Store.Type == "sqlite" && conf.Store.Path == "" {
		conf.Store.Path = filepath.Join(conf.DataDir, AppName+".db")
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Config) Validate() error {
	vd := validate.Struct(c)
	if !vd.Validate() {
		return fmt.Errorf("invalid config: %s", vd.Errors.Error())
	}
	if c.Optimizer.Format != "mp4" {
		return fmt.Errorf("invalid config: optimizer format %q is not supported, use mp4", c.Optimizer.Format)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// VideoURLRecordPath is the flat id -> video url document.
func (c *Config) VideoURLRecordPath() string {
	return filepath.Join(c.DataDir, "video-urls.json")
}

// EnsureDirs creates the content root, its category subdirectories and the
// data directory.
func (c *Config) EnsureDirs() error {
	dirs := []string{c.ContentRoot, c.DataDir}
	for _, sub := range ContentSubdirs {
		dirs = append(dirs, filepath.Join(c.ContentRoot, sub))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", d, err)
		}
	}
	return nil
}
