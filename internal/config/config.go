package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

// ErrMissingToken is returned by Load when no bot token can be resolved.
var ErrMissingToken = errors.New("bot_token is required (set it in config.json or BOT_TOKEN)")

type Config struct {
	BotToken     string           `yaml:"bot_token" json:"bot_token"`
	DevBotToken  string           `yaml:"dev_bot_token" json:"dev_bot_token"`
	Debug        bool             `yaml:"debug" json:"debug"`
	SlashGuilds  []string         `yaml:"slash_guilds" json:"slash_guilds"`
	OwnerIDs     []string         `yaml:"owner_ids" json:"owner_ids"`
	LogLevel     string           `yaml:"log_level" json:"log_level"`
	LogFile      string           `yaml:"log_file" json:"log_file"`
	DatabasePath string           `yaml:"database_path" json:"database_path"`
	AdminToken   string           `yaml:"admin_token" json:"admin_token"`
	ErrorChannel string           `yaml:"error_channel" json:"error_channel"`
	Colour       bool             `yaml:"colour" json:"colour"`
	HTTP         HTTPConfig       `yaml:"http" json:"http"`
	Polls        PollConfig       `yaml:"polls" json:"polls"`
	Snipe        SnipeConfig      `yaml:"snipe" json:"snipe"`
	Moderation   ModerationConfig `yaml:"moderation" json:"moderation"`
	EmbedColors  EmbedColors      `yaml:"embed_colors" json:"embed_colors"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

type PollConfig struct {
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" json:"sweep_interval_seconds"`
}

type SnipeConfig struct {
	Capacity int `yaml:"capacity" json:"capacity"`
}

type ModerationConfig struct {
	ConfirmTimeoutSeconds int    `yaml:"confirm_timeout_seconds" json:"confirm_timeout_seconds"`
	DefaultReason         string `yaml:"default_reason" json:"default_reason"`
	BanPurgeDays          int    `yaml:"ban_purge_days" json:"ban_purge_days"`
}

type EmbedColors struct {
	Case    int `yaml:"case" json:"case"`
	Warning int `yaml:"warning" json:"warning"`
	Error   int `yaml:"error" json:"error"`
}

func DefaultConfig() Config {
	return Config{
		LogLevel:     "info",
		DatabasePath: "main.db",
		Colour:       true,
		HTTP:         HTTPConfig{Enabled: false, Addr: ":8080"},
		Polls:        PollConfig{SweepIntervalSeconds: 60},
		Snipe:        SnipeConfig{Capacity: 1000},
		Moderation: ModerationConfig{
			ConfirmTimeoutSeconds: 300,
			DefaultReason:         "No Reason Provided.",
			BanPurgeDays:          1,
		},
		EmbedColors: EmbedColors{
			Case:    0x5865F2,
			Warning: 0xE67E22,
			Error:   0xED4245,
		},
	}
}

// SweepInterval is the poll sweeper period.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Polls.SweepIntervalSeconds) * time.Second
}

// ConfirmTimeout bounds how long a moderation prompt waits for an answer.
func (c Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Moderation.ConfirmTimeoutSeconds) * time.Second
}

// Token picks the token the bot should log in with.
func (c Config) Token() string {
	if c.Debug && c.DevBotToken != "" {
		return c.DevBotToken
	}
	if c.BotToken != "" {
		return c.BotToken
	}
	return c.DevBotToken
}

func (c Config) IsOwner(userID string) bool {
	for _, id := range c.OwnerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Load resolves the configuration: defaults, then the config file, then the
// environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path := ResolvePath(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}

	applyEnv(&cfg)
	if cfg.Token() == "" {
		return Config{}, ErrMissingToken
	}
	normalize(&cfg)

	return cfg, nil
}

// ResolvePath returns CONFIG_PATH or the first existing config file, local
// files first.
func ResolvePath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	candidates := []string{"config.json", "config.yaml"}
	if global := GlobalPath(); global != "" {
		candidates = append(candidates, global)
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// GlobalPath is the per-user config file, ~/.config/spanner-v2/config.json.
func GlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "spanner-v2", "config.json")
}

func applyEnv(cfg *Config) {
	cfg.BotToken = envString("BOT_TOKEN", cfg.BotToken)
	cfg.DevBotToken = envString("DEV_BOT_TOKEN", cfg.DevBotToken)
	cfg.Debug = envBool("DEBUG", cfg.Debug)
	cfg.SlashGuilds = envList("SLASH_GUILDS", cfg.SlashGuilds)
	cfg.OwnerIDs = envList("OWNER_IDS", cfg.OwnerIDs)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = envString("LOG_FILE", cfg.LogFile)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.AdminToken = envString("ADMIN_TOKEN", cfg.AdminToken)
	cfg.ErrorChannel = envString("ERROR_CHANNEL", cfg.ErrorChannel)
	cfg.HTTP.Enabled = envBool("HTTP_ENABLED", cfg.HTTP.Enabled)
	cfg.HTTP.Addr = envString("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Polls.SweepIntervalSeconds = envInt("POLL_SWEEP_SECONDS", cfg.Polls.SweepIntervalSeconds)
	cfg.Snipe.Capacity = envInt("SNIPE_CAPACITY", cfg.Snipe.Capacity)
	cfg.Moderation.ConfirmTimeoutSeconds = envInt("CONFIRM_TIMEOUT_SECONDS", cfg.Moderation.ConfirmTimeoutSeconds)
}

func normalize(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.Polls.SweepIntervalSeconds <= 0 {
		cfg.Polls.SweepIntervalSeconds = defaults.Polls.SweepIntervalSeconds
	}
	if cfg.Snipe.Capacity <= 0 {
		cfg.Snipe.Capacity = defaults.Snipe.Capacity
	}
	if cfg.Moderation.ConfirmTimeoutSeconds <= 0 {
		cfg.Moderation.ConfirmTimeoutSeconds = defaults.Moderation.ConfirmTimeoutSeconds
	}
	if strings.TrimSpace(cfg.Moderation.DefaultReason) == "" {
		cfg.Moderation.DefaultReason = defaults.Moderation.DefaultReason
	}
	if cfg.Moderation.BanPurgeDays < 0 || cfg.Moderation.BanPurgeDays > 7 {
		cfg.Moderation.BanPurgeDays = defaults.Moderation.BanPurgeDays
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = defaults.DatabasePath
	}
	// debug mode only makes sense with at least one test guild
	if len(cfg.SlashGuilds) == 0 {
		cfg.Debug = false
	}
}

// BuildLogger returns a JSON zap logger. When file is set, entries are also
// written to a rotated log file.
func BuildLogger(level, file string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if file == "" {
		return logger, nil
	}

	rotated := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), rotated, cfg.Level)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error", "critical":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

// envList accepts comma or colon separated ids.
func envList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	fields := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ':' })
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if field = strings.TrimSpace(field); field != "" {
			out = append(out, field)
		}
	}
	return out
}
