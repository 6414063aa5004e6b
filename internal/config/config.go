package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the game service listens on.
	DefaultAddr = ":43117"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 16
	// DefaultMaxClients bounds concurrent WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 256

	// DefaultTickRate is the fixed simulation frequency for every match.
	DefaultTickRate = 60.0
	// DefaultMatchWaitTimeout is how long a queued player waits before a bot steps in.
	DefaultMatchWaitTimeout = 5 * time.Second
	// DefaultForfeitGrace is the reconnect window before a disconnected player forfeits.
	DefaultForfeitGrace = 10 * time.Second
	// DefaultResumePolicy allows any participant to resume a paused match.
	DefaultResumePolicy = "any"

	// DefaultLogLevel controls verbosity for game service logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "game.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultHistoryPath is the SQLite database storing finished matches.
	DefaultHistoryPath = "game_history.db"
)

// Config captures all runtime tunables for the game service.
type Config struct {
	Address          string
	AllowedOrigins   []string
	MaxPayloadBytes  int64
	PingInterval     time.Duration
	MaxClients       int
	TickRate         float64
	MatchWaitTimeout time.Duration
	ForfeitGrace     time.Duration
	ResumePolicy     string
	TournamentURL    string
	JWTSecret        string
	HistoryPath      string
	ReplayDir        string
	Logging          LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the game service configuration from environment variables, applying sane
// defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:          getString("GAME_ADDR", DefaultAddr),
		AllowedOrigins:   parseList(os.Getenv("GAME_ALLOWED_ORIGINS")),
		MaxPayloadBytes:  DefaultMaxPayloadBytes,
		PingInterval:     DefaultPingInterval,
		MaxClients:       DefaultMaxClients,
		TickRate:         DefaultTickRate,
		MatchWaitTimeout: DefaultMatchWaitTimeout,
		ForfeitGrace:     DefaultForfeitGrace,
		ResumePolicy:     getString("GAME_RESUME_POLICY", DefaultResumePolicy),
		TournamentURL:    strings.TrimSpace(os.Getenv("GAME_TOURNAMENT_URL")),
		JWTSecret:        strings.TrimSpace(os.Getenv("GAME_JWT_SECRET")),
		HistoryPath:      getString("GAME_HISTORY_PATH", DefaultHistoryPath),
		ReplayDir:        strings.TrimSpace(os.Getenv("GAME_REPLAY_DIR")),
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("GAME_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("GAME_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("GAME_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("GAME_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GAME_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("GAME_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GAME_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("GAME_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GAME_TICK_RATE")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 || value > 240 {
			problems = append(problems, fmt.Sprintf("GAME_TICK_RATE must be a frequency in (0, 240], got %q", raw))
		} else {
			cfg.TickRate = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GAME_MATCH_WAIT_TIMEOUT")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("GAME_MATCH_WAIT_TIMEOUT must be a non-negative duration, got %q", raw))
		} else {
			cfg.MatchWaitTimeout = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GAME_FORFEIT_GRACE")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("GAME_FORFEIT_GRACE must be a positive duration, got %q", raw))
		} else {
			cfg.ForfeitGrace = duration
		}
	}

	switch cfg.ResumePolicy {
	case "any", "holder":
	default:
		problems = append(problems, fmt.Sprintf("GAME_RESUME_POLICY must be \"any\" or \"holder\", got %q", cfg.ResumePolicy))
	}

	if raw := strings.TrimSpace(os.Getenv("GAME_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("GAME_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GAME_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("GAME_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GAME_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("GAME_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GAME_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("GAME_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
