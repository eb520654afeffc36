package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Printer   PrinterConfig   `yaml:"printer"`
	Queue     QueueConfig     `yaml:"queue"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Logging   LoggingConfig   `yaml:"logging"`

	// FriendTokens are the priority credentials. They are edited through the
	// operator API and written back to the config file, so access goes
	// through the lookup/mutation methods below.
	FriendTokens []FriendToken `yaml:"friend_tokens"`

	path string
	mu   sync.RWMutex
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type PrinterConfig struct {
	// AuthToken is the single token the printer client must present on the
	// WebSocket handshake.
	AuthToken string `yaml:"auth_token"`
}

type QueueConfig struct {
	MaxSize      int           `yaml:"max_size"`
	SendInterval time.Duration `yaml:"send_interval"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type RateLimitConfig struct {
	Cooldown time.Duration `yaml:"cooldown"`
}

type ArchiveConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	RetainDays int    `yaml:"retain_days"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FriendToken is a pre-provisioned priority credential: a secret mapped to a
// display name and an acknowledgment message shown to the submitter.
type FriendToken struct {
	Name    string `yaml:"name" json:"name"`
	Label   string `yaml:"label" json:"label"`
	Message string `yaml:"message" json:"message"`
	Token   string `yaml:"token" json:"token"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/printomat.db",
		},
		Queue: QueueConfig{
			MaxSize:      1000,
			SendInterval: 60 * time.Second,
			PollInterval: 1 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Cooldown: 1 * time.Hour,
		},
		Archive: ArchiveConfig{
			Path:       "./data/archives",
			RetainDays: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()
	cfg.path = configPath

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PRINTOMAT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PRINTOMAT_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PRINTOMAT_PRINTER_TOKEN"); v != "" {
		cfg.Printer.AuthToken = v
	}
	if v := os.Getenv("PRINTOMAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Queue.MaxSize < 1 {
		return fmt.Errorf("queue max size must be at least 1")
	}

	if c.Queue.SendInterval < 0 {
		return fmt.Errorf("send interval must be non-negative")
	}

	if c.Queue.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	if c.RateLimit.Cooldown < 0 {
		return fmt.Errorf("rate limit cooldown must be non-negative")
	}

	if c.Archive.Enabled && c.Archive.RetainDays < 1 {
		return fmt.Errorf("archive retention must be at least 1 day")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	seen := make(map[string]bool, len(c.FriendTokens))
	for _, ft := range c.FriendTokens {
		if ft.Token == "" {
			return fmt.Errorf("friend token %q has an empty secret", ft.Label)
		}
		if seen[ft.Label] {
			return fmt.Errorf("duplicate friend token label: %s", ft.Label)
		}
		seen[ft.Label] = true
	}

	return nil
}

// ResolveFriendToken looks up a priority credential by its secret value.
// Returns nil when the secret is unknown.
func (c *Config) ResolveFriendToken(secret string) *FriendToken {
	if secret == "" {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.FriendTokens {
		if c.FriendTokens[i].Token == secret {
			ft := c.FriendTokens[i]
			return &ft
		}
	}
	return nil
}

func (c *Config) ListFriendTokens() []FriendToken {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tokens := make([]FriendToken, len(c.FriendTokens))
	copy(tokens, c.FriendTokens)
	return tokens
}

func (c *Config) AddFriendToken(ft FriendToken) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ft.Label == "" {
		ft.Label = LabelFromName(ft.Name)
	}
	for _, existing := range c.FriendTokens {
		if existing.Label == ft.Label {
			return fmt.Errorf("friend token with label %q already exists", ft.Label)
		}
	}

	c.FriendTokens = append(c.FriendTokens, ft)
	return c.save()
}

func (c *Config) RemoveFriendToken(label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.FriendTokens {
		if existing.Label == label {
			c.FriendTokens = append(c.FriendTokens[:i], c.FriendTokens[i+1:]...)
			return c.save()
		}
	}
	return fmt.Errorf("friend token with label %q not found", label)
}

// save writes the config back to its file. Caller must hold c.mu.
func (c *Config) save() error {
	if c.path == "" {
		return nil
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LabelFromName derives a stable label from a display name, e.g.
// "Ada Lovelace" -> "ada-lovelace".
func LabelFromName(name string) string {
	label := strings.ToLower(strings.TrimSpace(name))
	label = strings.Join(strings.Fields(label), "-")
	return label
}
