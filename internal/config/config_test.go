package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1000, cfg.Queue.MaxSize)
	assert.Equal(t, 60*time.Second, cfg.Queue.SendInterval)
	assert.Equal(t, time.Hour, cfg.RateLimit.Cooldown)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
printer:
  auth_token: secret-printer
queue:
  max_size: 5
  send_interval: 30s
friend_tokens:
  - name: Ada Lovelace
    label: ada-lovelace
    message: "On its way!"
    token: tok-ada
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "secret-printer", cfg.Printer.AuthToken)
	assert.Equal(t, 5, cfg.Queue.MaxSize)
	assert.Equal(t, 30*time.Second, cfg.Queue.SendInterval)

	ft := cfg.ResolveFriendToken("tok-ada")
	require.NotNil(t, ft)
	assert.Equal(t, "Ada Lovelace", ft.Name)
	assert.Equal(t, "On its way!", ft.Message)

	assert.Nil(t, cfg.ResolveFriendToken("wrong"))
	assert.Nil(t, cfg.ResolveFriendToken(""))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PRINTOMAT_PORT", "7070")
	t.Setenv("PRINTOMAT_PRINTER_TOKEN", "env-token")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "env-token", cfg.Printer.AuthToken)
}

func TestAddAndRemoveFriendToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)

	err = cfg.AddFriendToken(FriendToken{
		Name:    "Grace Hopper",
		Message: "Printing soon",
		Token:   "tok-grace",
	})
	require.NoError(t, err)

	ft := cfg.ResolveFriendToken("tok-grace")
	require.NotNil(t, ft)
	assert.Equal(t, "grace-hopper", ft.Label)

	// Mutations persist to the config file.
	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.ResolveFriendToken("tok-grace"))

	err = cfg.AddFriendToken(FriendToken{Name: "Grace Hopper", Message: "dup", Token: "tok-2"})
	assert.Error(t, err)

	require.NoError(t, cfg.RemoveFriendToken("grace-hopper"))
	assert.Nil(t, cfg.ResolveFriendToken("tok-grace"))

	assert.Error(t, cfg.RemoveFriendToken("grace-hopper"))
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"zero queue size", func(c *Config) { c.Queue.MaxSize = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"empty token secret", func(c *Config) {
			c.FriendTokens = []FriendToken{{Name: "x", Label: "x"}}
		}},
		{"duplicate token label", func(c *Config) {
			c.FriendTokens = []FriendToken{
				{Name: "x", Label: "x", Token: "a"},
				{Name: "x", Label: "x", Token: "b"},
			}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLabelFromName(t *testing.T) {
	assert.Equal(t, "ada-lovelace", LabelFromName("Ada Lovelace"))
	assert.Equal(t, "ada", LabelFromName("  ADA  "))
	assert.Equal(t, "a-b-c", LabelFromName("a  b\tc"))
}
