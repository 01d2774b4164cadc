// Package config defines the typed crewview configuration and its defaults.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/agenticgokit/crewview/internal/utils"
)

// Viper keys
const (
	KeyServerURL      = "server_url"
	KeyTimeout        = "timeout"
	KeyHeartbeat      = "heartbeat"
	KeyReconnectBase  = "reconnect_base"
	KeyReconnectMax   = "reconnect_max"
	KeyReconnectTries = "reconnect_attempts"
	KeyPollInterval   = "poll_interval"
	KeySessionFile    = "session_file"
	KeyServeAddr      = "serve_addr"
)

// Config holds the resolved settings for one run
type Config struct {
	ServerURL         string
	Timeout           time.Duration
	Heartbeat         time.Duration
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	ReconnectAttempts int
	PollInterval      time.Duration
	SessionFile       string
	ServeAddr         string
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		ServerURL:         "http://localhost:5000",
		Timeout:           30 * time.Second,
		Heartbeat:         30 * time.Second,
		ReconnectBase:     time.Second,
		ReconnectMax:      30 * time.Second,
		ReconnectAttempts: 5,
		PollInterval:      5 * time.Second,
		SessionFile:       "~/.crewview/session.toml",
		ServeAddr:         "127.0.0.1:8686",
	}
}

// SetDefaults registers the built-in settings with v
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyServerURL, d.ServerURL)
	v.SetDefault(KeyTimeout, d.Timeout)
	v.SetDefault(KeyHeartbeat, d.Heartbeat)
	v.SetDefault(KeyReconnectBase, d.ReconnectBase)
	v.SetDefault(KeyReconnectMax, d.ReconnectMax)
	v.SetDefault(KeyReconnectTries, d.ReconnectAttempts)
	v.SetDefault(KeyPollInterval, d.PollInterval)
	v.SetDefault(KeySessionFile, d.SessionFile)
	v.SetDefault(KeyServeAddr, d.ServeAddr)
}

// Load resolves the typed config from v and validates it
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		ServerURL:         v.GetString(KeyServerURL),
		Timeout:           v.GetDuration(KeyTimeout),
		Heartbeat:         v.GetDuration(KeyHeartbeat),
		ReconnectBase:     v.GetDuration(KeyReconnectBase),
		ReconnectMax:      v.GetDuration(KeyReconnectMax),
		ReconnectAttempts: v.GetInt(KeyReconnectTries),
		PollInterval:      v.GetDuration(KeyPollInterval),
		SessionFile:       v.GetString(KeySessionFile),
		ServeAddr:         v.GetString(KeyServeAddr),
	}

	path, err := utils.ExpandHome(cfg.SessionFile)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionFile = path

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail later and less clearly
func (c Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Host == "" {
		return utils.NewValidationError(KeyServerURL, fmt.Sprintf("%q is not an absolute URL", c.ServerURL))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return utils.NewValidationError(KeyServerURL, "scheme must be http or https")
	}
	for key, d := range map[string]time.Duration{
		KeyTimeout:       c.Timeout,
		KeyHeartbeat:     c.Heartbeat,
		KeyReconnectBase: c.ReconnectBase,
		KeyPollInterval:  c.PollInterval,
	} {
		if d <= 0 {
			return utils.NewValidationError(key, "must be a positive duration")
		}
	}
	if c.ReconnectMax < c.ReconnectBase {
		return utils.NewValidationError(KeyReconnectMax, "must not be below reconnect_base")
	}
	if c.ReconnectAttempts < 0 {
		return utils.NewValidationError(KeyReconnectTries, "must not be negative")
	}
	return nil
}

// fileConfig is the on-disk layout; durations are written as strings
type fileConfig struct {
	ServerURL         string `toml:"server_url"`
	Timeout           string `toml:"timeout"`
	Heartbeat         string `toml:"heartbeat"`
	ReconnectBase     string `toml:"reconnect_base"`
	ReconnectMax      string `toml:"reconnect_max"`
	ReconnectAttempts int    `toml:"reconnect_attempts"`
	PollInterval      string `toml:"poll_interval"`
	SessionFile       string `toml:"session_file"`
	ServeAddr         string `toml:"serve_addr"`
}

// Encode renders c in the ~/.crewview.toml format
func Encode(c Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# crewview configuration\n# Every key can be overridden with a CREWVIEW_<KEY> environment variable.\n\n")

	fc := fileConfig{
		ServerURL:         c.ServerURL,
		Timeout:           c.Timeout.String(),
		Heartbeat:         c.Heartbeat.String(),
		ReconnectBase:     c.ReconnectBase.String(),
		ReconnectMax:      c.ReconnectMax.String(),
		ReconnectAttempts: c.ReconnectAttempts,
		PollInterval:      c.PollInterval.String(),
		SessionFile:       c.SessionFile,
		ServeAddr:         c.ServeAddr,
	}
	if err := toml.NewEncoder(&buf).Encode(fc); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the default configuration to path. Existing files are kept unless force is set.
func WriteDefault(path string, force bool) error {
	if utils.FileExists(path) && !force {
		return utils.NewUserError(
			fmt.Sprintf("Config file %s already exists", path),
			"Pass --force to overwrite it",
			nil,
		)
	}

	content, err := Encode(Default())
	if err != nil {
		return err
	}
	if err := utils.WriteFile(path, content); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
