package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the system-wide settings coordinator for the client daemon.
// Clean separation between configuration management and workflow logic.
type Config struct {
	Server  *ServerConfig  `json:"server"`
	Poll    *PollConfig    `json:"poll"`
	Media   *MediaConfig   `json:"media"`
	Journal *JournalConfig `json:"journal"`
	Push    *PushConfig    `json:"push"`
}

// ServerConfig locates the external REST backend.
type ServerConfig struct {
	BaseURL        string        `json:"base_url"`
	AuthToken      string        `json:"auth_token"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// PollConfig controls the shared poll service. Interval drives the fast
// feeds (requests, live rooms); GateInterval drives the weekend gate,
// which changes at most twice a week.
type PollConfig struct {
	Interval      time.Duration `json:"interval"`
	GateInterval  time.Duration `json:"gate_interval"`
	RefreshPerMin int           `json:"refresh_per_min"`
	RefreshBurst  int           `json:"refresh_burst"`
	ChannelBuffer int           `json:"channel_buffer"`
}

// MediaConfig carries the media SDK credentials. AppID and ServerSecret
// may legitimately be empty for admin deployments that never join a room;
// the session client turns their absence into a fatal, user-visible
// configuration error at join time.
type MediaConfig struct {
	AppID            string        `json:"app_id"`
	ServerSecret     string        `json:"server_secret"`
	TokenTTL         time.Duration `json:"token_ttl"`
	TokenFromBackend bool          `json:"token_from_backend"`
}

// JournalConfig locates the local SQLite join journal.
type JournalConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// PushConfig controls the WebSocket event subscription. When disabled or
// unreachable the poller alone keeps state fresh.
type PushConfig struct {
	Enabled      bool          `json:"enabled"`
	ReconnectMin time.Duration `json:"reconnect_min"`
	ReconnectMax time.Duration `json:"reconnect_max"`
	WriteTimeout time.Duration `json:"write_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
}

// DefaultConfig returns production-ready defaults: 5s fast polls and 10s
// gate polls match the backend's freshness expectations, the journal
// lives next to the binary, push is on with capped reconnect backoff.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			BaseURL:        "http://localhost:8080",
			RequestTimeout: 15 * time.Second,
		},
		Poll: &PollConfig{
			Interval:      5 * time.Second,
			GateInterval:  10 * time.Second,
			RefreshPerMin: 30,
			RefreshBurst:  5,
			ChannelBuffer: 8,
		},
		Media: &MediaConfig{
			TokenTTL:         2 * time.Hour,
			TokenFromBackend: false,
		},
		Journal: &JournalConfig{
			Path:    "./voicebridge.db",
			Timeout: 30 * time.Second,
		},
		Push: &PushConfig{
			Enabled:      true,
			ReconnectMin: time.Second,
			ReconnectMax: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
			ReadTimeout:  60 * time.Second,
		},
	}
}

// Validate prevents invalid configurations from reaching component
// initialization. Media credentials are deliberately not required here;
// see MediaConfig.
func (c *Config) Validate() error {
	if c.Server == nil {
		return fmt.Errorf("server configuration is required")
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server base URL cannot be empty")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server request timeout must be positive")
	}
	if c.Poll == nil {
		return fmt.Errorf("poll configuration is required")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Poll.GateInterval <= 0 {
		return fmt.Errorf("gate poll interval must be positive")
	}
	if c.Poll.RefreshPerMin <= 0 {
		return fmt.Errorf("refresh rate must be positive")
	}
	if c.Poll.RefreshBurst <= 0 {
		return fmt.Errorf("refresh burst must be positive")
	}
	if c.Poll.ChannelBuffer <= 0 {
		return fmt.Errorf("poll channel buffer must be positive")
	}
	if c.Media == nil {
		return fmt.Errorf("media configuration is required")
	}
	if c.Media.TokenTTL <= 0 {
		return fmt.Errorf("media token TTL must be positive")
	}
	if c.Journal == nil {
		return fmt.Errorf("journal configuration is required")
	}
	if c.Journal.Path == "" {
		return fmt.Errorf("journal path cannot be empty")
	}
	if c.Journal.Timeout <= 0 {
		return fmt.Errorf("journal timeout must be positive")
	}
	if c.Push == nil {
		return fmt.Errorf("push configuration is required")
	}
	if c.Push.ReconnectMin <= 0 || c.Push.ReconnectMax < c.Push.ReconnectMin {
		return fmt.Errorf("push reconnect backoff bounds are invalid")
	}
	if c.Push.WriteTimeout <= 0 || c.Push.ReadTimeout <= 0 {
		return fmt.Errorf("push timeouts must be positive")
	}
	return nil
}

// LoadFromEnv overlays environment variables on the defaults. Malformed
// values fall back silently, matching container deployment expectations.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if v := os.Getenv("VOICEBRIDGE_SERVER_URL"); v != "" {
		config.Server.BaseURL = v
	}
	if v := os.Getenv("VOICEBRIDGE_AUTH_TOKEN"); v != "" {
		config.Server.AuthToken = v
	}
	if v := os.Getenv("VOICEBRIDGE_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.RequestTimeout = d
		}
	}
	if v := os.Getenv("VOICEBRIDGE_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Poll.Interval = d
		}
	}
	if v := os.Getenv("VOICEBRIDGE_GATE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Poll.GateInterval = d
		}
	}
	if v := os.Getenv("VOICEBRIDGE_MEDIA_APP_ID"); v != "" {
		config.Media.AppID = v
	}
	if v := os.Getenv("VOICEBRIDGE_MEDIA_SERVER_SECRET"); v != "" {
		config.Media.ServerSecret = v
	}
	if v := os.Getenv("VOICEBRIDGE_MEDIA_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Media.TokenTTL = d
		}
	}
	if v := os.Getenv("VOICEBRIDGE_MEDIA_TOKEN_FROM_BACKEND"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Media.TokenFromBackend = b
		}
	}
	if v := os.Getenv("VOICEBRIDGE_JOURNAL_PATH"); v != "" {
		config.Journal.Path = v
	}
	if v := os.Getenv("VOICEBRIDGE_JOURNAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Journal.Timeout = d
		}
	}
	if v := os.Getenv("VOICEBRIDGE_PUSH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Push.Enabled = b
		}
	}

	return config
}

// ConfigFile mirrors Config for JSON parsing; durations are strings so
// operators can write "5s" instead of nanosecond counts.
type ConfigFile struct {
	Server  *ServerConfigFile  `json:"server"`
	Poll    *PollConfigFile    `json:"poll"`
	Media   *MediaConfigFile   `json:"media"`
	Journal *JournalConfigFile `json:"journal"`
	Push    *PushConfigFile    `json:"push"`
}

type ServerConfigFile struct {
	BaseURL        string `json:"base_url"`
	AuthToken      string `json:"auth_token"`
	RequestTimeout string `json:"request_timeout"`
}

type PollConfigFile struct {
	Interval      string `json:"interval"`
	GateInterval  string `json:"gate_interval"`
	RefreshPerMin int    `json:"refresh_per_min"`
	RefreshBurst  int    `json:"refresh_burst"`
	ChannelBuffer int    `json:"channel_buffer"`
}

type MediaConfigFile struct {
	AppID            string `json:"app_id"`
	ServerSecret     string `json:"server_secret"`
	TokenTTL         string `json:"token_ttl"`
	TokenFromBackend *bool  `json:"token_from_backend"`
}

type JournalConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type PushConfigFile struct {
	Enabled      *bool  `json:"enabled"`
	ReconnectMin string `json:"reconnect_min"`
	ReconnectMax string `json:"reconnect_max"`
	WriteTimeout string `json:"write_timeout"`
	ReadTimeout  string `json:"read_timeout"`
}

// LoadFromFile reads JSON configuration, overlaying parsed fields on the
// defaults and validating the result.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if file.Server != nil {
		if file.Server.BaseURL != "" {
			config.Server.BaseURL = file.Server.BaseURL
		}
		if file.Server.AuthToken != "" {
			config.Server.AuthToken = file.Server.AuthToken
		}
		if d, err := time.ParseDuration(file.Server.RequestTimeout); err == nil && file.Server.RequestTimeout != "" {
			config.Server.RequestTimeout = d
		}
	}

	if file.Poll != nil {
		if d, err := time.ParseDuration(file.Poll.Interval); err == nil && file.Poll.Interval != "" {
			config.Poll.Interval = d
		}
		if d, err := time.ParseDuration(file.Poll.GateInterval); err == nil && file.Poll.GateInterval != "" {
			config.Poll.GateInterval = d
		}
		if file.Poll.RefreshPerMin > 0 {
			config.Poll.RefreshPerMin = file.Poll.RefreshPerMin
		}
		if file.Poll.RefreshBurst > 0 {
			config.Poll.RefreshBurst = file.Poll.RefreshBurst
		}
		if file.Poll.ChannelBuffer > 0 {
			config.Poll.ChannelBuffer = file.Poll.ChannelBuffer
		}
	}

	if file.Media != nil {
		if file.Media.AppID != "" {
			config.Media.AppID = file.Media.AppID
		}
		if file.Media.ServerSecret != "" {
			config.Media.ServerSecret = file.Media.ServerSecret
		}
		if d, err := time.ParseDuration(file.Media.TokenTTL); err == nil && file.Media.TokenTTL != "" {
			config.Media.TokenTTL = d
		}
		if file.Media.TokenFromBackend != nil {
			config.Media.TokenFromBackend = *file.Media.TokenFromBackend
		}
	}

	if file.Journal != nil {
		if file.Journal.Path != "" {
			config.Journal.Path = file.Journal.Path
		}
		if d, err := time.ParseDuration(file.Journal.Timeout); err == nil && file.Journal.Timeout != "" {
			config.Journal.Timeout = d
		}
	}

	if file.Push != nil {
		if file.Push.Enabled != nil {
			config.Push.Enabled = *file.Push.Enabled
		}
		if d, err := time.ParseDuration(file.Push.ReconnectMin); err == nil && file.Push.ReconnectMin != "" {
			config.Push.ReconnectMin = d
		}
		if d, err := time.ParseDuration(file.Push.ReconnectMax); err == nil && file.Push.ReconnectMax != "" {
			config.Push.ReconnectMax = d
		}
		if d, err := time.ParseDuration(file.Push.WriteTimeout); err == nil && file.Push.WriteTimeout != "" {
			config.Push.WriteTimeout = d
		}
		if d, err := time.ParseDuration(file.Push.ReadTimeout); err == nil && file.Push.ReadTimeout != "" {
			config.Push.ReadTimeout = d
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence applies file > environment > defaults.
// File errors are ignored silently so environment/defaults still work.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}
