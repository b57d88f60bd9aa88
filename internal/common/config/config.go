// Package config provides configuration management for compeek.
// Values come from defaults, an optional config.yaml, and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/compeek/compeek/internal/common/logger"
)

// Config holds all configuration sections.
type Config struct {
	Server  ServerConfig         `mapstructure:"server"`
	Auth    AuthConfig           `mapstructure:"auth"`
	Desktop DesktopConfig        `mapstructure:"desktop"`
	Info    InfoConfig           `mapstructure:"info"`
	Bash    BashConfig           `mapstructure:"bash"`
	Agent   AgentConfig          `mapstructure:"agent"`
	Runs    RunsConfig           `mapstructure:"runs"`
	Logging logger.LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds Tool Server HTTP configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
	// MCP sessions idle longer than this are closed. 0 keeps them until DELETE.
	MCPSessionIdle int `mapstructure:"mcpSessionIdle"` // in seconds
	MCPMaxSessions int `mapstructure:"mcpMaxSessions"`
}

// AuthConfig holds the shared bearer secret. Empty disables the check.
type AuthConfig struct {
	Token string `mapstructure:"token"`
}

// DesktopConfig selects and configures the desktop backend.
type DesktopConfig struct {
	Backend       string `mapstructure:"backend"` // x11 or vnc
	Mode          string `mapstructure:"mode"`
	Display       string `mapstructure:"display"`
	VNCHost       string `mapstructure:"vncHost"`
	VNCPort       int    `mapstructure:"vncPort"`
	VNCTimeout    int    `mapstructure:"vncTimeout"` // in seconds, per relay call
	ScreenshotDir string `mapstructure:"screenshotDir"`
	Width         int    `mapstructure:"width"`        // logical width the agent sees
	Height        int    `mapstructure:"height"`       // logical height the agent sees
	ScreenWidth   int    `mapstructure:"screenWidth"`  // actual width, 0 means same as logical
	ScreenHeight  int    `mapstructure:"screenHeight"` // actual height, 0 means same as logical
	TypeDelayMs   int    `mapstructure:"typeDelayMs"`
}

// InfoConfig feeds GET /api/info.
type InfoConfig struct {
	SessionName   string `mapstructure:"sessionName"`
	VNCPort       int    `mapstructure:"vncPort"`
	TunnelAPIFile string `mapstructure:"tunnelApiFile"`
	TunnelVNCFile string `mapstructure:"tunnelVncFile"`
}

// BashConfig configures shell execution.
type BashConfig struct {
	Shell   string `mapstructure:"shell"`
	Timeout int    `mapstructure:"timeout"` // in seconds
}

// AgentConfig configures the LLM loop.
type AgentConfig struct {
	APIKey             string `mapstructure:"apiKey"`
	BaseURL            string `mapstructure:"baseUrl"`
	Model              string `mapstructure:"model"`
	MaxIterations      int    `mapstructure:"maxIterations"`
	MaxTokens          int    `mapstructure:"maxTokens"`
	ThinkingBudget     int    `mapstructure:"thinkingBudget"`
	RequestTimeout     int    `mapstructure:"requestTimeout"`  // in seconds
	RetryMaxElapsed    int    `mapstructure:"retryMaxElapsed"` // in seconds
	ContainerURL       string `mapstructure:"containerUrl"`
	ContainerToken     string `mapstructure:"containerToken"`
	HealthCheckTimeout int    `mapstructure:"healthCheckTimeout"` // in seconds
}

// RunsConfig configures the run service and its history store.
type RunsConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Driver     string `mapstructure:"driver"` // sqlite3, pgx or memory
	SQLitePath string `mapstructure:"sqlitePath"`
	DSN        string `mapstructure:"dsn"`
	MaxConns   int    `mapstructure:"maxConns"`
	MinConns   int    `mapstructure:"minConns"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// MCPSessionIdleDuration returns the idle limit for MCP sessions.
func (s *ServerConfig) MCPSessionIdleDuration() time.Duration {
	return time.Duration(s.MCPSessionIdle) * time.Second
}

// Addr returns host:port.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Addr returns host:port.
func (r *RunsConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// TimeoutDuration returns the bash timeout as a time.Duration.
func (b *BashConfig) TimeoutDuration() time.Duration {
	return time.Duration(b.Timeout) * time.Second
}

// VNCTimeoutDuration returns the per-call relay timeout.
func (d *DesktopConfig) VNCTimeoutDuration() time.Duration {
	return time.Duration(d.VNCTimeout) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 150)
	v.SetDefault("server.mcpSessionIdle", 1800)
	v.SetDefault("server.mcpMaxSessions", 64)

	v.SetDefault("auth.token", "")

	v.SetDefault("desktop.backend", "x11")
	v.SetDefault("desktop.mode", "full")
	v.SetDefault("desktop.display", ":1")
	v.SetDefault("desktop.vncHost", "localhost")
	v.SetDefault("desktop.vncPort", 5900)
	v.SetDefault("desktop.vncTimeout", 30)
	v.SetDefault("desktop.screenshotDir", "")
	v.SetDefault("desktop.width", 1280)
	v.SetDefault("desktop.height", 720)
	v.SetDefault("desktop.screenWidth", 0)
	v.SetDefault("desktop.screenHeight", 0)
	v.SetDefault("desktop.typeDelayMs", 12)

	v.SetDefault("info.sessionName", "Desktop")
	v.SetDefault("info.vncPort", 6080)
	v.SetDefault("info.tunnelApiFile", "/tmp/tunnel-api.url")
	v.SetDefault("info.tunnelVncFile", "/tmp/tunnel-vnc.url")

	v.SetDefault("bash.shell", "/bin/bash")
	v.SetDefault("bash.timeout", 120)

	v.SetDefault("agent.apiKey", "")
	v.SetDefault("agent.baseUrl", "https://api.anthropic.com")
	v.SetDefault("agent.model", "claude-sonnet-4-5")
	v.SetDefault("agent.maxIterations", 50)
	v.SetDefault("agent.maxTokens", 16384)
	v.SetDefault("agent.thinkingBudget", 10240)
	v.SetDefault("agent.requestTimeout", 300)
	v.SetDefault("agent.retryMaxElapsed", 120)
	v.SetDefault("agent.containerUrl", "http://localhost:3001")
	v.SetDefault("agent.containerToken", "")
	v.SetDefault("agent.healthCheckTimeout", 5)

	v.SetDefault("runs.host", "127.0.0.1")
	v.SetDefault("runs.port", 3100)
	v.SetDefault("runs.driver", "sqlite3")
	v.SetDefault("runs.sqlitePath", "compeek-runs.db")
	v.SetDefault("runs.dsn", "")
	v.SetDefault("runs.maxConns", 10)
	v.SetDefault("runs.minConns", 2)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", logger.DetectFormat())
	v.SetDefault("logging.outputPath", "stderr")
}

// Load reads configuration from the default locations.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration, looking for config.yaml in configPath first.
// Environment variables use the prefix COMPEEK_ (e.g. COMPEEK_SERVER_PORT).
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("COMPEEK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Env names used by the desktop container image.
	_ = v.BindEnv("server.port", "COMPEEK_SERVER_PORT", "PORT")
	_ = v.BindEnv("auth.token", "COMPEEK_AUTH_TOKEN", "API_TOKEN")
	_ = v.BindEnv("desktop.display", "COMPEEK_DESKTOP_DISPLAY", "DISPLAY")
	_ = v.BindEnv("desktop.mode", "COMPEEK_DESKTOP_MODE", "DESKTOP_MODE")
	_ = v.BindEnv("desktop.vncHost", "COMPEEK_DESKTOP_VNC_HOST", "SIDECAR_TARGET")
	_ = v.BindEnv("desktop.vncPort", "COMPEEK_DESKTOP_VNC_PORT", "SIDECAR_VNC_PORT")
	_ = v.BindEnv("info.sessionName", "COMPEEK_SESSION_NAME")
	_ = v.BindEnv("agent.apiKey", "COMPEEK_AGENT_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("agent.baseUrl", "COMPEEK_AGENT_BASE_URL", "ANTHROPIC_BASE_URL")
	_ = v.BindEnv("agent.containerUrl", "COMPEEK_AGENT_CONTAINER_URL")
	_ = v.BindEnv("runs.sqlitePath", "COMPEEK_RUNS_SQLITE_PATH")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/compeek/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Server.MCPSessionIdle < 0 {
		errs = append(errs, "server.mcpSessionIdle must not be negative")
	}
	if cfg.Server.MCPMaxSessions <= 0 {
		errs = append(errs, "server.mcpMaxSessions must be positive")
	}
	if cfg.Runs.Port <= 0 || cfg.Runs.Port > 65535 {
		errs = append(errs, "runs.port must be between 1 and 65535")
	}

	switch cfg.Desktop.Backend {
	case "x11", "vnc":
	default:
		errs = append(errs, "desktop.backend must be one of: x11, vnc")
	}
	if cfg.Desktop.Width <= 0 || cfg.Desktop.Height <= 0 {
		errs = append(errs, "desktop.width and desktop.height must be positive")
	}
	if cfg.Desktop.ScreenWidth < 0 || cfg.Desktop.ScreenHeight < 0 {
		errs = append(errs, "desktop.screenWidth and desktop.screenHeight must not be negative")
	}
	if cfg.Desktop.VNCTimeout <= 0 {
		errs = append(errs, "desktop.vncTimeout must be positive")
	}
	if cfg.Bash.Timeout <= 0 {
		errs = append(errs, "bash.timeout must be positive")
	}

	if cfg.Agent.MaxIterations <= 0 {
		errs = append(errs, "agent.maxIterations must be positive")
	}
	if cfg.Agent.ThinkingBudget >= cfg.Agent.MaxTokens {
		errs = append(errs, "agent.thinkingBudget must be lower than agent.maxTokens")
	}

	switch cfg.Runs.Driver {
	case "sqlite3", "memory":
	case "pgx":
		if cfg.Runs.DSN == "" {
			errs = append(errs, "runs.dsn is required when runs.driver is pgx")
		}
	default:
		errs = append(errs, "runs.driver must be one of: sqlite3, pgx, memory")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
