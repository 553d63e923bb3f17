// Package config builds the chess-relay configuration from command-line
// flags and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
)

// TelegramOrigin is always allowed once an origin allow-list is configured;
// the relay is embedded in a Telegram web app.
const TelegramOrigin = "https://t.me"

// Flag names.
const (
	FlagHost                = "host"
	FlagPort                = "port"
	FlagAllowedOrigin       = "allowed-origin"
	FlagCORSOrigin          = "cors-origin"
	FlagCORSOriginProd      = "cors-origin-prod"
	FlagShutdownTimeout     = "shutdown-timeout"
	FlagLogLevel            = "log-level"
	FlagLogFormat           = "log-format"
	FlagSessionIdleTTL      = "session-idle-ttl"
	FlagSessionReapInterval = "session-reap-interval"
	FlagNgrok               = "ngrok"
	FlagNgrokAuth           = "ngrok-auth"
	FlagNgrokDomain         = "ngrok-domain"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string
	Port int
	// AllowedOrigins restricts browser websocket upgrades. Empty allows all.
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string
	// Format is the log output format: "json" or "console".
	Format string
}

// SessionConfig controls session lifetime.
type SessionConfig struct {
	// IdleTTL is how long a session may go without activity before it is
	// reaped. Zero keeps sessions for the life of the process.
	IdleTTL time.Duration
	// ReapInterval is how often idle sessions are looked for.
	ReapInterval time.Duration
}

// Reaping reports whether idle sessions should be removed.
func (s SessionConfig) Reaping() bool {
	return s.IdleTTL > 0
}

// TunnelConfig holds ngrok settings.
type TunnelConfig struct {
	Enabled   bool
	AuthToken string
	Domain    string
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig
	Logging LoggingConfig
	Session SessionConfig
	Tunnel  TunnelConfig
}

// Flags returns fresh flag definitions for a command.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    FlagHost,
			Value:   "0.0.0.0",
			Usage:   "HTTP server host",
			Sources: cli.EnvVars("HOST"),
		},
		&cli.IntFlag{
			Name:    FlagPort,
			Value:   3001,
			Usage:   "HTTP server port",
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringSliceFlag{
			Name:    FlagAllowedOrigin,
			Usage:   "origin allowed to open websocket connections (repeatable)",
			Sources: cli.EnvVars("ALLOWED_ORIGINS"),
		},
		&cli.StringFlag{
			Name:    FlagCORSOrigin,
			Usage:   "development front-end origin",
			Sources: cli.EnvVars("CORS_ORIGIN"),
		},
		&cli.StringFlag{
			Name:    FlagCORSOriginProd,
			Usage:   "production front-end origin",
			Sources: cli.EnvVars("CORS_ORIGIN_PROD"),
		},
		&cli.DurationFlag{
			Name:    FlagShutdownTimeout,
			Value:   10 * time.Second,
			Usage:   "grace period for in-flight requests on shutdown",
			Sources: cli.EnvVars("SHUTDOWN_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    FlagLogLevel,
			Value:   "info",
			Usage:   "log level: debug, info, warn, error",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    FlagLogFormat,
			Value:   "json",
			Usage:   "log format: json or console",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.DurationFlag{
			Name:    FlagSessionIdleTTL,
			Usage:   "reap sessions idle for longer than this (0 disables reaping)",
			Sources: cli.EnvVars("SESSION_IDLE_TTL"),
		},
		&cli.DurationFlag{
			Name:    FlagSessionReapInterval,
			Value:   time.Hour,
			Usage:   "how often to look for idle sessions",
			Sources: cli.EnvVars("SESSION_REAP_INTERVAL"),
		},
		&cli.BoolFlag{
			Name:    FlagNgrok,
			Usage:   "expose the server through an ngrok tunnel",
			Sources: cli.EnvVars("NGROK_ENABLED"),
		},
		&cli.StringFlag{
			Name:    FlagNgrokAuth,
			Usage:   "ngrok auth token",
			Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
		},
		&cli.StringFlag{
			Name:    FlagNgrokDomain,
			Usage:   "custom ngrok domain",
			Sources: cli.EnvVars("NGROK_DOMAIN"),
		},
	}
}

// FromCommand reads a Config from a command parsed with Flags and validates it.
func FromCommand(cmd *cli.Command) (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:            cmd.String(FlagHost),
			Port:            cmd.Int(FlagPort),
			AllowedOrigins:  allowedOrigins(cmd),
			ShutdownTimeout: cmd.Duration(FlagShutdownTimeout),
		},
		Logging: LoggingConfig{
			Level:  cmd.String(FlagLogLevel),
			Format: cmd.String(FlagLogFormat),
		},
		Session: SessionConfig{
			IdleTTL:      cmd.Duration(FlagSessionIdleTTL),
			ReapInterval: cmd.Duration(FlagSessionReapInterval),
		},
		Tunnel: TunnelConfig{
			Enabled:   cmd.Bool(FlagNgrok),
			AuthToken: cmd.String(FlagNgrokAuth),
			Domain:    cmd.String(FlagNgrokDomain),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func allowedOrigins(cmd *cli.Command) []string {
	var origins []string
	seen := make(map[string]bool)
	add := func(origin string) {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" || seen[origin] {
			return
		}
		seen[origin] = true
		origins = append(origins, origin)
	}

	for _, origin := range cmd.StringSlice(FlagAllowedOrigin) {
		add(origin)
	}
	add(cmd.String(FlagCORSOrigin))
	add(cmd.String(FlagCORSOriginProd))

	if len(origins) > 0 {
		add(TelegramOrigin)
	}
	return origins
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSession(c.Session); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateTunnel(c.Tunnel); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port must be 1-65535, got %d", s.Port))
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "shutdown-timeout must be positive")
	}
	for _, origin := range s.AllowedOrigins {
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			errs = append(errs, fmt.Sprintf("allowed origin %q must start with http:// or https://", origin))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("log-level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("log-format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateSession(s SessionConfig) error {
	if s.IdleTTL < 0 {
		return errors.New("session-idle-ttl must not be negative")
	}
	if s.Reaping() && s.ReapInterval <= 0 {
		return errors.New("session-reap-interval must be positive when reaping is enabled")
	}
	return nil
}

func validateTunnel(t TunnelConfig) error {
	if t.Enabled && t.AuthToken == "" {
		return errors.New("ngrok is enabled but no auth token was provided (--ngrok-auth or NGROK_AUTHTOKEN)")
	}
	return nil
}
