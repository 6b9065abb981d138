package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agaraleas/RideSync/domain"
	"github.com/agaraleas/RideSync/networking"
	"github.com/agaraleas/RideSync/router"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "RIDESYNC_"

type AppConfig struct {
	Realtime RealtimeConfig `yaml:"realtime"`
	API      APIConfig      `yaml:"api"`
	Log      LogConfig      `yaml:"log"`
	Session  SessionConfig  `yaml:"session"`
}

type RealtimeConfig struct {
	BaseURL              string                 `yaml:"base_url"`
	Namespaces           map[domain.Role]string `yaml:"namespaces"`
	ConnectionTimeout    time.Duration          `yaml:"connection_timeout"`
	ReconnectInterval    time.Duration          `yaml:"reconnect_interval"`
	MaxReconnectAttempts int                    `yaml:"max_reconnect_attempts"`
	PingInterval         time.Duration          `yaml:"ping_interval"`
	PongTimeout          time.Duration          `yaml:"pong_timeout"`
	WriteTimeout         time.Duration          `yaml:"write_timeout"`
	OutboundQueueLimit   int                    `yaml:"outbound_queue_limit"`
	RejoinRideRooms      bool                   `yaml:"rejoin_ride_rooms"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SessionConfig identifies who the client connects as.
type SessionConfig struct {
	UserID domain.ID `yaml:"user_id"`
	Role   string    `yaml:"role"`
	Token  string    `yaml:"token"`
}

func Defaults() AppConfig {
	return AppConfig{
		Realtime: RealtimeConfig{
			BaseURL: "ws://localhost:3000",
			Namespaces: map[domain.Role]string{
				domain.RoleDriver: "/ws/driver",
			},
			ConnectionTimeout:    10 * time.Second,
			ReconnectInterval:    5 * time.Second,
			MaxReconnectAttempts: 5,
			PingInterval:         30 * time.Second,
			WriteTimeout:         10 * time.Second,
			OutboundQueueLimit:   256,
			RejoinRideRooms:      true,
		},
		API: APIConfig{
			BaseURL: "http://localhost:3000/api",
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile overlays the YAML file at path on cfg. Keys missing from the
// file keep their current values.
func (cfg *AppConfig) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// LoadEnv reads the optional .env files into the process environment, then
// applies every RIDESYNC_* variable to cfg. A missing .env file is not an error.
func (cfg *AppConfig) LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading env file: %w", err)
	}
	return cfg.applyEnv(os.LookupEnv)
}

func (cfg *AppConfig) applyEnv(lookup func(string) (string, bool)) error {
	var problems []string

	str := func(key string, dst *string) {
		if val, ok := lookup(envPrefix + key); ok {
			*dst = val
		}
	}
	integer := func(key string, dst *int) {
		if val, ok := lookup(envPrefix + key); ok {
			parsed, err := strconv.Atoi(val)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s%s: %v", envPrefix, key, err))
				return
			}
			*dst = parsed
		}
	}
	duration := func(key string, dst *time.Duration) {
		if val, ok := lookup(envPrefix + key); ok {
			parsed, err := time.ParseDuration(val)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s%s: %v", envPrefix, key, err))
				return
			}
			*dst = parsed
		}
	}
	boolean := func(key string, dst *bool) {
		if val, ok := lookup(envPrefix + key); ok {
			parsed, err := strconv.ParseBool(val)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s%s: %v", envPrefix, key, err))
				return
			}
			*dst = parsed
		}
	}

	str("SOCKET_URL", &cfg.Realtime.BaseURL)
	duration("CONNECTION_TIMEOUT", &cfg.Realtime.ConnectionTimeout)
	duration("RECONNECT_INTERVAL", &cfg.Realtime.ReconnectInterval)
	integer("MAX_RECONNECT_ATTEMPTS", &cfg.Realtime.MaxReconnectAttempts)
	duration("PING_INTERVAL", &cfg.Realtime.PingInterval)
	duration("PONG_TIMEOUT", &cfg.Realtime.PongTimeout)
	integer("OUTBOUND_QUEUE_LIMIT", &cfg.Realtime.OutboundQueueLimit)
	boolean("REJOIN_RIDE_ROOMS", &cfg.Realtime.RejoinRideRooms)
	str("API_URL", &cfg.API.BaseURL)
	duration("API_TIMEOUT", &cfg.API.Timeout)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("ROLE", &cfg.Session.Role)
	str("TOKEN", &cfg.Session.Token)
	if val, ok := lookup(envPrefix + "USER_ID"); ok {
		cfg.Session.UserID = domain.ID(val)
	}

	for _, role := range []domain.Role{domain.RoleClient, domain.RoleDriver, domain.RoleAdmin} {
		key := "NAMESPACE_" + strings.ToUpper(role.String())
		if val, ok := lookup(envPrefix + key); ok {
			if cfg.Realtime.Namespaces == nil {
				cfg.Realtime.Namespaces = make(map[domain.Role]string)
			}
			cfg.Realtime.Namespaces[role] = val
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Validate reports every problem found in cfg at once.
func (cfg AppConfig) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if _, err := networking.BuildAddress(cfg.Realtime.BaseURL, "", ""); err != nil {
		add("realtime.base_url: %v", err)
	}
	for role, namespace := range cfg.Realtime.Namespaces {
		if !role.Valid() {
			add("realtime.namespaces: unknown role %q", role)
			continue
		}
		if namespace == "" {
			continue
		}
		if _, err := networking.BuildAddress("ws://localhost", namespace, ""); err != nil {
			add("realtime.namespaces.%s: %v", role, err)
		}
	}
	if cfg.Realtime.ConnectionTimeout < 0 {
		add("realtime.connection_timeout must not be negative")
	}
	if cfg.Realtime.ReconnectInterval <= 0 {
		add("realtime.reconnect_interval must be positive")
	}
	if cfg.Realtime.MaxReconnectAttempts < 0 {
		add("realtime.max_reconnect_attempts must not be negative")
	}
	if cfg.Realtime.PingInterval <= 0 {
		add("realtime.ping_interval must be positive")
	}
	if cfg.Realtime.PongTimeout < 0 {
		add("realtime.pong_timeout must not be negative")
	}
	if cfg.Realtime.PongTimeout > 0 && cfg.Realtime.PongTimeout <= cfg.Realtime.PingInterval {
		add("realtime.pong_timeout must exceed ping_interval")
	}
	if cfg.Realtime.OutboundQueueLimit <= 0 {
		add("realtime.outbound_queue_limit must be positive")
	}

	if u, err := url.Parse(cfg.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("api.base_url: %q is not an http(s) URL", cfg.API.BaseURL)
	}
	if cfg.API.Timeout <= 0 {
		add("api.timeout must be positive")
	}

	if cfg.Session.Role != "" {
		if _, err := domain.ParseRole(cfg.Session.Role); err != nil {
			add("session.role: %v", err)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (cfg AppConfig) TransportConfig() networking.TransportConfig {
	return networking.TransportConfig{
		BaseURL:              cfg.Realtime.BaseURL,
		ConnectionTimeout:    cfg.Realtime.ConnectionTimeout,
		ReconnectInterval:    cfg.Realtime.ReconnectInterval,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		PingInterval:         cfg.Realtime.PingInterval,
		PongTimeout:          cfg.Realtime.PongTimeout,
		WriteTimeout:         cfg.Realtime.WriteTimeout,
		OutboundQueueLimit:   cfg.Realtime.OutboundQueueLimit,
	}
}

func (cfg AppConfig) RouterConfig() router.Config {
	namespaces := make(map[domain.Role]string, len(cfg.Realtime.Namespaces))
	for role, namespace := range cfg.Realtime.Namespaces {
		namespaces[role] = namespace
	}
	return router.Config{
		Namespaces:      namespaces,
		RejoinRideRooms: cfg.Realtime.RejoinRideRooms,
	}
}
