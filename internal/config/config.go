package config

import (
	"bytes"
	"fmt"
	"net"
	neturl "net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 2342
	defaultEnv        = "development"
	defaultRedisHost  = "localhost"
	defaultRedisPort  = 6379
	defaultRedisDB    = 0

	defaultHeartbeatMS   = 30_000
	defaultOfflineMS     = 60_000
	defaultCursorMS      = 100
	defaultQuietWindowMS = 2_000
	defaultTypingMS      = 3_000
	defaultSweepMS       = 15_000
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int
	Env            string // "development" | "production"
	RedisURL       string // empty means run on the in-memory transport
	Redis          RedisRuntimeConfig
	JWTSecret      string
	AllowedOrigins []string
	Presence       PresenceConfig
}

type RedisRuntimeConfig struct {
	URL      string
	Host     string
	Port     int
	Username string
	Password string
	DB       int
	TLS      bool
}

// PresenceConfig tunes the liveness subsystem. All values are
// milliseconds in YAML.
type PresenceConfig struct {
	HeartbeatIntervalMS   int
	OfflineTimeoutMS      int
	CursorIntervalMS      int
	ActivityQuietWindowMS int
	TypingTimeoutMS       int
	SweepIntervalMS       int
}

func (p PresenceConfig) HeartbeatInterval() time.Duration {
	return time.Duration(p.HeartbeatIntervalMS) * time.Millisecond
}
func (p PresenceConfig) OfflineTimeout() time.Duration {
	return time.Duration(p.OfflineTimeoutMS) * time.Millisecond
}
func (p PresenceConfig) CursorInterval() time.Duration {
	return time.Duration(p.CursorIntervalMS) * time.Millisecond
}
func (p PresenceConfig) ActivityQuietWindow() time.Duration {
	return time.Duration(p.ActivityQuietWindowMS) * time.Millisecond
}
func (p PresenceConfig) TypingTimeout() time.Duration {
	return time.Duration(p.TypingTimeoutMS) * time.Millisecond
}
func (p PresenceConfig) SweepInterval() time.Duration {
	return time.Duration(p.SweepIntervalMS) * time.Millisecond
}

type rawAppConfig struct {
	Port           int               `yaml:"port"`
	Env            string            `yaml:"env"`
	RedisURL       string            `yaml:"redis_url"`
	Redis          rawRedisConfig    `yaml:"redis"`
	JWTSecret      string            `yaml:"jwt_secret"`
	AllowedOrigins []string          `yaml:"allowed_origins"`
	Presence       rawPresenceConfig `yaml:"presence"`
}

type rawRedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       *int   `yaml:"db"`
	TLS      *bool  `yaml:"tls"`
}

type rawPresenceConfig struct {
	HeartbeatIntervalMS   *int `yaml:"heartbeat_interval_ms"`
	OfflineTimeoutMS      *int `yaml:"offline_timeout_ms"`
	CursorIntervalMS      *int `yaml:"cursor_interval_ms"`
	ActivityQuietWindowMS *int `yaml:"activity_quiet_window_ms"`
	TypingTimeoutMS       *int `yaml:"typing_timeout_ms"`
	SweepIntervalMS       *int `yaml:"sweep_interval_ms"`
}

// Load reads the YAML config, applying defaults and validating ranges. A
// missing file is not an error: the service starts on defaults with the
// in-memory transport.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := defaultAppConfig()

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultConfigPath {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	raw := rawAppConfig{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	applyRawAppConfig(&cfg, raw)
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d in %q, expected 1-65535", cfg.Port, path)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return nil, fmt.Errorf("invalid redis.port %d in %q, expected 1-65535", cfg.Redis.Port, path)
	}
	if cfg.Presence.OfflineTimeoutMS < cfg.Presence.HeartbeatIntervalMS {
		return nil, fmt.Errorf("presence.offline_timeout_ms (%d) must be >= presence.heartbeat_interval_ms (%d)",
			cfg.Presence.OfflineTimeoutMS, cfg.Presence.HeartbeatIntervalMS)
	}

	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Presence: PresenceConfig{
			HeartbeatIntervalMS:   defaultHeartbeatMS,
			OfflineTimeoutMS:      defaultOfflineMS,
			CursorIntervalMS:      defaultCursorMS,
			ActivityQuietWindowMS: defaultQuietWindowMS,
			TypingTimeoutMS:       defaultTypingMS,
			SweepIntervalMS:       defaultSweepMS,
		},
	}
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.ToLower(strings.TrimSpace(raw.Env)); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}
	if raw.AllowedOrigins != nil {
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	}

	redis := cfg.Redis
	if v := strings.TrimSpace(raw.Redis.URL); v != "" {
		redis.URL = v
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		redis.URL = v
	}
	if v := strings.TrimSpace(raw.Redis.Host); v != "" {
		redis.Host = v
	}
	if raw.Redis.Port != 0 {
		redis.Port = raw.Redis.Port
	}
	if v := strings.TrimSpace(raw.Redis.Username); v != "" {
		redis.Username = v
	}
	if v := strings.TrimSpace(raw.Redis.Password); v != "" {
		redis.Password = v
	}
	if raw.Redis.DB != nil {
		redis.DB = *raw.Redis.DB
	}
	if raw.Redis.TLS != nil {
		redis.TLS = *raw.Redis.TLS
	}
	cfg.Redis = redis
	// RedisURL stays empty unless redis was configured; an empty value
	// selects the in-memory transport.
	if redis.URL != "" || strings.TrimSpace(raw.Redis.Host) != "" || raw.Redis.Port != 0 {
		cfg.RedisURL = redis.URLValue()
	}

	p := cfg.Presence
	if raw.Presence.HeartbeatIntervalMS != nil && *raw.Presence.HeartbeatIntervalMS > 0 {
		p.HeartbeatIntervalMS = *raw.Presence.HeartbeatIntervalMS
	}
	if raw.Presence.OfflineTimeoutMS != nil && *raw.Presence.OfflineTimeoutMS > 0 {
		p.OfflineTimeoutMS = *raw.Presence.OfflineTimeoutMS
	}
	if raw.Presence.CursorIntervalMS != nil && *raw.Presence.CursorIntervalMS > 0 {
		p.CursorIntervalMS = *raw.Presence.CursorIntervalMS
	}
	if raw.Presence.ActivityQuietWindowMS != nil && *raw.Presence.ActivityQuietWindowMS > 0 {
		p.ActivityQuietWindowMS = *raw.Presence.ActivityQuietWindowMS
	}
	if raw.Presence.TypingTimeoutMS != nil && *raw.Presence.TypingTimeoutMS > 0 {
		p.TypingTimeoutMS = *raw.Presence.TypingTimeoutMS
	}
	if raw.Presence.SweepIntervalMS != nil && *raw.Presence.SweepIntervalMS > 0 {
		p.SweepIntervalMS = *raw.Presence.SweepIntervalMS
	}
	cfg.Presence = p
}

// URLValue renders the redis connection URL from either the raw URL or the
// host/port fields.
func (c RedisRuntimeConfig) URLValue() string {
	if u := normalizeRedisRawURL(c.URL); u != "" {
		return u
	}

	host := strings.TrimSpace(c.Host)
	if host == "" {
		host = defaultRedisHost
	}
	port := c.Port
	if port == 0 {
		port = defaultRedisPort
	}
	db := c.DB
	if db < 0 {
		db = defaultRedisDB
	}

	scheme := "redis"
	if c.TLS {
		scheme = "rediss"
	}

	u := &neturl.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + strconv.Itoa(db),
	}
	username := strings.TrimSpace(c.Username)
	password := strings.TrimSpace(c.Password)
	if username != "" {
		if password != "" {
			u.User = neturl.UserPassword(username, password)
		} else {
			u.User = neturl.User(username)
		}
	} else if password != "" {
		u.User = neturl.UserPassword("", password)
	}
	return u.String()
}

func normalizeRedisRawURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "redis://") || strings.HasPrefix(trimmed, "rediss://") {
		return trimmed
	}
	return "redis://" + trimmed
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}
