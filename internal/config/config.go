// Package config loads runtime configuration from the environment and
// an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type WSConfig struct {
	PingIntervalSeconds  int   `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int   `mapstructure:"write_deadline_seconds"`
	ReadDeadlineSeconds  int   `mapstructure:"read_deadline_seconds"`
	MaxFrameBytes        int64 `mapstructure:"max_frame_bytes"`
	SendBuffer           int   `mapstructure:"send_buffer"`
}

type Config struct {
	Env          string `mapstructure:"env"`
	Port         int    `mapstructure:"port"`
	MongoURI     string `mapstructure:"mongodb_uri"`
	RedisAddr    string `mapstructure:"redis_addr"`
	RedisPass    string `mapstructure:"redis_password"`
	RedisDB      int    `mapstructure:"redis_db"`
	JWTSecret    string `mapstructure:"jwt_secret"`
	JWTKeys      string `mapstructure:"jwt_keys"` // kid:secret,kid2:secret2
	JWTActiveKid string `mapstructure:"jwt_active_kid"`
	TokenTTL     time.Duration
	TokenTTLHrs  int `mapstructure:"token_ttl_hours"`
	RateLimitRPM int `mapstructure:"rate_limit_rpm"`

	// MaxContentLen bounds chat message text, in runes.
	MaxContentLen int `mapstructure:"max_content_len"`

	WS WSConfig `mapstructure:"ws"`

	// derived timeouts
	PingInterval  time.Duration
	WriteDeadline time.Duration
	ReadDeadline  time.Duration
}

// Load reads configuration. Environment variables always apply; when
// path is non-empty the file at that path is read first and the
// environment overrides it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// AutomaticEnv only covers Get lookups; keys without a default must
	// be bound explicitly or Unmarshal never sees their env values.
	for _, key := range []string{"mongodb_uri", "jwt_secret", "jwt_keys", "jwt_active_kid", "redis_password"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	v.SetDefault("env", "production")
	v.SetDefault("port", 8080)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("token_ttl_hours", 24)
	v.SetDefault("rate_limit_rpm", 10)
	v.SetDefault("max_content_len", 20000)
	v.SetDefault("ws.ping_interval_seconds", 25)
	v.SetDefault("ws.write_deadline_seconds", 10)
	v.SetDefault("ws.read_deadline_seconds", 60)
	v.SetDefault("ws.max_frame_bytes", 64*1024)
	v.SetDefault("ws.send_buffer", 256)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if c.MongoURI == "" {
		return nil, fmt.Errorf("MONGODB_URI must be set")
	}
	if c.JWTSecret == "" && c.JWTKeys == "" {
		return nil, fmt.Errorf("either JWT_SECRET or JWT_KEYS must be set")
	}

	c.TokenTTL = time.Duration(c.TokenTTLHrs) * time.Hour
	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
	c.ReadDeadline = time.Duration(c.WS.ReadDeadlineSeconds) * time.Second
	return &c, nil
}

// SigningKeys parses the JWT_KEYS value into a kid -> secret map.
// Returns nil when JWT_KEYS is unset and the single JWT_SECRET applies.
func (c *Config) SigningKeys() (map[string]string, error) {
	if c.JWTKeys == "" {
		return nil, nil
	}
	keys := map[string]string{}
	for _, p := range strings.Split(c.JWTKeys, ",") {
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid JWT_KEYS entry: %s", p)
		}
		keys[parts[0]] = parts[1]
	}
	return keys, nil
}
