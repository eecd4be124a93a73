package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"

	"github.com/lorrc/ticket-collab/internal/auth"
	"github.com/lorrc/ticket-collab/internal/core/domain"
)

const envPrefix = "COLLAB"

// Config is the console configuration, read from collab.yaml, COLLAB_*
// environment variables and flags.
type Config struct {
	Gateway string
	Token   string
	Avatar  string

	RetryInterval  time.Duration
	MaxRetries     uint64
	RequestTimeout time.Duration

	SLAPollInterval    time.Duration
	TicketPollInterval time.Duration
	SendWarnAfter      time.Duration

	LogLevel string
	LogFile  string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("collab")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/ticket-collab")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("gateway", "http://localhost:8080")
	v.SetDefault("retry-interval", time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("request-timeout", 15*time.Second)
	v.SetDefault("sla-poll-interval", 30*time.Second)
	v.SetDefault("ticket-poll-interval", time.Duration(0))
	v.SetDefault("send-warn-after", 5*time.Second)
	v.SetDefault("log-level", "warn")
	return v
}

// loadConfig reads the config file, if any, and decodes the merged values.
// An explicit path must exist.
func loadConfig(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Gateway:            strings.TrimRight(v.GetString("gateway"), "/"),
		Token:              v.GetString("token"),
		Avatar:             v.GetString("avatar"),
		RetryInterval:      v.GetDuration("retry-interval"),
		MaxRetries:         v.GetUint64("max-retries"),
		RequestTimeout:     v.GetDuration("request-timeout"),
		SLAPollInterval:    v.GetDuration("sla-poll-interval"),
		TicketPollInterval: v.GetDuration("ticket-poll-interval"),
		SendWarnAfter:      v.GetDuration("send-warn-after"),
		LogLevel:           v.GetString("log-level"),
		LogFile:            v.GetString("log-file"),
	}
	return cfg, nil
}

// APIURL is the REST root on the gateway.
func (c Config) APIURL() string {
	return c.Gateway + "/api/v1"
}

// ChannelURL is the WebSocket endpoint on the gateway.
func (c Config) ChannelURL() string {
	switch {
	case strings.HasPrefix(c.Gateway, "https://"):
		return "wss://" + strings.TrimPrefix(c.Gateway, "https://") + "/api/v1/ws"
	case strings.HasPrefix(c.Gateway, "http://"):
		return "ws://" + strings.TrimPrefix(c.Gateway, "http://") + "/api/v1/ws"
	default:
		return c.Gateway + "/api/v1/ws"
	}
}

// identityFromToken reads the agent identity out of the bearer token. The
// gateway verifies the signature; the console only needs the claims.
func identityFromToken(token string) (domain.Actor, error) {
	if token == "" {
		return domain.Actor{}, errors.New("no token configured: set token in collab.yaml, COLLAB_TOKEN or --token")
	}
	claims := &auth.Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return domain.Actor{}, fmt.Errorf("parse token: %w", err)
	}
	if !claims.Role.IsValid() || claims.Name == "" {
		return domain.Actor{}, errors.New("token is missing identity claims")
	}
	return claims.Actor(), nil
}
