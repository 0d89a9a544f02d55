package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN          string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL          string `env:"RABBITMQ_URL,required=true"`
	RedisURL             string `env:"REDIS_URL,required=true"`
	ProviderTriggerURL   string `env:"PROVIDER_TRIGGER_URL,required=true"`
	ProviderAPIKey       string `env:"PROVIDER_API_KEY"`
	WorkflowMap          string `env:"WORKFLOW_MAP"`
	AllowCancelCompleted bool   `env:"ALLOW_CANCEL_COMPLETED,default=true"`
	RateLimitPerSec      int    `env:"RATE_LIMIT_PER_SEC,default=100"`
	ChannelRateLimits    string `env:"CHANNEL_RATE_LIMITS"`
	ConsumerPrefetch     int    `env:"CONSUMER_PREFETCH,default=16"`
	PendingScanInterval  int    `env:"PENDING_SCAN_INTERVAL_SEC,default=30"`
	APIPort              int    `env:"API_PORT,default=8080"`
	LogLevel             string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// ParseWorkflowMap turns the WORKFLOW_MAP value, comma-separated
// event=workflow pairs, into a lookup table. Malformed pairs are skipped.
func (c *Config) ParseWorkflowMap() map[string]string {
	mapping := make(map[string]string)
	for _, pair := range strings.Split(c.WorkflowMap, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		mapping[key] = value
	}
	return mapping
}

// ParseChannelRateLimits turns the CHANNEL_RATE_LIMITS value, comma-separated
// channel=per-second pairs (e.g. "sms=5,email=50"), into per-channel budgets.
// Channels not listed fall back to RATE_LIMIT_PER_SEC. Malformed or
// non-positive pairs are skipped.
func (c *Config) ParseChannelRateLimits() map[string]int64 {
	limits := make(map[string]int64)
	for _, pair := range strings.Split(c.ChannelRateLimits, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		channel, raw, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		channel = strings.ToLower(strings.TrimSpace(channel))
		limit, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || channel == "" || limit <= 0 {
			continue
		}
		limits[channel] = limit
	}
	return limits
}
