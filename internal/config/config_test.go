package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":4567", cfg.HTTPAddr)
	assert.Equal(t, ":4577", cfg.ObsHTTPAddr)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "chat-events", cfg.EventsTopic)
	assert.Equal(t, "chat-commands", cfg.CommandsTopic)
	assert.Empty(t, cfg.AuthTokens)
	assert.False(t, cfg.AuthEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("AUTH_TOKENS", "alpha, beta,,")
	t.Setenv("TRACING_ENABLED", "true")

	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr, "a bare port gets a colon prefix")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.AuthTokens)
	assert.True(t, cfg.AuthEnabled())
	assert.True(t, cfg.TracingEnabled)
}
