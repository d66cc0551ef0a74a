package config

import (
	"os"
	"strings"
)

type Config struct {
	HTTPAddr       string
	ObsHTTPAddr    string
	DatabaseURL    string
	RedisAddr      string
	KafkaBrokers   []string
	EventsTopic    string
	CommandsTopic  string
	ConsumerGroup  string
	AuthTokens     []string
	ServiceName    string
	TracingEnabled bool
	JaegerURL      string
}

func Load() *Config {
	return &Config{
		HTTPAddr:       fixPort(getEnv("HTTP_PORT", ":4567")),
		ObsHTTPAddr:    fixPort(getEnv("OBS_HTTP_ADDR", ":4577")),
		DatabaseURL:    getEnv("DATABASE_URL", "postgres://localhost:5432/whatsapp?sslmode=disable"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:   strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		EventsTopic:    getEnv("KAFKA_EVENTS_TOPIC", "chat-events"),
		CommandsTopic:  getEnv("KAFKA_COMMANDS_TOPIC", "chat-commands"),
		ConsumerGroup:  getEnv("KAFKA_CONSUMER_GROUP", "whatsapp-relay"),
		AuthTokens:     splitNonEmpty(getEnv("AUTH_TOKENS", "")),
		ServiceName:    getEnv("SERVICE_NAME", "whatsapp-relay"),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		JaegerURL:      getEnv("JAEGER_URL", "http://localhost:14268/api/traces"),
	}
}

// AuthEnabled reports whether any API tokens are configured; an empty set
// disables both REST auth and WebSocket admission tokens.
func (c *Config) AuthEnabled() bool {
	return len(c.AuthTokens) > 0
}

func fixPort(port string) string {
	if port != "" && !strings.HasPrefix(port, ":") {
		return ":" + port
	}
	return port
}

func splitNonEmpty(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "true"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
