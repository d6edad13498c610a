package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides replaces values whose AIRLINK_* variable is set and
// parses. Unparseable values are ignored.
func ApplyEnvOverrides(cfg *Config) {
	cfg.Log.Level = envStringWithFallback("AIRLINK_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envStringWithFallback("AIRLINK_LOG_FORMAT", cfg.Log.Format)

	cfg.Frames.MaxMultiFrameSize = envIntWithFallback("AIRLINK_FRAMES_MAX_MULTI_FRAME_SIZE", cfg.Frames.MaxMultiFrameSize)
	cfg.Frames.MaxSingleFrameSize = envIntWithFallback("AIRLINK_FRAMES_MAX_SINGLE_FRAME_SIZE", cfg.Frames.MaxSingleFrameSize)
	cfg.Frames.Interval = envDurationWithFallback("AIRLINK_FRAMES_INTERVAL", cfg.Frames.Interval)

	cfg.Link.Scheme = envStringWithFallback("AIRLINK_LINK_SCHEME", cfg.Link.Scheme)

	cfg.HTTP.Addr = envStringWithFallback("AIRLINK_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.RateLimitRPS = envFloatWithFallback("AIRLINK_HTTP_RATE_LIMIT_RPS", cfg.HTTP.RateLimitRPS)
	cfg.HTTP.RateLimitBurst = envIntWithFallback("AIRLINK_HTTP_RATE_LIMIT_BURST", cfg.HTTP.RateLimitBurst)

	cfg.Relay.Addr = envStringWithFallback("AIRLINK_RELAY_ADDR", cfg.Relay.Addr)
	cfg.Relay.URL = envStringWithFallback("AIRLINK_RELAY_URL", cfg.Relay.URL)
	cfg.Relay.Channel = envStringWithFallback("AIRLINK_RELAY_CHANNEL", cfg.Relay.Channel)
	cfg.Relay.MaxClients = envIntWithFallback("AIRLINK_RELAY_MAX_CLIENTS", cfg.Relay.MaxClients)
	cfg.Relay.Announce = envBoolWithFallback("AIRLINK_RELAY_ANNOUNCE", cfg.Relay.Announce)

	cfg.Sessions.IdleTTL = envDurationWithFallback("AIRLINK_SESSIONS_IDLE_TTL", cfg.Sessions.IdleTTL)
	cfg.MCP.Enabled = envBoolWithFallback("AIRLINK_MCP_ENABLED", cfg.MCP.Enabled)
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envStringWithFallback(key, fallback string) string {
	if raw := envString(key); raw != "" {
		return raw
	}
	return fallback
}

func envBoolWithFallback(key string, fallback bool) bool {
	switch strings.ToLower(envString(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envIntWithFallback(key string, fallback int) int {
	raw := envString(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloatWithFallback(key string, fallback float64) float64 {
	raw := envString(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDurationWithFallback(key string, fallback time.Duration) time.Duration {
	raw := envString(key)
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
