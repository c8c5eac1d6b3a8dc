package valentineapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls request limits and client throttling.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// Link endpoints: details, guess, validate-token, respond.
	LinkIPMax    int
	LinkIPWindow time.Duration

	// Sender endpoints: create, verify-otp, resend-otp.
	SenderIPMax    int
	SenderIPWindow time.Duration
}

// LoadConfigFromEnv loads API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	return Config{
		TrustProxy:     envBool("VALENTINE_TRUST_PROXY", false),
		MaxBodyBytes:   envInt64("VALENTINE_MAX_BODY_BYTES", 64<<10),
		LinkIPMax:      envInt("VALENTINE_LINK_IP_MAX", 60),
		LinkIPWindow:   envDuration("VALENTINE_LINK_IP_WINDOW", time.Minute),
		SenderIPMax:    envInt("VALENTINE_SENDER_IP_MAX", 20),
		SenderIPWindow: envDuration("VALENTINE_SENDER_IP_WINDOW", 10*time.Minute),
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
