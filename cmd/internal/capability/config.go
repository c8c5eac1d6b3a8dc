package capability

import (
	"os"
	"time"
)

// Config defines runtime configuration for capability signing.
type Config struct {
	// Issuer is the value set in the "iss" claim.
	Issuer string

	// TTL is the default lifetime of a capability.
	TTL time.Duration

	// ClockSkew tolerates verifiers whose clock lags the issuer. It never extends expiry.
	ClockSkew time.Duration

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key
	// used to sign PASETO v4.public capabilities.
	PasetoV4SecretKeyHex string
}

// DefaultConfig returns defaults suitable for development.
func DefaultConfig() Config {
	return Config{
		Issuer:    "guess-my-valentine",
		TTL:       48 * time.Hour,
		ClockSkew: 30 * time.Second,
	}
}

// LoadConfigFromEnv loads signer configuration from environment variables.
//
// Required:
//   - VALENTINE_PASETO_V4_SECRET_KEY_HEX
//
// Optional (durations must be valid Go duration strings):
//   - VALENTINE_CAPABILITY_ISSUER
//   - VALENTINE_CAPABILITY_TTL
//   - VALENTINE_CAPABILITY_CLOCK_SKEW
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("VALENTINE_CAPABILITY_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("VALENTINE_CAPABILITY_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TTL = d
	}

	if v := os.Getenv("VALENTINE_CAPABILITY_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	cfg.PasetoV4SecretKeyHex = os.Getenv("VALENTINE_PASETO_V4_SECRET_KEY_HEX")
	if cfg.PasetoV4SecretKeyHex == "" {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
