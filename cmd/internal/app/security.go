package app

import (
	"errors"
	"log/slog"

	paseto "aidanwoods.dev/go-paseto"

	"github.com/rodweleo/guess-my-valentine/cmd/internal/capability"
	"github.com/rodweleo/guess-my-valentine/cmd/security/fingerprint"
)

// ValidateSecurityConfig enforces the startup security policy.
//
// With RequireSecrets the fingerprint salt and the capability signing key
// must both be configured; nothing falls back to dev defaults.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireSecrets {
		return nil
	}

	if _, err := fingerprint.SaltFromEnv(fingerprint.MinSaltBytes); err != nil {
		switch {
		case errors.Is(err, fingerprint.ErrSaltMissing):
			return errors.New("security policy: VALENTINE_REQUIRE_SECRETS=true but VALENTINE_FINGERPRINT_SALT is missing")
		case errors.Is(err, fingerprint.ErrSaltTooShort):
			return errors.New("security policy: VALENTINE_REQUIRE_SECRETS=true but VALENTINE_FINGERPRINT_SALT is too short (min 16 bytes)")
		default:
			return err
		}
	}

	if _, err := capability.LoadConfigFromEnv(); err != nil {
		return errors.New("security policy: VALENTINE_REQUIRE_SECRETS=true but the capability config is invalid (VALENTINE_PASETO_V4_SECRET_KEY_HEX)")
	}

	return nil
}

// loadSignerConfig returns the capability config. Outside the secrets policy a
// missing key is replaced by an ephemeral one, so links die with the process.
func loadSignerConfig(cfg Config, log *slog.Logger) (capability.Config, error) {
	sc, err := capability.LoadConfigFromEnv()
	if err == nil {
		return sc, nil
	}
	if cfg.RequireSecrets {
		return capability.Config{}, err
	}

	sc = capability.DefaultConfig()
	if v := EnvDuration("VALENTINE_CAPABILITY_TTL", 0); v > 0 {
		sc.TTL = v
	}
	sc.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	log.Warn("capability.key.ephemeral", "reason", "VALENTINE_PASETO_V4_SECRET_KEY_HEX unset")
	return sc, nil
}

// loadHasher builds the phone fingerprint hasher from env.
func loadHasher(log *slog.Logger) (*fingerprint.Hasher, error) {
	h, err := fingerprint.FromEnv()
	if err != nil {
		return nil, err
	}
	if !h.Salted() {
		log.Warn("fingerprint.unsalted", "reason", "VALENTINE_FINGERPRINT_SALT unset")
	}
	return h, nil
}
