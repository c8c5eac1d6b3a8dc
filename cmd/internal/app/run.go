package app

import (
	"context"
	"errors"
	"io/fs"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

// Run is the CLI entrypoint used by cmd/valentine.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run() error {
	// .env is optional; real environment variables win.
	envErr := godotenv.Load()

	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		log.Warn("config.dotenv.fail", "err", envErr)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
