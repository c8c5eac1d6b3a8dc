// Package app wires the valentine server runtime: config, logging, storage,
// notifications, HTTP routes and the live status gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	valentineapi "github.com/rodweleo/guess-my-valentine/cmd/internal/api"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/audit"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/capability"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/ledger"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/metrics"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/notify"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/redeem"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/shortcode"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/valentine"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/watch"
	"github.com/rodweleo/guess-my-valentine/cmd/security/otp"
	"github.com/rodweleo/guess-my-valentine/cmd/security/phone"
)

// App is the server runtime: it owns the HTTP server and every long-lived client.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	registry *prometheus.Registry
	svc      *redeem.Service
	api      *valentineapi.Handler
	ws       *watch.Gateway

	dispatcher *notify.Dispatcher

	// closers run in reverse order on shutdown.
	closers []func()
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	a := &App{cfg: cfg, log: log}
	if err := a.wire(ctx); err != nil {
		a.closeAll()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec, err := metrics.New(a.registry)
	if err != nil {
		return err
	}

	stores, err := a.newStores(ctx)
	if err != nil {
		return err
	}

	led, err := ledger.New(stores.tokens)
	if err != nil {
		return err
	}
	codes, err := shortcode.NewRegistry(stores.codes, shortcode.WithCollisionHook(rec.ShortCodeCollision))
	if err != nil {
		return err
	}

	signerCfg, err := loadSignerConfig(a.cfg, a.log)
	if err != nil {
		return fmt.Errorf("capability config: %w", err)
	}
	signer, err := capability.NewSigner(signerCfg)
	if err != nil {
		return fmt.Errorf("capability signer: %w", err)
	}

	hasher, err := loadHasher(a.log)
	if err != nil {
		return err
	}

	sender, err := a.newSender(ctx)
	if err != nil {
		return err
	}
	a.dispatcher = notify.NewDispatcher(sender, a.cfg.NotifyWorkers, a.log,
		notify.WithQueueSize(a.cfg.NotifyQueueSize),
		notify.WithOutcomeHook(func(t notify.Type, result string) {
			rec.Notification(string(t), result)
		}),
	)

	hub := watch.NewHub(a.log)

	rcfg := redeem.DefaultConfig()
	rcfg.PublicBaseURL = a.cfg.PublicBaseURL
	rcfg.Channel = notify.Channel(strings.ToLower(a.cfg.NotifyChannel))
	rcfg.MaxAttempts = a.cfg.MaxAttempts
	rcfg.LinkTTL = signer.TTL()
	rcfg.ResendMax = a.cfg.ResendMax
	rcfg.ResendWindow = a.cfg.ResendWindow

	a.svc, err = redeem.NewService(rcfg, redeem.Deps{
		Valentines: stores.valentines,
		Ledger:     led,
		Codes:      codes,
		Signer:     signer,
		OTP:        otp.NewIssuer(a.cfg.OTPTTL),
		Hasher:     hasher,
	},
		redeem.WithNotifier(a.dispatcher),
		redeem.WithEvents(hub),
		redeem.WithMetrics(rec),
		redeem.WithPhoneNormalizer(phone.NewNormalizer(a.cfg.DefaultCountryCode, 0)),
		redeem.WithLogger(a.log),
	)
	if err != nil {
		return err
	}

	var auditRec audit.Recorder = audit.NewLogRecorder(a.log)
	if a.dbEnabled {
		auditRec, err = audit.NewPostgresRecorder(a.dbPool, a.cfg.DBSchema, a.log)
		if err != nil {
			return err
		}
	}

	a.api, err = valentineapi.NewHandler(a.log, a.svc, valentineapi.LoadConfigFromEnv(), valentineapi.WithAudit(auditRec))
	if err != nil {
		return err
	}

	a.ws, err = watch.NewGateway(a.log, hub, a.svc, watch.LoadConfigFromEnv(), rec)
	if err != nil {
		return err
	}

	a.log.Info("app.wired",
		"db_enabled", a.dbEnabled,
		"notify_driver", a.cfg.NotifyDriver,
		"fingerprint_mode", string(hasher.Mode()),
		"fingerprint_salted", hasher.Salted(),
	)
	return nil
}

type storeSet struct {
	valentines valentine.Store
	tokens     ledger.Store
	codes      shortcode.Store
}

// newStores decides between Postgres-backed persistence and in-memory dev stores.
func (a *App) newStores(ctx context.Context) (storeSet, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		return storeSet{
			valentines: valentine.NewInMemoryStore(),
			tokens:     ledger.NewInMemoryStore(),
			codes:      shortcode.NewInMemoryStore(),
		}, nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return storeSet{}, err
	}
	// The app owns the pool; the stores never close it.
	a.dbPool = pool
	a.dbEnabled = true
	a.closers = append(a.closers, pool.Close)

	if err := MigrateDB(ctx, pool, a.cfg, a.log); err != nil {
		return storeSet{}, fmt.Errorf("migrate: %w", err)
	}

	vs, err := valentine.NewPostgresStore(pool, valentine.WithSchema(a.cfg.DBSchema))
	if err != nil {
		return storeSet{}, err
	}
	ts, err := ledger.NewPostgresStore(pool, ledger.WithSchema(a.cfg.DBSchema))
	if err != nil {
		return storeSet{}, err
	}
	cs, err := shortcode.NewPostgresStore(pool, shortcode.WithSchema(a.cfg.DBSchema))
	if err != nil {
		return storeSet{}, err
	}

	a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DBSchema)
	return storeSet{valentines: vs, tokens: ts, codes: cs}, nil
}

// newSender builds the notification transport selected by NotifyDriver.
func (a *App) newSender(ctx context.Context) (notify.Sender, error) {
	switch strings.ToLower(strings.TrimSpace(a.cfg.NotifyDriver)) {
	case NotifyDriverLog, "":
		return notify.NewLogSender(a.log, a.cfg.NotifyLogBodies), nil

	case NotifyDriverNATS:
		conn, err := notify.ConnectNATS(a.cfg.NATSURL, a.log)
		if err != nil {
			return nil, fmt.Errorf("nats connect: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := conn.Drain(); err != nil {
				conn.Close()
			}
		})
		return notify.NewNATSSender(conn, a.cfg.NATSSubjectPrefix, a.log), nil

	case NotifyDriverWhatsApp:
		client, err := notify.OpenWhatsApp(ctx, a.cfg.WhatsAppDataDir, os.Stdout, a.log)
		if err != nil {
			return nil, fmt.Errorf("whatsapp: %w", err)
		}
		a.closers = append(a.closers, client.Disconnect)
		return notify.NewWhatsAppSender(client, a.log), nil

	default:
		return nil, fmt.Errorf("unknown notify driver %q", a.cfg.NotifyDriver)
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.registry, a.api, a.ws)

	handler := WithSecurityHeaders(WithCORS(mux, a.cfg, a.log))

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(handler, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", base,
		"watch_url", wsBaseURL(base)+"/ws/valentines/{id}",
		"db_enabled", a.dbEnabled,
	)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.sweepLoop(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	// Flush queued notifications before the transports go away.
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(shutdownCtx); err != nil {
			a.log.Error("notify.drain.fail", "err", err)
		}
	}
	a.closeAll()

	a.log.Info("server.stopped")
	return runErr
}

// sweepLoop evicts idle throttle keys so the limiters stay bounded.
func (a *App) sweepLoop(ctx context.Context) {
	t := time.NewTicker(nonZeroDuration(a.cfg.ThrottleSweepPeriod, time.Minute))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			now = now.UTC()
			a.api.Sweep(now)
			n := a.svc.SweepThrottles(now)
			a.log.Debug("throttle.sweep", "resend_keys", n)
		}
	}
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
