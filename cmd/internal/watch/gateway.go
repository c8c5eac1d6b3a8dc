// Package watch serves the sender-side live status feed over WebSocket.
//
// A watcher connects to /ws/valentines/{id}, receives one snapshot and then a
// status envelope after every wrong guess or response. Only status and the
// remaining attempt count are ever pushed.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/rodweleo/guess-my-valentine/cmd/internal/ids"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/metrics"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/redeem"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/throttle"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/valentine"
)

const (
	maxFrameBytes = 4 << 10

	defaultSendQueueSize = 16
	defaultWriteTimeout  = 5 * time.Second
	defaultReadIdle      = 2 * time.Minute
	defaultHeartbeat     = 25 * time.Second
	defaultHeartbeatWait = 5 * time.Second
	closeGrace           = time.Second

	maxPingFailures = 3

	defaultRateEvents = 30
	defaultRateWindow = 10 * time.Second

	defaultOriginRequired = true
	defaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// StatusSource loads the current status of a valentine.
type StatusSource interface {
	Status(ctx context.Context, valentineID string) (redeem.StatusEvent, error)
}

// Config tunes the gateway.
type Config struct {
	OriginRequired bool
	AllowedOrigins []string

	SendQueueSize    int
	WriteTimeout     time.Duration
	ReadIdleTimeout  time.Duration
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration
}

// LoadConfigFromEnv reads VALENTINE_WS_* variables.
func LoadConfigFromEnv() Config {
	return Config{
		OriginRequired:   envBoolWS("VALENTINE_WS_ORIGIN_REQUIRED", defaultOriginRequired),
		AllowedOrigins:   envCSVWS("VALENTINE_WS_ALLOWED_ORIGINS", defaultAllowedOrigins),
		SendQueueSize:    envIntWS("VALENTINE_WS_SEND_QUEUE", defaultSendQueueSize),
		WriteTimeout:     envDurationWS("VALENTINE_WS_WRITE_TIMEOUT", defaultWriteTimeout),
		ReadIdleTimeout:  envDurationWS("VALENTINE_WS_READ_IDLE_TIMEOUT", defaultReadIdle),
		HeartbeatEvery:   envDurationWS("VALENTINE_WS_HEARTBEAT_INTERVAL", defaultHeartbeat),
		HeartbeatTimeout: envDurationWS("VALENTINE_WS_HEARTBEAT_TIMEOUT", defaultHeartbeatWait),
		RateEvents:       envIntWS("VALENTINE_WS_RATE_EVENTS", defaultRateEvents),
		RateWindow:       envDurationWS("VALENTINE_WS_RATE_WINDOW", defaultRateWindow),
	}
}

// Gateway upgrades watch requests and runs one loop per connection.
type Gateway struct {
	log     *slog.Logger
	hub     *Hub
	source  StatusSource
	metrics *metrics.Recorder
	cfg     Config

	// Host patterns for websocket.Accept, derived from AllowedOrigins.
	originPatterns []string
}

// NewGateway constructs a Gateway.
func NewGateway(log *slog.Logger, hub *Hub, source StatusSource, cfg Config, rec *metrics.Recorder) (*Gateway, error) {
	if hub == nil || source == nil {
		return nil, errors.New("watch: nil hub or status source")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = defaultSendQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReadIdleTimeout <= 0 {
		cfg.ReadIdleTimeout = defaultReadIdle
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = defaultHeartbeat
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = defaultHeartbeatWait
	}
	return &Gateway{
		log:            log,
		hub:            hub,
		source:         source,
		metrics:        rec,
		cfg:            cfg,
		originPatterns: deriveOriginPatternsFromAllowedOrigins(cfg.AllowedOrigins),
	}, nil
}

// Register mounts the gateway on mux.
func (g *Gateway) Register(mux *http.ServeMux) {
	mux.Handle("GET /ws/valentines/{id}", g)
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	valentineID := strings.TrimSpace(r.PathValue("id"))
	if !ids.ValidULID(valentineID) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("watch.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	snap, err := g.source.Status(r.Context(), valentineID)
	if err != nil {
		if errors.Is(err, redeem.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		g.log.Error("watch.snapshot.fail", "valentine_id", valentineID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Error("watch.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != Subprotocol {
		g.log.Info("watch.reject.subprotocol", "got", sp, "want", Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	g.serve(r.Context(), conn, snap)
}

func (g *Gateway) serve(parent context.Context, conn *websocket.Conn, snap redeem.StatusEvent) {
	sessionID := NewRandomHex(10)
	client := NewClient(snap.ValentineID, sessionID, g.cfg.SendQueueSize)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Queue the snapshot before joining so it is always first.
	client.Send <- newEnvelope(TypeSnapshot, statusPayload(snap), time.Now().UTC())
	g.hub.Join(client)
	g.metrics.WatchOpened()
	g.log.Info("watch.open", "valentine_id", snap.ValentineID, "session_id", sessionID)

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Leave(client)
			g.metrics.WatchClosed()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("watch.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
				if isTerminal(env) {
					shutdown(websocket.StatusNormalClosure, "resolved")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()
				if err != nil {
					failures++
					if failures >= maxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	rl := throttle.New(g.cfg.RateEvents, g.cfg.RateWindow)

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(ctx, client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("watch.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		if ok, _ := rl.Allow(sessionID, time.Now().UTC()); !ok {
			g.trySendError(ctx, client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.ValidateInbound(); err != nil {
			g.trySendError(ctx, client, "bad_envelope", err.Error())
			continue readLoop
		}

		// watch.ping is the only inbound type.
		g.enqueue(ctx, client, newEnvelope(TypePong, struct{}{}, time.Now().UTC()))
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
	g.log.Info("watch.close", "valentine_id", snap.ValentineID, "session_id", sessionID)
}

func isTerminal(env Envelope) bool {
	if env.Type != TypeStatus && env.Type != TypeSnapshot {
		return false
	}
	var p StatusPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return false
	}
	return valentine.Status(p.Status).Terminal()
}

func (g *Gateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	g.enqueue(ctx, client, newEnvelope(TypeError, ErrorPayload{Code: code, Message: msg}, time.Now().UTC()))
}

func (g *Gateway) enqueue(ctx context.Context, client *Client, env Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		return false
	}
}

// ---- envelope IO ----

func readEnvelope(ctx context.Context, conn *websocket.Conn) (Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || strings.Contains(err.Error(), "unexpected end of JSON input") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}
	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
			continue
		case a == "*":
			return nil
		case origin == a:
			return nil
		case originHost != "" && originHost == originHostOnly(a):
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatternsFromAllowedOrigins keeps websocket.Accept's own origin
// check in agreement with enforceOrigin.
func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	out := make([]string, 0, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
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

func envIntWS(key string, def int) int {
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

func envDurationWS(key string, def time.Duration) time.Duration {
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

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
