// Package main provides a CI-friendly smoke test for the valentine status feed.
//
// It validates:
//   - create over HTTP returns a valentine id
//   - handshake + subprotocol selection on /ws/valentines/{id}
//   - the first envelope is a PENDING snapshot with a full attempt budget
//   - watch.ping -> watch.pong
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	subprotocol  = "valentine.watch.v1"
	maxReadBytes = 1 << 16
)

type envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

type statusPayload struct {
	ValentineID       string `json:"valentine_id"`
	Status            string `json:"status"`
	RemainingAttempts int    `json:"remaining_attempts"`
}

func main() {
	var (
		baseURL  = flag.String("base", "http://127.0.0.1:8080", "HTTP base URL of the server")
		origin   = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		sender   = flag.String("sender", "0712345678", "Sender phone")
		receiver = flag.String("receiver", "0798765432", "Receiver phone")
		attempts = flag.Int("attempts", 3, "Expected guess budget in the snapshot")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	wsBase, err := toWSBase(*baseURL)
	if err != nil {
		fatalf("invalid -base: %v", err)
	}

	root := context.Background()

	id := mustCreate(root, *baseURL, *sender, *receiver, *timeout)
	if *verbose {
		fmt.Printf("created: valentine_id=%s\n", id)
	}

	conn := mustConnect(root, wsBase+"/ws/valentines/"+id, *origin, *timeout)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	snap := mustRead(root, conn, *timeout)
	if snap.Type != "valentine.snapshot" {
		fatalf("first envelope type=%q want valentine.snapshot", snap.Type)
	}
	var p statusPayload
	if err := json.Unmarshal(snap.Payload, &p); err != nil {
		fatalf("unmarshal snapshot payload: %v", err)
	}
	if p.ValentineID != id || p.Status != "PENDING" || p.RemainingAttempts != *attempts {
		fatalf("unexpected snapshot: %+v", p)
	}

	ping := envelope{V: 1, Type: "watch.ping", ID: "smoke-ping", TS: time.Now().UTC(), Payload: json.RawMessage(`{}`)}
	mustWrite(root, conn, ping, *timeout)

	pong := mustRead(root, conn, *timeout)
	if pong.Type != "watch.pong" {
		fatalf("ping reply type=%q want watch.pong", pong.Type)
	}

	fmt.Printf("OK: valentine_id=%s status=%s remaining=%d\n", id, p.Status, p.RemainingAttempts)
}

func toWSBase(raw string) (string, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(raw), "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", errors.New("missing host")
	}
	return u.String(), nil
}

func mustCreate(parent context.Context, base, sender, receiver string, stepTimeout time.Duration) string {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]any{
		"sender_phone":   sender,
		"receiver_phone": receiver,
		"message":        "smoke test",
		"activities":     []string{"coffee"},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/api/valentine/create", bytes.NewReader(body))
	if err != nil {
		fatalf("build create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("create: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		fatalf("create status=%d body=%s", resp.StatusCode, raw)
	}

	var out struct {
		Success     bool   `json:"success"`
		ValentineID string `json:"valentine_id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		fatalf("unmarshal create response: %v", err)
	}
	if !out.Success || out.ValentineID == "" {
		fatalf("create response missing valentine_id: %s", raw)
	}
	return out.ValentineID
}

func mustConnect(parent context.Context, wsURL, origin string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	if got := conn.Subprotocol(); got != subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)
	return conn
}

func mustRead(parent context.Context, conn *websocket.Conn, stepTimeout time.Duration) envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		fatalf("read: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		fatalf("bad json: %v", err)
	}
	if env.Type == "error" {
		fatalf("server error: %s", env.Payload)
	}
	return env
}

func mustWrite(parent context.Context, conn *websocket.Conn, env envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
