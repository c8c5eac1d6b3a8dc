package valentineapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rodweleo/guess-my-valentine/cmd/internal/audit"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/ids"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/redeem"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/throttle"
)

// Service is the redemption flow exposed over HTTP.
type Service interface {
	Create(ctx context.Context, in redeem.CreateInput) (string, error)
	VerifyOTP(ctx context.Context, valentineID, code string) (string, error)
	ResendOTP(ctx context.Context, valentineID string) error
	ResolveDetails(ctx context.Context, code string) (redeem.Details, error)
	Guess(ctx context.Context, code, guessedPhone string) (redeem.GuessResult, error)
	ValidateLink(ctx context.Context, code string) (bool, error)
	Respond(ctx context.Context, code, response string, activities []string) error
}

// Handler wires the valentine endpoints to the redemption service.
type Handler struct {
	log *slog.Logger
	cfg Config
	svc Service

	linkIP   *throttle.Limiter
	senderIP *throttle.Limiter
	now      func() time.Time
	audit    audit.Recorder
}

// Option configures optional Handler collaborators.
type Option func(*Handler)

// WithAudit records security-relevant outcomes.
func WithAudit(rec audit.Recorder) Option {
	return func(h *Handler) {
		if rec != nil {
			h.audit = rec
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, svc Service, cfg Config, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("valentineapi: nil service")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	h := &Handler{
		log:      log,
		cfg:      cfg,
		svc:      svc,
		linkIP:   throttle.New(cfg.LinkIPMax, cfg.LinkIPWindow),
		senderIP: throttle.New(cfg.SenderIPMax, cfg.SenderIPWindow),
		now:      time.Now,
		audit:    audit.Nop{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires valentine routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/valentine/create", h.handleCreate)
	mux.HandleFunc("/api/valentine/verify-otp", h.handleVerifyOTP)
	mux.HandleFunc("/api/valentine/resend-otp", h.handleResendOTP)
	mux.HandleFunc("/api/valentine/details", h.handleDetails)
	mux.HandleFunc("/api/valentine/guess", h.handleGuess)
	mux.HandleFunc("/api/valentine/validate-token", h.handleValidateToken)
	mux.HandleFunc("/api/valentine/respond", h.handleRespond)
}

// Sweep drops idle throttle keys.
func (h *Handler) Sweep(now time.Time) {
	h.linkIP.Sweep(now)
	h.senderIP.Sweep(now)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !h.begin(w, r, h.senderIP) {
		return
	}

	var req createRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.SenderPhone) == "" || strings.TrimSpace(req.ReceiverPhone) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "sender_phone and receiver_phone are required")
		return
	}

	id, err := h.svc.Create(r.Context(), redeem.CreateInput{
		SenderPhone:   req.SenderPhone,
		ReceiverPhone: req.ReceiverPhone,
		Message:       req.Message,
		Activities:    req.Activities,
	})
	if err != nil {
		h.writeServiceError(w, r, "valentine.create.fail", err)
		return
	}
	h.record(r, audit.ActionCreated, id, nil)
	writeJSON(w, http.StatusOK, createResponse{Success: true, ValentineID: id})
}

func (h *Handler) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	if !h.begin(w, r, h.senderIP) {
		return
	}

	var req verifyOTPRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.ValentineID) == "" || strings.TrimSpace(req.OTP) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "valentine_id and otp are required")
		return
	}

	code, err := h.svc.VerifyOTP(r.Context(), req.ValentineID, req.OTP)
	if err != nil {
		if errors.Is(err, redeem.ErrInvalidCode) {
			h.record(r, audit.ActionOTPFailed, req.ValentineID, nil)
		}
		h.writeServiceError(w, r, "valentine.verify_otp.fail", err)
		return
	}
	h.record(r, audit.ActionOTPVerified, req.ValentineID, nil)
	writeJSON(w, http.StatusOK, verifyOTPResponse{Success: true, ShortCode: code})
}

func (h *Handler) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	if !h.begin(w, r, h.senderIP) {
		return
	}

	var req resendOTPRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.ValentineID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "valentine_id is required")
		return
	}

	if err := h.svc.ResendOTP(r.Context(), req.ValentineID); err != nil {
		if retry, limited := redeem.RetryAfter(err); limited {
			h.record(r, audit.ActionOTPResendLimited, req.ValentineID, map[string]any{"retry_after_s": int64(retry.Seconds())})
		}
		h.writeServiceError(w, r, "valentine.resend_otp.fail", err)
		return
	}
	h.record(r, audit.ActionOTPResent, req.ValentineID, nil)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) handleDetails(w http.ResponseWriter, r *http.Request) {
	if !h.begin(w, r, h.linkIP) {
		return
	}

	var req linkRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.ShortCode) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "shortCode is required")
		return
	}

	d, err := h.svc.ResolveDetails(r.Context(), req.ShortCode)
	if err != nil {
		h.linkError(w, r, "details", "valentine.details.fail", err)
		return
	}
	activities := d.Activities
	if activities == nil {
		activities = []string{}
	}
	writeJSON(w, http.StatusOK, detailsResponse{
		Status:     string(d.Status),
		Message:    d.Message,
		Activities: activities,
	})
}

func (h *Handler) handleGuess(w http.ResponseWriter, r *http.Request) {
	if !h.begin(w, r, h.linkIP) {
		return
	}

	var req guessRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.ShortCode) == "" || strings.TrimSpace(req.GuessedPhone) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "shortCode and guessed_phone are required")
		return
	}

	res, err := h.svc.Guess(r.Context(), req.ShortCode, req.GuessedPhone)
	if err != nil {
		h.linkError(w, r, "guess", "valentine.guess.fail", err)
		return
	}
	action := audit.ActionGuessIncorrect
	if res.Correct {
		action = audit.ActionGuessCorrect
	}
	h.record(r, action, res.ValentineID, map[string]any{
		"remaining_attempts": res.RemainingAttempts,
		"status":             string(res.Status),
	})
	writeJSON(w, http.StatusOK, guessResponse{Correct: res.Correct, RemainingAttempts: res.RemainingAttempts})
}

func (h *Handler) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	if !h.begin(w, r, h.linkIP) {
		return
	}

	var req linkRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ok, err := h.svc.ValidateLink(r.Context(), req.ShortCode)
	if err != nil {
		h.log.Error("valentine.validate_token.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	if !ok {
		h.record(r, audit.ActionLinkRejected, "", map[string]any{"op": "validate"})
		writeJSON(w, http.StatusUnauthorized, validateResponse{Valid: false})
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: true})
}

func (h *Handler) handleRespond(w http.ResponseWriter, r *http.Request) {
	if !h.begin(w, r, h.linkIP) {
		return
	}

	var req respondRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.ShortCode) == "" || strings.TrimSpace(req.Response) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "shortCode and response are required")
		return
	}

	if err := h.svc.Respond(r.Context(), req.ShortCode, req.Response, req.Activities); err != nil {
		h.linkError(w, r, "respond", "valentine.respond.fail", err)
		return
	}
	h.record(r, audit.ActionResponded, "", map[string]any{"response": strings.ToUpper(strings.TrimSpace(req.Response))})
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// begin enforces POST and the per-IP window. It writes the response when it returns false.
func (h *Handler) begin(w http.ResponseWriter, r *http.Request, limiter *throttle.Limiter) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	ip := clientIP(r, h.cfg.TrustProxy)
	if ip == nil {
		return true
	}
	if ok, retryAfter := limiter.Allow(ip.String(), h.now()); !ok {
		h.log.Warn("valentine.throttle.ip", "path", r.URL.Path, "retry_after_s", int64(retryAfter.Seconds()))
		h.record(r, audit.ActionRateLimited, "", map[string]any{"path": r.URL.Path})
		writeRateLimited(w, retryAfter)
		return false
	}
	return true
}

// linkError audits rejected links before writing the error.
func (h *Handler) linkError(w http.ResponseWriter, r *http.Request, op, event string, err error) {
	if errors.Is(err, redeem.ErrInvalidOrExpired) {
		h.record(r, audit.ActionLinkRejected, "", map[string]any{"op": op})
	}
	h.writeServiceError(w, r, event, err)
}

// record stores an audit event. Client-supplied ids that are not ULIDs are dropped.
func (h *Handler) record(r *http.Request, action, valentineID string, meta map[string]any) {
	valentineID = strings.TrimSpace(valentineID)
	if !ids.ValidULID(valentineID) {
		valentineID = ""
	}
	h.audit.Record(r.Context(), audit.Event{
		Action:      action,
		ValentineID: valentineID,
		IP:          clientIP(r, h.cfg.TrustProxy),
		UserAgent:   r.UserAgent(),
		Meta:        meta,
		At:          h.now(),
	})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, event string, err error) {
	switch {
	case errors.Is(err, redeem.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request")
	case errors.Is(err, redeem.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, "invalid_code", "invalid or expired code")
	case errors.Is(err, redeem.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "valentine not found")
	case errors.Is(err, redeem.ErrRateLimited):
		retry, _ := redeem.RetryAfter(err)
		writeRateLimited(w, retry)
	case errors.Is(err, redeem.ErrInvalidOrExpired):
		writeError(w, http.StatusUnauthorized, "invalid_or_expired", "invalid or expired link")
	default:
		h.log.ErrorContext(r.Context(), event, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
