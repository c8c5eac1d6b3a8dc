// Package metrics exposes Prometheus counters for the valentine flow.
//
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "valentine"

// Result labels shared by several counters.
const (
	ResultOK          = "ok"
	ResultInvalid     = "invalid"
	ResultNotFound    = "not_found"
	ResultRateLimited = "rate_limited"
	ResultCorrect     = "correct"
	ResultIncorrect   = "incorrect"
	ResultExhausted   = "exhausted"
	ResultError       = "error"
)

// Recorder holds the registered collectors.
type Recorder struct {
	created          prometheus.Counter
	otpVerifications *prometheus.CounterVec
	otpResends       *prometheus.CounterVec
	guesses          *prometheus.CounterVec
	responses        *prometheus.CounterVec
	linkValidations  *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	collisions       prometheus.Counter
	watchers         prometheus.Gauge
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "created_total",
			Help:      "Valentines created.",
		}),
		otpVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_verifications_total",
			Help:      "Sender OTP verification attempts by result.",
		}, []string{"result"}),
		otpResends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_resends_total",
			Help:      "OTP resend requests by result.",
		}, []string{"result"}),
		guesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guesses_total",
			Help:      "Receiver guesses by result.",
		}, []string{"result"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Receiver responses by answer.",
		}, []string{"response"}),
		linkValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_validations_total",
			Help:      "Short link validations by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification outcomes by type and result.",
		}, []string{"type", "result"}),
		collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shortcode_collisions_total",
			Help:      "Short code draws that hit an existing code.",
		}),
		watchers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watch_connections",
			Help:      "Open status feed websocket connections.",
		}),
	}

	for _, c := range []prometheus.Collector{
		r.created, r.otpVerifications, r.otpResends, r.guesses, r.responses,
		r.linkValidations, r.notifications, r.collisions, r.watchers,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) ValentineCreated() {
	if r == nil {
		return
	}
	r.created.Inc()
}

func (r *Recorder) OTPVerification(result string) {
	if r == nil {
		return
	}
	r.otpVerifications.WithLabelValues(result).Inc()
}

func (r *Recorder) OTPResend(result string) {
	if r == nil {
		return
	}
	r.otpResends.WithLabelValues(result).Inc()
}

func (r *Recorder) Guess(result string) {
	if r == nil {
		return
	}
	r.guesses.WithLabelValues(result).Inc()
}

func (r *Recorder) Response(response string) {
	if r == nil {
		return
	}
	r.responses.WithLabelValues(response).Inc()
}

func (r *Recorder) LinkValidation(result string) {
	if r == nil {
		return
	}
	r.linkValidations.WithLabelValues(result).Inc()
}

// Notification matches the notify dispatcher outcome hook.
func (r *Recorder) Notification(typ, result string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(typ, result).Inc()
}

func (r *Recorder) ShortCodeCollision() {
	if r == nil {
		return
	}
	r.collisions.Inc()
}

func (r *Recorder) WatchOpened() {
	if r == nil {
		return
	}
	r.watchers.Inc()
}

func (r *Recorder) WatchClosed() {
	if r == nil {
		return
	}
	r.watchers.Dec()
}
