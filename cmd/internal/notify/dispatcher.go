package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rodweleo/guess-my-valentine/cmd/security/phone"
)

const (
	defaultQueueSize   = 256
	defaultWorkers     = 2
	defaultSendTimeout = 15 * time.Second
)

// Result labels passed to the outcome hook.
const (
	ResultSent    = "sent"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
)

// Dispatcher queues messages and delivers them on background workers.
type Dispatcher struct {
	sender  Sender
	log     *slog.Logger
	timeout time.Duration
	observe func(t Type, result string)

	queue chan Message
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize sets the pending message capacity.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Message, n)
		}
	}
}

// WithSendTimeout bounds each delivery attempt.
func WithSendTimeout(v time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if v > 0 {
			d.timeout = v
		}
	}
}

// WithOutcomeHook is called once per message with its result label.
func WithOutcomeHook(fn func(t Type, result string)) DispatcherOption {
	return func(d *Dispatcher) {
		if fn != nil {
			d.observe = fn
		}
	}
}

// NewDispatcher starts workers delivering through sender.
func NewDispatcher(sender Sender, workers int, log *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	d := &Dispatcher{
		sender:  sender,
		log:     log,
		timeout: defaultSendTimeout,
		observe: func(Type, string) {},
		queue:   make(chan Message, defaultQueueSize),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.run()
	}
	return d
}

// Notify enqueues m. It never blocks; a full queue drops the message.
func (d *Dispatcher) Notify(ctx context.Context, m Message) {
	if err := m.Validate(); err != nil {
		d.log.WarnContext(ctx, "notify.invalid", "valentine_id", m.ValentineID, "type", string(m.Type), "err", err)
		d.observe(m.Type, ResultFailed)
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.observe(m.Type, ResultDropped)
		return
	}

	select {
	case d.queue <- m:
	default:
		d.log.WarnContext(ctx, "notify.dropped",
			"valentine_id", m.ValentineID,
			"type", string(m.Type),
			"err", ErrQueueFull,
		)
		d.observe(m.Type, ResultDropped)
	}
}

// Close stops accepting messages and waits for queued ones to finish or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for m := range d.queue {
		d.deliver(m)
	}
}

func (d *Dispatcher) deliver(m Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	start := time.Now()
	err := d.sender.Send(ctx, m)
	if err != nil {
		d.log.Warn("notify.send.failed",
			"valentine_id", m.ValentineID,
			"type", string(m.Type),
			"channel", string(m.Channel),
			"to", phone.Mask(m.To),
			"err", err,
		)
		d.observe(m.Type, ResultFailed)
		return
	}
	d.log.Info("notify.send.ok",
		"valentine_id", m.ValentineID,
		"type", string(m.Type),
		"channel", string(m.Channel),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	d.observe(m.Type, ResultSent)
}
