package alerting

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voiceops/internal/events"
)

// Alert payloads. Delivery is best-effort: a failed notification is logged
// and dropped, never retried synchronously and never surfaced to the
// ingestion pipeline.

type SlowProcessingAlert struct {
	EventID   string
	Elapsed   time.Duration
	Threshold time.Duration
}

type IdleStreamAlert struct {
	Idle      time.Duration
	Threshold time.Duration
	LastEvent time.Time
}

// Notifier delivers alerts to the external channel (Slack).
type Notifier interface {
	NotifyError(ctx context.Context, p events.ErrorProjection) error
	NotifySlowProcessing(ctx context.Context, a SlowProcessingAlert) error
	NotifyIdleStream(ctx context.Context, a IdleStreamAlert) error
}

// Config controls the monitor's trigger thresholds and the active-hours
// window that gates performance alerts.
type Config struct {
	SlowThreshold time.Duration
	IdleThreshold time.Duration

	// Performance alerts fire only within [ActiveStartHour, ActiveEndHour)
	// local hours in Location. Outside the window they are discarded, not
	// queued. Error-event alerts are not gated.
	ActiveStartHour int
	ActiveEndHour   int
	Location        *time.Location
}

func (c Config) withDefaults() Config {
	out := c
	if out.SlowThreshold <= 0 {
		out.SlowThreshold = 2 * time.Second
	}
	if out.IdleThreshold <= 0 {
		out.IdleThreshold = 15 * time.Minute
	}
	if out.ActiveStartHour == 0 && out.ActiveEndHour == 0 {
		out.ActiveStartHour, out.ActiveEndHour = 9, 17
	}
	if out.Location == nil {
		out.Location = time.UTC
	}
	return out
}

// deliveryTimeout bounds one notification attempt.
const deliveryTimeout = 10 * time.Second

// Monitor watches pipeline latency and stream liveness.
//
// It tracks a single last-event-seen timestamp, updated on every observed
// ingest regardless of outcome, so idle detection keeps working across
// classification failures and suppressed alert windows.
type Monitor struct {
	mu          sync.Mutex
	lastEvent   time.Time
	idleAlerted bool

	cfg      Config
	notifier Notifier
	clock    func() time.Time
	log      *slog.Logger

	// deliver decouples notification from the observing goroutine;
	// replaced in tests to make delivery synchronous.
	deliver func(fn func(ctx context.Context) error, kind string)
}

func NewMonitor(cfg Config, notifier Notifier, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	m := &Monitor{
		cfg:      cfg.withDefaults(),
		notifier: notifier,
		clock:    time.Now,
		log:      log,
	}
	m.deliver = m.deliverAsync
	return m
}

// SetClock overrides the time source for deterministic tests.
func (m *Monitor) SetClock(clock func() time.Time) { m.clock = clock }

func (m *Monitor) deliverAsync(fn func(ctx context.Context) error, kind string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			m.log.Error("alert delivery failed", "alert", kind, "err", err)
		}
	}()
}

// ObserveEvent records that the stream produced an event.
func (m *Monitor) ObserveEvent(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if at.After(m.lastEvent) {
		m.lastEvent = at
	}
	m.idleAlerted = false
}

// ObserveProcessing samples one ingest call's wall-clock duration and fires
// the slow-processing alert on threshold breach, gated by active hours.
func (m *Monitor) ObserveProcessing(eventID string, elapsed time.Duration) {
	if elapsed <= m.cfg.SlowThreshold {
		return
	}
	m.log.Warn("slow event processing",
		"event_id", eventID,
		"elapsed_ms", elapsed.Milliseconds(),
		"threshold_ms", m.cfg.SlowThreshold.Milliseconds())

	if m.notifier == nil || !m.withinActiveHours(m.clock()) {
		return
	}
	a := SlowProcessingAlert{EventID: eventID, Elapsed: elapsed, Threshold: m.cfg.SlowThreshold}
	m.deliver(func(ctx context.Context) error {
		return m.notifier.NotifySlowProcessing(ctx, a)
	}, "slow_processing")
}

// ObserveError fires the error-event alert. Not gated by active hours.
func (m *Monitor) ObserveError(p events.ErrorProjection) {
	if m.notifier == nil {
		return
	}
	m.deliver(func(ctx context.Context) error {
		return m.notifier.NotifyError(ctx, p)
	}, "error_event")
}

// CheckIdle fires the idle-stream alert when the stream has been silent for
// longer than the threshold, at most once per idle period. Called from the
// watch loop; exported for deterministic tests.
func (m *Monitor) CheckIdle() {
	now := m.clock()

	m.mu.Lock()
	last := m.lastEvent
	if last.IsZero() {
		// Nothing observed since startup; don't alert on an empty baseline.
		m.lastEvent = now
		m.mu.Unlock()
		return
	}
	idle := now.Sub(last)
	if idle <= m.cfg.IdleThreshold || m.idleAlerted {
		m.mu.Unlock()
		return
	}
	m.idleAlerted = true
	m.mu.Unlock()

	m.log.Warn("no events received",
		"idle_minutes", idle.Minutes(),
		"last_event", last)

	if m.notifier == nil || !m.withinActiveHours(now) {
		return
	}
	a := IdleStreamAlert{Idle: idle, Threshold: m.cfg.IdleThreshold, LastEvent: last}
	m.deliver(func(ctx context.Context) error {
		return m.notifier.NotifyIdleStream(ctx, a)
	}, "idle_stream")
}

// RunIdleWatch samples idle state on a ticker until ctx is canceled.
func (m *Monitor) RunIdleWatch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckIdle()
		}
	}
}

func (m *Monitor) withinActiveHours(t time.Time) bool {
	hour := t.In(m.cfg.Location).Hour()
	return hour >= m.cfg.ActiveStartHour && hour < m.cfg.ActiveEndHour
}
