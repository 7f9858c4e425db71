// Package terminal runs the bar terminals: each session owns one order, the
// product card pickers and the staff PIN pad, and publishes its state to the
// customer display after every change.
package terminal

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/mandala-pos/terminal/internal/domain/pin"
	"github.com/mandala-pos/terminal/internal/domain/product"
	"github.com/mandala-pos/terminal/internal/domain/staff"
)

var (
	// ErrSessionNotFound is returned for unknown or closed terminal sessions.
	ErrSessionNotFound = errors.New("terminal session not found")
	// ErrSignedOut is returned when an operation needs a signed-in member.
	ErrSignedOut = errors.New("no staff member signed in")
)

// Event types published to the display.
const (
	EventCartUpdated    = "cart.updated"
	EventPinUpdated     = "pin.updated"
	EventPinRejected    = "pin.rejected"
	EventPinLocked      = "pin.locked"
	EventStaffSignedIn  = "staff.signed_in"
	EventStaffSignedOut = "staff.signed_out"
	EventSessionClosed  = "session.closed"
)

const (
	defaultAuthTimeout   = 5 * time.Second
	defaultIdleTTL       = 30 * time.Minute
	defaultSweepInterval = time.Minute
	defaultPinAttempts   = 5
	defaultPinLockout    = time.Minute
)

// Publisher receives session events. payload is a JSON value or nil.
type Publisher interface {
	Publish(terminalID, eventType string, payload []byte)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, []byte) {}

// Config tunes session behaviour.
type Config struct {
	PinLength   int
	PinDelay    time.Duration
	IdleTTL     time.Duration
	AuthTimeout time.Duration
	// PinAttempts wrong PINs in a row lock the pad for PinLockout.
	PinAttempts int
	PinLockout  time.Duration
}

// Deps are the collaborators of a Manager. Publisher, Scheduler and Meter
// are optional.
type Deps struct {
	Catalog       product.Repository
	Authenticator *staff.Authenticator
	Tokens        *staff.TokenIssuer
	Publisher     Publisher
	Scheduler     pin.Scheduler
	Meter         metric.Meter
	Logger        *zap.Logger
}

type metrics struct {
	opened  metric.Int64Counter
	active  metric.Int64UpDownCounter
	signIns metric.Int64Counter
	added   metric.Int64Counter
}

func newMetrics(meter metric.Meter) (metrics, error) {
	var (
		m   metrics
		err error
	)
	if m.opened, err = meter.Int64Counter("mandala.terminal.sessions.opened",
		metric.WithDescription("Terminal sessions opened"),
	); err != nil {
		return m, errors.Wrap(err, "sessions.opened")
	}
	if m.active, err = meter.Int64UpDownCounter("mandala.terminal.sessions.active",
		metric.WithDescription("Terminal sessions currently open"),
	); err != nil {
		return m, errors.Wrap(err, "sessions.active")
	}
	if m.signIns, err = meter.Int64Counter("mandala.terminal.signins",
		metric.WithDescription("Staff PIN sign-in attempts by result"),
	); err != nil {
		return m, errors.Wrap(err, "signins")
	}
	if m.added, err = meter.Int64Counter("mandala.order.items.added",
		metric.WithDescription("Units added to terminal orders"),
	); err != nil {
		return m, errors.Wrap(err, "items.added")
	}
	return m, nil
}

func (m metrics) signIn(ctx context.Context, result string) {
	m.signIns.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// Manager owns the open terminal sessions.
type Manager struct {
	cfg     Config
	deps    Deps
	metrics metrics
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager validates cfg and creates a Manager.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	if deps.Catalog == nil || deps.Authenticator == nil || deps.Tokens == nil {
		return nil, errors.New("catalog, authenticator and token issuer are required")
	}
	if cfg.PinLength == 0 {
		cfg.PinLength = pin.DefaultLength
	}
	if cfg.PinDelay == 0 {
		cfg.PinDelay = pin.DefaultDelay
	}
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if cfg.AuthTimeout == 0 {
		cfg.AuthTimeout = defaultAuthTimeout
	}
	if cfg.PinAttempts == 0 {
		cfg.PinAttempts = defaultPinAttempts
	}
	if cfg.PinLockout == 0 {
		cfg.PinLockout = defaultPinLockout
	}
	if cfg.PinAttempts < 1 || cfg.PinLockout < 0 {
		return nil, errors.New("invalid PIN lockout settings")
	}
	if cfg.PinLength < 1 {
		return nil, pin.ErrInvalidLength
	}
	if cfg.PinDelay < 0 || cfg.PinDelay > pin.MaxDelay {
		return nil, pin.ErrInvalidDelay
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Meter == nil {
		return nil, errors.New("meter is required")
	}

	m, err := newMetrics(deps.Meter)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		metrics:  m,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}, nil
}

// Open starts a session with an empty order and a fresh PIN pad. remember
// selects the long-lived staff token and keeps a signed-in session from
// being swept while its token is valid.
func (m *Manager) Open(ctx context.Context, remember bool) (*Session, error) {
	id := uuid.NewString()
	s := newSession(m, id, remember)

	opts := []pin.Option{pin.WithDelay(m.cfg.PinDelay)}
	if m.deps.Scheduler != nil {
		opts = append(opts, pin.WithScheduler(m.deps.Scheduler))
	}
	pad, err := pin.New(m.cfg.PinLength, s.onPinComplete, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create pin pad")
	}
	s.pad = pad

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.metrics.opened.Add(ctx, 1)
	m.metrics.active.Add(ctx, 1)
	s.lg.Info("Terminal session opened", zap.Bool("remember", remember))
	return s, nil
}

// Get returns the open session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close ends a session, cancelling a pending PIN completion.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.close()
	m.metrics.active.Add(ctx, -1)
	s.lg.Info("Terminal session closed")
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the configured TTL and returns
// how many were closed.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()

	m.mu.RLock()
	var idle []string
	for id, s := range m.sessions {
		if s.idle(now, m.cfg.IdleTTL) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	closed := 0
	for _, id := range idle {
		if err := m.Close(ctx, id); err == nil {
			closed++
		}
	}
	return closed
}

// RunJanitor sweeps idle sessions every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(ctx); n > 0 {
				m.deps.Logger.Info("Swept idle terminal sessions", zap.Int("count", n))
			}
		}
	}
}

// CloseAll closes every session. Used on shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Close(ctx, id)
	}
}
