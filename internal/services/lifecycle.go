package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"github.com/tbourn/go-wa-gateway/internal/config"
	"github.com/tbourn/go-wa-gateway/internal/domain"
	"github.com/tbourn/go-wa-gateway/internal/observability"
	"github.com/tbourn/go-wa-gateway/internal/repo"
	"github.com/tbourn/go-wa-gateway/internal/wa"
)

// SessionStore is the persistence surface the lifecycle manager consumes.
// *repo.Store satisfies it.
type SessionStore interface {
	UpsertSession(ctx context.Context, number string, ttl time.Duration) (*domain.Session, error)
	GetSession(ctx context.Context, number string) (*domain.Session, error)
	ListActiveSessions(ctx context.Context) ([]domain.Session, error)
	SaveSessionCredentials(ctx context.Context, number string, creds []byte) error
	MarkSessionInactive(ctx context.Context, number string) error
	DeleteSession(ctx context.Context, number string) error
	UpsertPairingCode(ctx context.Context, number, code string, ttl time.Duration) (*domain.PairingCode, error)
	GetPairingCode(ctx context.Context, number string) (*domain.PairingCode, error)
	DeletePairingCode(ctx context.Context, number string) error
}

// handle is the process-local side of one session: the live transport plus
// lifecycle counters. Never persisted; rebuilt from the Session record on
// restart.
type handle struct {
	number    string
	transport wa.Transport
	// attempts counts consecutive reconnects since the last successful open.
	attempts int
	// openFired guards the once-per-logical-session open side effects across
	// reconnects; it doubles as "counted in active connections".
	openFired bool
}

// Manager owns one connection state machine per phone number:
// pairing → open → closing → {reconnecting | terminated}. Only the manager
// mutates the handle table entry for a given number, and each handle's event
// loop is the sole owner of its state transitions, so two machines never
// operate on the same session concurrently.
type Manager struct {
	factory    wa.Factory
	store      SessionStore
	settings   *SettingsService
	dispatcher *Dispatcher
	stats      *StatsService
	cfg        config.LifecycleConfig
	botName    string
	log        zerolog.Logger

	mu      sync.Mutex
	handles map[string]*handle

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager constructs the lifecycle manager. Shutdown releases the
// resources it spawns.
func NewManager(factory wa.Factory, store SessionStore, settings *SettingsService, dispatcher *Dispatcher, stats *StatsService, cfg config.LifecycleConfig, botName string, log zerolog.Logger) *Manager {
	root, cancel := context.WithCancel(context.Background())
	return &Manager{
		factory:    factory,
		store:      store,
		settings:   settings,
		dispatcher: dispatcher,
		stats:      stats,
		cfg:        cfg,
		botName:    botName,
		log:        log,
		handles:    make(map[string]*handle),
		root:       root,
		cancel:     cancel,
	}
}

// Pair establishes (or reuses) the session for number and returns the
// pairing code to enter on the device. An empty code with a nil error means
// no code is needed: either the number is already linked or stored
// credentials let the connection resume silently. isNew reports whether the
// durable Session record existed before this call.
func (m *Manager) Pair(ctx context.Context, number string) (code string, isNew bool, err error) {
	isNew = m.isNewNumber(ctx, number)

	// An already-connected number reuses the live session; at most the
	// stored unexpired code is repeated back.
	m.mu.Lock()
	if h, ok := m.handles[number]; ok && h.transport.IsConnected() {
		m.mu.Unlock()
		if pc, err := m.store.GetPairingCode(ctx, number); err == nil {
			return pc.Code, false, nil
		}
		return "", false, nil
	}
	m.mu.Unlock()

	t, err := m.factory.New(ctx, number)
	if err != nil {
		return "", isNew, fmt.Errorf("%w: %v", ErrPairingFailed, err)
	}
	if err := t.Connect(ctx); err != nil {
		t.Disconnect()
		return "", isNew, fmt.Errorf("%w: %v", ErrPairingFailed, err)
	}

	if !t.HasCredentials() {
		// Let the socket settle before asking the network for a code.
		select {
		case <-time.After(m.cfg.SettleDelay):
		case <-ctx.Done():
			t.Disconnect()
			return "", isNew, ctx.Err()
		}
		code, err = t.RequestPairingCode(ctx, number)
		if err != nil {
			t.Disconnect()
			return "", isNew, fmt.Errorf("%w: %v", ErrPairingFailed, err)
		}
		if _, err := m.store.UpsertPairingCode(ctx, number, code, m.cfg.PairingCodeTTL); err != nil {
			m.log.Warn().Err(err).Str("number", number).Msg("pairing code persist failed")
		}
	}

	if _, err := m.store.UpsertSession(ctx, number, m.cfg.SessionTTL); err != nil {
		m.log.Warn().Err(err).Str("number", number).Msg("session upsert failed")
	}

	m.register(number, t)
	return code, isNew, nil
}

// ResumeActive re-establishes a handle for every Session marked active in
// the store, each independently, without blocking the caller.
func (m *Manager) ResumeActive(ctx context.Context) {
	sessions, err := m.store.ListActiveSessions(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("active session enumeration failed, skipping resume")
		return
	}
	for _, s := range sessions {
		go m.resume(s.Number)
	}
	if len(sessions) > 0 {
		m.log.Info().Int("sessions", len(sessions)).Msg("resuming active sessions")
	}
}

func (m *Manager) resume(number string) {
	t, err := m.factory.New(m.root, number)
	if err != nil {
		m.log.Error().Err(err).Str("number", number).Msg("resume: transport build failed")
		return
	}
	if !t.HasCredentials() {
		// Active in the store but nothing to resume from; require re-pairing.
		t.Disconnect()
		if err := m.store.MarkSessionInactive(m.root, number); err != nil && !errors.Is(err, repo.ErrNotFound) {
			m.log.Warn().Err(err).Str("number", number).Msg("resume: deactivate failed")
		}
		return
	}
	if err := t.Connect(m.root); err != nil {
		t.Disconnect()
		m.log.Error().Err(err).Str("number", number).Msg("resume: connect failed")
		return
	}
	m.register(number, t)
}

// Shutdown stops every event loop and disconnects all transports, bounded
// by ctx.
func (m *Manager) Shutdown(ctx context.Context) {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.log.Warn().Msg("lifecycle shutdown timed out")
	}
}

func (m *Manager) isNewNumber(ctx context.Context, number string) bool {
	_, err := m.store.GetSession(ctx, number)
	if err == nil {
		return false
	}
	if errors.Is(err, repo.ErrNotFound) {
		return true
	}
	m.log.Warn().Err(err).Str("number", number).Msg("session lookup failed")
	return false
}

// register installs the handle as the single live one for number and starts
// its event loop.
func (m *Manager) register(number string, t wa.Transport) {
	m.mu.Lock()
	if old, ok := m.handles[number]; ok {
		old.transport.Disconnect()
	}
	h := &handle{number: number, transport: t}
	m.handles[number] = h
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runLoop(h)
}

// closeIfEvicted settles the connection counter for a handle whose loop
// exits while a replacement owns the number, e.g. a re-pair landing during
// a pending reconnect delay. Handles that leave through terminate, or that
// are still registered at shutdown, have already settled or never counted.
func (m *Manager) closeIfEvicted(h *handle) {
	if h.openFired && !m.registered(h) {
		h.openFired = false
		m.stats.ConnectionClosed(m.root, h.number)
	}
}

func (m *Manager) registered(h *handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[h.number] == h
}

// runLoop is the sole consumer of a handle's transport events; transitions
// for one session are processed strictly in emission order.
func (m *Manager) runLoop(h *handle) {
	defer m.wg.Done()
	defer m.closeIfEvicted(h)
	for {
		select {
		case <-m.root.Done():
			h.transport.Disconnect()
			return
		case ev, ok := <-h.transport.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case wa.EventOpen:
				m.onOpen(h)
			case wa.EventPaired:
				m.log.Info().Str("number", h.number).Msg("device paired")
				if err := m.store.DeletePairingCode(m.root, h.number); err != nil {
					m.log.Warn().Err(err).Str("number", h.number).Msg("pairing code cleanup failed")
				}
			case wa.EventCredentials:
				// Persist before processing anything else; losing this
				// forces a re-pair.
				if err := m.store.SaveSessionCredentials(m.root, h.number, ev.Credentials); err != nil {
					m.log.Error().Err(err).Str("number", h.number).Msg("credential persist failed")
				}
			case wa.EventMessage:
				m.dispatcher.Dispatch(m.root, h.transport, ev.Message)
			case wa.EventClosed:
				if !m.onClosed(h, ev.Reason) {
					return
				}
			}
		}
	}
}

// onOpen performs the once-per-logical-session open side effects.
func (m *Manager) onOpen(h *handle) {
	reconnected := h.attempts > 0
	h.attempts = 0
	if h.openFired {
		if reconnected {
			m.log.Info().Str("number", h.number).Msg("session reconnected")
		}
		return
	}
	h.openFired = true

	m.log.Info().Str("number", h.number).Msg("session open")
	if _, err := m.store.UpsertSession(m.root, h.number, m.cfg.SessionTTL); err != nil {
		m.log.Warn().Err(err).Str("number", h.number).Msg("session refresh failed")
	}
	m.stats.ConnectionOpened(m.root, h.number)
	m.followChannels(h)
	go m.welcome(h)
}

// followChannels subscribes to every configured channel; one failure never
// aborts the remaining attempts.
func (m *Manager) followChannels(h *handle) {
	for _, jid := range m.settings.Get(m.root, h.number).Channels {
		if err := h.transport.FollowChannel(m.root, jid); err != nil {
			m.log.Warn().Err(err).Str("number", h.number).Str("channel", jid).Msg("channel follow failed")
		}
	}
}

// welcome sends the one-time connected notice to the account's own chat
// after the settling delay, re-checking registration at fire time.
func (m *Manager) welcome(h *handle) {
	select {
	case <-time.After(m.cfg.SettleDelay):
	case <-m.root.Done():
		return
	}
	if !m.registered(h) {
		return
	}
	own := h.transport.OwnJID()
	if own.IsEmpty() {
		return
	}
	msg := &waE2E.Message{Conversation: proto.String(fmt.Sprintf("%s connected ✅", m.botName))}
	if err := h.transport.SendMessage(m.root, own.ToNonAD(), msg); err != nil {
		m.log.Warn().Err(err).Str("number", h.number).Msg("welcome notice failed")
	}
}

// onClosed decides the post-close transition. Returns false when the loop
// must stop (terminated, unregistered, or shutting down).
func (m *Manager) onClosed(h *handle, reason wa.DisconnectReason) bool {
	m.log.Warn().Str("number", h.number).Stringer("reason", reason).Msg("session closed")

	if reason.Terminal() {
		m.terminate(h, true)
		return false
	}
	if h.attempts >= m.cfg.MaxReconnectAttempts {
		m.terminate(h, false)
		return false
	}

	h.attempts++
	delay := time.Duration(h.attempts) * m.cfg.ReconnectStep
	observability.ReconnectAttempts.Inc()
	m.log.Info().Str("number", h.number).Int("attempt", h.attempts).Dur("delay", delay).
		Msg("scheduling reconnect")

	select {
	case <-time.After(delay):
	case <-m.root.Done():
		return false
	}
	// A session removed from the active set while the timer was pending
	// must not come back.
	if !m.registered(h) {
		return false
	}

	t, err := m.factory.New(m.root, h.number)
	if err != nil {
		m.log.Error().Err(err).Str("number", h.number).Msg("reconnect: transport build failed")
		return m.onClosed(h, wa.ReasonConnectionLost)
	}
	if err := t.Connect(m.root); err != nil {
		t.Disconnect()
		m.log.Error().Err(err).Str("number", h.number).Msg("reconnect: connect failed")
		return m.onClosed(h, wa.ReasonConnectionLost)
	}

	old := h.transport
	h.transport = t
	old.Disconnect()
	return true
}

// terminate removes the handle and applies the terminal persistence policy:
// explicit logout deletes the Session, PairingCode, and settings outright;
// cap exhaustion keeps the Session with its credentials, marked inactive.
func (m *Manager) terminate(h *handle, loggedOut bool) {
	m.mu.Lock()
	if m.handles[h.number] == h {
		delete(m.handles, h.number)
	}
	m.mu.Unlock()
	h.transport.Disconnect()

	if h.openFired {
		h.openFired = false
		m.stats.ConnectionClosed(m.root, h.number)
	}

	if loggedOut {
		observability.SessionsTerminated.WithLabelValues("logout").Inc()
		if err := m.store.DeleteSession(m.root, h.number); err != nil {
			m.log.Error().Err(err).Str("number", h.number).Msg("session delete failed")
		}
		if err := m.store.DeletePairingCode(m.root, h.number); err != nil {
			m.log.Warn().Err(err).Str("number", h.number).Msg("pairing code delete failed")
		}
		m.settings.Delete(m.root, h.number)
		m.log.Info().Str("number", h.number).Msg("session terminated: logged out")
		return
	}

	observability.SessionsTerminated.WithLabelValues("reconnect_cap").Inc()
	if err := m.store.MarkSessionInactive(m.root, h.number); err != nil && !errors.Is(err, repo.ErrNotFound) {
		m.log.Error().Err(err).Str("number", h.number).Msg("session deactivate failed")
	}
	m.log.Info().Str("number", h.number).Msg("session terminated: reconnect cap exhausted")
}
