package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-wa-gateway/internal/domain"
	"github.com/tbourn/go-wa-gateway/internal/observability"
)

// StatsStore is the persistence surface the stats service consumes.
// *repo.Store satisfies it.
type StatsStore interface {
	SaveStatsSnapshot(ctx context.Context, snap domain.StatsSnapshot) error
	CountSessions(ctx context.Context) (total, active int64, err error)
}

// Broadcaster pushes events to live dashboard listeners; the WebSocket hub
// satisfies it. A nil-safe no-op implementation is fine for tests.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// StatsUpdate is the payload pushed on every counter change.
type StatsUpdate struct {
	ActiveConnections int   `json:"activeConnections"`
	TotalUsers        int64 `json:"totalUsers"`
}

// SessionEvent is the payload for linked/unlinked pushes.
type SessionEvent struct {
	SessionID string `json:"sessionId"`
}

// StatsService owns the in-memory connection counters, mirrors them to the
// Prometheus gauge, pushes dashboard updates on every change, and writes a
// durable snapshot on a fixed cadence.
type StatsService struct {
	store    StatsStore
	hub      Broadcaster
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	active int
}

// NewStatsService constructs the service. interval is the durable snapshot
// cadence.
func NewStatsService(store StatsStore, hub Broadcaster, interval time.Duration, log zerolog.Logger) *StatsService {
	return &StatsService{store: store, hub: hub, interval: interval, log: log}
}

// ConnectionOpened records a session reaching the open state.
func (s *StatsService) ConnectionOpened(ctx context.Context, sessionID string) {
	s.mu.Lock()
	s.active++
	active := s.active
	s.mu.Unlock()

	observability.ActiveConnections.Set(float64(active))
	s.hub.Broadcast("linked", SessionEvent{SessionID: sessionID})
	s.pushUpdate(ctx, active)
}

// ConnectionClosed records a terminal close.
func (s *StatsService) ConnectionClosed(ctx context.Context, sessionID string) {
	s.mu.Lock()
	if s.active > 0 {
		s.active--
	}
	active := s.active
	s.mu.Unlock()

	observability.ActiveConnections.Set(float64(active))
	s.hub.Broadcast("unlinked", SessionEvent{SessionID: sessionID})
	s.pushUpdate(ctx, active)
}

// Active returns the current open-connection count.
func (s *StatsService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Snapshot materializes the current counters, pulling totalUsers from the
// store. A store failure degrades totalUsers to zero rather than failing.
func (s *StatsService) Snapshot(ctx context.Context) domain.StatsSnapshot {
	total, _, err := s.store.CountSessions(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("session count failed for stats snapshot")
		total = 0
	}
	return domain.StatsSnapshot{
		ActiveConnections: s.Active(),
		TotalUsers:        total,
	}
}

// Run writes durable snapshots every interval until ctx is canceled. Meant
// to be started as a goroutine from main.
func (s *StatsService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.Snapshot(ctx)
			if err := s.store.SaveStatsSnapshot(ctx, snap); err != nil {
				s.log.Warn().Err(err).Msg("stats snapshot write failed")
			}
		}
	}
}

func (s *StatsService) pushUpdate(ctx context.Context, active int) {
	total, _, err := s.store.CountSessions(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("session count failed for stats push")
	}
	s.hub.Broadcast("statsUpdate", StatsUpdate{
		ActiveConnections: active,
		TotalUsers:        total,
	})
}
