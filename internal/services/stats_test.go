package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-wa-gateway/internal/domain"
)

func TestStats_CountersAndBroadcasts(t *testing.T) {
	store := newFakeStore()
	store.sessions["a"] = &domain.Session{Number: "a", IsActive: true}
	hub := &fakeHub{}
	s := NewStatsService(store, hub, time.Hour, zerolog.Nop())

	s.ConnectionOpened(context.Background(), "a")
	if s.Active() != 1 {
		t.Fatalf("active = %d", s.Active())
	}
	if hub.count("linked") != 1 || hub.count("statsUpdate") != 1 {
		t.Errorf("broadcasts after open: %v", hub.events)
	}

	s.ConnectionClosed(context.Background(), "a")
	if s.Active() != 0 {
		t.Fatalf("active = %d", s.Active())
	}
	if hub.count("unlinked") != 1 || hub.count("statsUpdate") != 2 {
		t.Errorf("broadcasts after close: %v", hub.events)
	}

	// Never goes negative.
	s.ConnectionClosed(context.Background(), "a")
	if s.Active() != 0 {
		t.Errorf("active went negative: %d", s.Active())
	}
}

func TestStats_SnapshotPullsTotalsFromStore(t *testing.T) {
	store := newFakeStore()
	store.sessions["a"] = &domain.Session{Number: "a", IsActive: true}
	store.sessions["b"] = &domain.Session{Number: "b"}
	s := NewStatsService(store, &fakeHub{}, time.Hour, zerolog.Nop())
	s.ConnectionOpened(context.Background(), "a")

	snap := s.Snapshot(context.Background())
	if snap.TotalUsers != 2 {
		t.Errorf("totalUsers = %d, want 2", snap.TotalUsers)
	}
	if snap.ActiveConnections != 1 {
		t.Errorf("activeConnections = %d, want 1", snap.ActiveConnections)
	}
}

func TestStats_RunWritesDurableSnapshots(t *testing.T) {
	store := newFakeStore()
	s := NewStatsService(store, &fakeHub{}, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitFor(t, "durable snapshot", func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.snapshots) >= 2
	})
	cancel()
	<-done
}
