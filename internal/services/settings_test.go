package services

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-wa-gateway/internal/domain"
)

func testSettings(store *fakeStore) *SettingsService {
	return NewSettingsService(store, SettingsDefaults{
		Prefix:     ".",
		AutoStatus: domain.AutoStatus{Seen: true},
		Channels:   []string{"abc@newsletter"},
	}, zerolog.Nop())
}

func TestSettings_LazyCreateOnFirstRead(t *testing.T) {
	store := newFakeStore()
	s := testSettings(store)

	got := s.Get(context.Background(), "1555")
	if got.Prefix != "." || !got.AutoStatus.Seen {
		t.Fatalf("defaults not applied: %+v", got)
	}
	if _, ok := store.settings["1555"]; !ok {
		t.Error("settings document not lazily created")
	}
}

func TestSettings_StoreErrorFallsBackToDefaults(t *testing.T) {
	store := newFakeStore()
	store.readErr = errors.New("mongo down")
	s := testSettings(store)

	got := s.Get(context.Background(), "1555")
	if got.Prefix != "." {
		t.Fatalf("fallback prefix = %q", got.Prefix)
	}
	if len(got.Channels) != 1 || got.Channels[0] != "abc@newsletter" {
		t.Fatalf("fallback channels = %v", got.Channels)
	}
}

func TestSettings_WriteErrorDoesNotPoisonReads(t *testing.T) {
	store := newFakeStore()
	store.writeErr = errors.New("mongo down")
	s := testSettings(store)

	if err := s.SetPrefix(context.Background(), "1555", "!"); err == nil {
		t.Error("write error swallowed by SetPrefix")
	}
	// Reads still succeed on defaults.
	if got := s.EffectivePrefix(context.Background(), "1555"); got != "." {
		t.Errorf("prefix after failed write = %q", got)
	}
}

func TestSettings_SetAutoStatus(t *testing.T) {
	store := newFakeStore()
	s := testSettings(store)

	if err := s.SetAutoStatus(context.Background(), "1555", "react", true); err != nil {
		t.Fatalf("SetAutoStatus: %v", err)
	}
	got := s.Get(context.Background(), "1555")
	if !got.AutoStatus.React {
		t.Error("react toggle not persisted")
	}
	if !got.AutoStatus.Seen {
		t.Error("unrelated toggle lost")
	}
}

func TestSettings_AddChannelDeduplicates(t *testing.T) {
	store := newFakeStore()
	s := testSettings(store)

	for i := 0; i < 2; i++ {
		if err := s.AddChannel(context.Background(), "1555", "xyz@newsletter"); err != nil {
			t.Fatalf("AddChannel: %v", err)
		}
	}
	got := s.Get(context.Background(), "1555")
	if len(got.Channels) != 2 {
		t.Fatalf("channels = %v, want default + one new", got.Channels)
	}
}

func TestSettings_Delete(t *testing.T) {
	store := newFakeStore()
	s := testSettings(store)
	s.Get(context.Background(), "1555")

	s.Delete(context.Background(), "1555")
	if _, ok := store.settings["1555"]; ok {
		t.Error("settings document survived delete")
	}
}
