package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-wa-gateway/internal/domain"
	"github.com/tbourn/go-wa-gateway/internal/repo"
)

// SettingsStore is the persistence surface the settings service consumes.
// *repo.Store satisfies it.
type SettingsStore interface {
	GetSettings(ctx context.Context, number string) (*domain.UserSettings, error)
	UpsertSettings(ctx context.Context, s *domain.UserSettings) error
	DeleteSettings(ctx context.Context, number string) error
}

// SettingsDefaults is the in-memory fallback applied when a settings
// document is absent or the store is unreachable.
type SettingsDefaults struct {
	Prefix     string
	AutoStatus domain.AutoStatus
	Channels   []string
}

// SettingsService resolves per-number configuration with a default
// fallback. Reads never fail: any store error degrades to the defaults.
// Writes are best-effort and logged; the caller's primary action proceeds
// regardless.
type SettingsService struct {
	store    SettingsStore
	defaults SettingsDefaults
	log      zerolog.Logger
}

// NewSettingsService constructs the service.
func NewSettingsService(store SettingsStore, defaults SettingsDefaults, log zerolog.Logger) *SettingsService {
	return &SettingsService{store: store, defaults: defaults, log: log}
}

// Get returns the settings for number. A missing document is created lazily
// with the defaults (best-effort); a store error falls back to an in-memory
// default copy without being surfaced.
func (s *SettingsService) Get(ctx context.Context, number string) *domain.UserSettings {
	got, err := s.store.GetSettings(ctx, number)
	if err == nil {
		if got.Prefix == "" {
			got.Prefix = s.defaults.Prefix
		}
		return got
	}

	def := s.defaultSettings(number)
	if errors.Is(err, repo.ErrNotFound) {
		if werr := s.store.UpsertSettings(ctx, def); werr != nil {
			s.log.Warn().Err(werr).Str("number", number).Msg("lazy settings create failed")
		}
		return def
	}

	s.log.Warn().Err(err).Str("number", number).Msg("settings read failed, using defaults")
	return def
}

// EffectivePrefix returns the per-number prefix override, else the default.
func (s *SettingsService) EffectivePrefix(ctx context.Context, number string) string {
	return s.Get(ctx, number).Prefix
}

// SetPrefix stores a new command prefix for number.
func (s *SettingsService) SetPrefix(ctx context.Context, number, prefix string) error {
	cur := s.Get(ctx, number)
	cur.Prefix = prefix
	return s.save(ctx, cur)
}

// SetAutoStatus flips one auto-status toggle. Unknown fields are ignored
// silently; the toggle commands only pass known ones.
func (s *SettingsService) SetAutoStatus(ctx context.Context, number, field string, on bool) error {
	cur := s.Get(ctx, number)
	switch field {
	case "seen":
		cur.AutoStatus.Seen = on
	case "react":
		cur.AutoStatus.React = on
	case "reply":
		cur.AutoStatus.Reply = on
	}
	return s.save(ctx, cur)
}

// AddChannel appends jid to the number's followed-channel list, once.
func (s *SettingsService) AddChannel(ctx context.Context, number, jid string) error {
	cur := s.Get(ctx, number)
	for _, c := range cur.Channels {
		if c == jid {
			return nil
		}
	}
	cur.Channels = append(cur.Channels, jid)
	return s.save(ctx, cur)
}

// Delete removes the settings document; called alongside session deletion
// on logout. Best-effort.
func (s *SettingsService) Delete(ctx context.Context, number string) {
	if err := s.store.DeleteSettings(ctx, number); err != nil {
		s.log.Warn().Err(err).Str("number", number).Msg("settings delete failed")
	}
}

func (s *SettingsService) save(ctx context.Context, cur *domain.UserSettings) error {
	if err := s.store.UpsertSettings(ctx, cur); err != nil {
		s.log.Warn().Err(err).Str("number", cur.Number).Msg("settings write failed")
		return err
	}
	return nil
}

func (s *SettingsService) defaultSettings(number string) *domain.UserSettings {
	channels := make([]string, len(s.defaults.Channels))
	copy(channels, s.defaults.Channels)
	return &domain.UserSettings{
		Number:     number,
		Prefix:     s.defaults.Prefix,
		AutoStatus: s.defaults.AutoStatus,
		Channels:   channels,
		UpdatedAt:  time.Now().UTC(),
	}
}
