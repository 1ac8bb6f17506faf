package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tbourn/go-wa-gateway/internal/domain"
)

// Store binds the repository functions to one database handle so services
// can depend on small consumer-side interfaces instead of *mongo.Database.
type Store struct {
	DB *mongo.Database
}

// NewStore wraps db in a Store.
func NewStore(db *mongo.Database) *Store { return &Store{DB: db} }

func (s *Store) UpsertSession(ctx context.Context, number string, ttl time.Duration) (*domain.Session, error) {
	return UpsertSession(ctx, s.DB, number, ttl)
}

func (s *Store) GetSession(ctx context.Context, number string) (*domain.Session, error) {
	return GetSession(ctx, s.DB, number)
}

func (s *Store) ListActiveSessions(ctx context.Context) ([]domain.Session, error) {
	return ListActiveSessions(ctx, s.DB)
}

func (s *Store) SaveSessionCredentials(ctx context.Context, number string, creds []byte) error {
	return SaveSessionCredentials(ctx, s.DB, number, creds)
}

func (s *Store) MarkSessionInactive(ctx context.Context, number string) error {
	return MarkSessionInactive(ctx, s.DB, number)
}

func (s *Store) DeleteSession(ctx context.Context, number string) error {
	return DeleteSession(ctx, s.DB, number)
}

func (s *Store) CountSessions(ctx context.Context) (total, active int64, err error) {
	return CountSessions(ctx, s.DB)
}

func (s *Store) UpsertPairingCode(ctx context.Context, number, code string, ttl time.Duration) (*domain.PairingCode, error) {
	return UpsertPairingCode(ctx, s.DB, number, code, ttl)
}

func (s *Store) GetPairingCode(ctx context.Context, number string) (*domain.PairingCode, error) {
	return GetPairingCode(ctx, s.DB, number)
}

func (s *Store) DeletePairingCode(ctx context.Context, number string) error {
	return DeletePairingCode(ctx, s.DB, number)
}

func (s *Store) GetSettings(ctx context.Context, number string) (*domain.UserSettings, error) {
	return GetSettings(ctx, s.DB, number)
}

func (s *Store) UpsertSettings(ctx context.Context, settings *domain.UserSettings) error {
	return UpsertSettings(ctx, s.DB, settings)
}

func (s *Store) DeleteSettings(ctx context.Context, number string) error {
	return DeleteSettings(ctx, s.DB, number)
}

func (s *Store) SaveStatsSnapshot(ctx context.Context, snap domain.StatsSnapshot) error {
	return SaveStatsSnapshot(ctx, s.DB, snap)
}

func (s *Store) LatestStatsSnapshot(ctx context.Context) (*domain.StatsSnapshot, error) {
	return LatestStatsSnapshot(ctx, s.DB)
}
