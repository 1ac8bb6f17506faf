package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"

	"github.com/tbourn/go-wa-gateway/internal/domain"
	"github.com/tbourn/go-wa-gateway/internal/repo"
	"github.com/tbourn/go-wa-gateway/internal/wa"
)

// fakeTransport is a scriptable wa.Transport recording outbound traffic.
type fakeTransport struct {
	mu sync.Mutex

	events chan wa.Event

	connected  bool
	hasCreds   bool
	connectErr error
	pairCode   string
	pairErr    error
	own        types.JID

	groupInfo *types.GroupInfo
	groupErr  error
	followErr error

	sent        []*waE2E.Message
	sentTo      []types.JID
	reacts      []string
	markedRead  int
	followed    []string
	disconnects int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan wa.Event, 16)}
}

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakeTransport) Logout(context.Context) error { return nil }

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) HasCredentials() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasCreds
}

func (f *fakeTransport) RequestPairingCode(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pairCode, f.pairErr
}

func (f *fakeTransport) OwnJID() types.JID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.own
}

func (f *fakeTransport) SendMessage(_ context.Context, to types.JID, msg *waE2E.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentTo = append(f.sentTo, to)
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) React(_ context.Context, _, _ types.JID, _ string, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reacts = append(f.reacts, emoji)
	return nil
}

func (f *fakeTransport) MarkRead(context.Context, []string, time.Time, types.JID, types.JID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead++
	return nil
}

func (f *fakeTransport) GroupInfo(context.Context, types.JID) (*types.GroupInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groupInfo, f.groupErr
}

func (f *fakeTransport) UpdateGroupParticipants(context.Context, types.JID, []types.JID, wa.ParticipantChange) error {
	return nil
}

func (f *fakeTransport) FollowChannel(_ context.Context, jid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.followErr != nil {
		return f.followErr
	}
	f.followed = append(f.followed, jid)
	return nil
}

func (f *fakeTransport) Events() <-chan wa.Event     { return f.events }
func (f *fakeTransport) SnapshotCredentials() []byte { return []byte(`{"jid":"fake"}`) }

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	last := f.sent[len(f.sent)-1]
	if ext := last.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return last.GetConversation()
}

// fakeFactory hands out pre-built or freshly minted fake transports.
type fakeFactory struct {
	mu     sync.Mutex
	queue  []*fakeTransport
	made   []*fakeTransport
	makeFn func() *fakeTransport
}

func (f *fakeFactory) New(context.Context, string) (wa.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var t *fakeTransport
	if len(f.queue) > 0 {
		t = f.queue[0]
		f.queue = f.queue[1:]
	} else if f.makeFn != nil {
		t = f.makeFn()
	} else {
		t = newFakeTransport()
	}
	f.made = append(f.made, t)
	return t, nil
}

func (f *fakeFactory) builds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.made)
}

func (f *fakeFactory) latest() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.made) == 0 {
		return nil
	}
	return f.made[len(f.made)-1]
}

// fakeStore is an in-memory SessionStore + SettingsStore + StatsStore.
type fakeStore struct {
	mu        sync.Mutex
	sessions  map[string]*domain.Session
	codes     map[string]*domain.PairingCode
	settings  map[string]*domain.UserSettings
	snapshots []domain.StatsSnapshot

	readErr  error
	writeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: map[string]*domain.Session{},
		codes:    map[string]*domain.PairingCode{},
		settings: map[string]*domain.UserSettings{},
	}
}

func (s *fakeStore) UpsertSession(_ context.Context, number string, ttl time.Duration) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	now := time.Now().UTC()
	sess, ok := s.sessions[number]
	if !ok {
		sess = &domain.Session{Number: number, CreatedAt: now}
		s.sessions[number] = sess
	}
	sess.IsActive = true
	sess.LastActive = now
	sess.ExpiresAt = now.Add(ttl)
	cp := *sess
	return &cp, nil
}

func (s *fakeStore) GetSession(_ context.Context, number string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	sess, ok := s.sessions[number]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeStore) ListActiveSessions(context.Context) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	var out []domain.Session
	for _, sess := range s.sessions {
		if sess.IsActive {
			out = append(out, *sess)
		}
	}
	return out, nil
}

func (s *fakeStore) SaveSessionCredentials(_ context.Context, number string, creds []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	if sess, ok := s.sessions[number]; ok {
		sess.Credentials = creds
	}
	return nil
}

func (s *fakeStore) MarkSessionInactive(_ context.Context, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[number]
	if !ok {
		return repo.ErrNotFound
	}
	sess.IsActive = false
	return nil
}

func (s *fakeStore) DeleteSession(_ context.Context, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, number)
	return nil
}

func (s *fakeStore) CountSessions(context.Context) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return 0, 0, s.readErr
	}
	var active int64
	for _, sess := range s.sessions {
		if sess.IsActive {
			active++
		}
	}
	return int64(len(s.sessions)), active, nil
}

func (s *fakeStore) UpsertPairingCode(_ context.Context, number, code string, ttl time.Duration) (*domain.PairingCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	now := time.Now().UTC()
	pc := &domain.PairingCode{Number: number, Code: code, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	s.codes[number] = pc
	cp := *pc
	return &cp, nil
}

func (s *fakeStore) GetPairingCode(_ context.Context, number string) (*domain.PairingCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc, ok := s.codes[number]
	if !ok || time.Now().After(pc.ExpiresAt) {
		return nil, repo.ErrNotFound
	}
	cp := *pc
	return &cp, nil
}

func (s *fakeStore) DeletePairingCode(_ context.Context, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, number)
	return nil
}

func (s *fakeStore) GetSettings(_ context.Context, number string) (*domain.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	st, ok := s.settings[number]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *fakeStore) UpsertSettings(_ context.Context, settings *domain.UserSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	cp := *settings
	s.settings[settings.Number] = &cp
	return nil
}

func (s *fakeStore) DeleteSettings(_ context.Context, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.settings, number)
	return nil
}

func (s *fakeStore) SaveStatsSnapshot(_ context.Context, snap domain.StatsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (s *fakeStore) session(number string) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[number]
	if !ok {
		return nil
	}
	cp := *sess
	return &cp
}

func (s *fakeStore) code(number string) *domain.PairingCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc, ok := s.codes[number]
	if !ok {
		return nil
	}
	cp := *pc
	return &cp
}

// fakeHub records broadcast events.
type fakeHub struct {
	mu     sync.Mutex
	events []string
}

func (h *fakeHub) Broadcast(event string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *fakeHub) count(event string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e == event {
			n++
		}
	}
	return n
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
