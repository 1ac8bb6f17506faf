package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nyaruka/phonenumbers"

	"github.com/tbourn/go-wa-gateway/internal/domain"
	"github.com/tbourn/go-wa-gateway/internal/services"
)

// Pairer is the slice of the lifecycle manager the pairing endpoint needs.
type Pairer interface {
	Pair(ctx context.Context, number string) (code string, isNew bool, err error)
}

// CommandLister exposes the live registry snapshot.
type CommandLister interface {
	Patterns() []string
}

// StatsProvider exposes the in-memory counters and durable aggregates.
type StatsProvider interface {
	Snapshot(ctx context.Context) domain.StatsSnapshot
	Active() int
}

// SessionCounter reads session aggregates straight from the store.
type SessionCounter interface {
	CountSessions(ctx context.Context) (total, active int64, err error)
	LatestStatsSnapshot(ctx context.Context) (*domain.StatsSnapshot, error)
}

// Handler bundles the endpoint dependencies.
type Handler struct {
	Pairer   Pairer
	Commands CommandLister
	Stats    StatsProvider
	Sessions SessionCounter
}

// New constructs the Handler.
func New(p Pairer, c CommandLister, st StatsProvider, sc SessionCounter) *Handler {
	return &Handler{Pairer: p, Commands: c, Stats: st, Sessions: sc}
}

// PairRequest is the POST /pair payload.
type PairRequest struct {
	Number string `json:"number"`
}

// PairResponse is the POST /pair success payload.
type PairResponse struct {
	Success     bool   `json:"success"`
	PairingCode string `json:"pairingCode,omitempty"`
	Message     string `json:"message"`
	IsNewUser   bool   `json:"isNewUser"`
}

// Pair handles POST /pair: validates the number, asks the lifecycle manager
// for a session, and returns the pairing code to enter on the device.
func (h *Handler) Pair(c *gin.Context) {
	var req PairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body", "")
		return
	}
	if strings.TrimSpace(req.Number) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, services.ErrNumberRequired.Error(), "")
		return
	}

	number, err := normalizeNumber(req.Number)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidNumber, services.ErrInvalidNumber.Error(), "")
		return
	}

	code, isNew, err := h.Pairer.Pair(c.Request.Context(), number)
	if err != nil {
		if errors.Is(err, services.ErrPairingFailed) {
			fail(c, http.StatusInternalServerError, ErrCodePairingFailed, "pairing failed", err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "pairing failed", err.Error())
		return
	}

	msg := "Enter the pairing code on your device"
	if code == "" {
		msg = "Session restored from saved credentials"
	}
	ok(c, http.StatusOK, PairResponse{
		Success:     true,
		PairingCode: code,
		Message:     msg,
		IsNewUser:   isNew,
	})
}

// ListCommands handles GET /commands.
func (h *Handler) ListCommands(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"commands": h.Commands.Patterns()})
}

// StoreStats handles GET /store-stats: session aggregates from the store
// plus the in-memory connection counter.
func (h *Handler) StoreStats(c *gin.Context) {
	total, active, err := h.Sessions.CountSessions(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, "store stats unavailable", err.Error())
		return
	}
	body := gin.H{
		"totalSessions":     total,
		"activeSessions":    active,
		"activeConnections": h.Stats.Active(),
	}
	// Last durable snapshot is informational; absence is not an error.
	if snap, err := h.Sessions.LatestStatsSnapshot(c.Request.Context()); err == nil {
		body["lastSnapshotAt"] = snap.TakenAt
	}
	ok(c, http.StatusOK, body)
}

// normalizeNumber validates raw as an international phone number and returns
// its E.164 digits without the plus sign, the form session IDs use.
func normalizeNumber(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if !strings.HasPrefix(cleaned, "+") {
		cleaned = "+" + cleaned
	}
	parsed, err := phonenumbers.Parse(cleaned, "")
	if err != nil {
		return "", services.ErrInvalidNumber
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", services.ErrInvalidNumber
	}
	return strings.TrimPrefix(phonenumbers.Format(parsed, phonenumbers.E164), "+"), nil
}
