package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/wabridge/bridge-server-go/internal/middleware"
	"github.com/wabridge/bridge-server-go/internal/model"
)

type SessionFinder interface {
	FindByUserID(ctx context.Context, userID string) (*model.WhatsAppSession, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type StatusHandler struct {
	sessions SessionFinder
	live     func(userID string) bool
	db       Pinger
}

func NewStatusHandler(sessions SessionFinder, live func(userID string) bool, db Pinger) *StatusHandler {
	return &StatusHandler{sessions: sessions, live: live, db: db}
}

type whatsAppStatus struct {
	Status          model.SessionStatus `json:"status"`
	PhoneNumber     *string             `json:"phoneNumber"`
	LastConnectedAt *time.Time          `json:"lastConnectedAt"`
	Live            bool                `json:"live"`
}

// GET /api/whatsapp/status
func (h *StatusHandler) WhatsApp(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	row, err := h.sessions.FindByUserID(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := whatsAppStatus{
		Status: model.SessionStatusDisconnected,
		Live:   h.live(user.ID),
	}
	if row != nil {
		resp.Status = row.Status
		resp.PhoneNumber = row.PhoneNumber
		resp.LastConnectedAt = row.LastConnectedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
