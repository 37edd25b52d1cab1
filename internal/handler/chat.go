package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/wabridge/bridge-server-go/internal/errors"
	"github.com/wabridge/bridge-server-go/internal/middleware"
	"github.com/wabridge/bridge-server-go/internal/model"
)

type ChatService interface {
	List(ctx context.Context, userID string, limit, offset int) ([]model.Chat, error)
	Get(ctx context.Context, userID, chatID string) (*model.Chat, error)
	SetArchived(ctx context.Context, userID, chatID string, archived bool) (*model.Chat, error)
	SetMuted(ctx context.Context, userID, chatID string, muted bool) (*model.Chat, error)
}

type ChatHandler struct {
	chats ChatService
}

func NewChatHandler(chats ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

func (h *ChatHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/{chatId}", h.Get)
	r.Patch("/{chatId}/archive", h.Archive)
	r.Patch("/{chatId}/mute", h.Mute)

	return r
}

// GET /api/chats
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	page := ParsePagination(r)

	chats, err := h.chats.List(r.Context(), user.ID, page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

// GET /api/chats/{chatId}
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	chat, err := h.chats.Get(r.Context(), user.ID, chi.URLParam(r, "chatId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// PATCH /api/chats/{chatId}/archive
func (h *ChatHandler) Archive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Archived *bool `json:"archived"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Archived == nil {
		writeError(w, apperrors.MissingRequired("archived"))
		return
	}

	user := middleware.GetUser(r.Context())
	chat, err := h.chats.SetArchived(r.Context(), user.ID, chi.URLParam(r, "chatId"), *req.Archived)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// PATCH /api/chats/{chatId}/mute
func (h *ChatHandler) Mute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Muted *bool `json:"muted"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Muted == nil {
		writeError(w, apperrors.MissingRequired("muted"))
		return
	}

	user := middleware.GetUser(r.Context())
	chat, err := h.chats.SetMuted(r.Context(), user.ID, chi.URLParam(r, "chatId"), *req.Muted)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}
