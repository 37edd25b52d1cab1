package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wabridge/bridge-server-go/internal/middleware"
	"github.com/wabridge/bridge-server-go/internal/model"
)

type MessageService interface {
	History(ctx context.Context, userID, chatID string) ([]model.Message, error)
	Search(ctx context.Context, userID, query string) ([]model.Message, error)
}

type MessageHandler struct {
	messages MessageService
}

func NewMessageHandler(messages MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

func (h *MessageHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/search/{query}", h.Search)
	r.Get("/{chatId}", h.History)

	return r
}

// GET /api/messages/{chatId}
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	msgs, err := h.messages.History(r.Context(), user.ID, chi.URLParam(r, "chatId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// GET /api/messages/search/{query}
func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	msgs, err := h.messages.Search(r.Context(), user.ID, chi.URLParam(r, "query"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}
