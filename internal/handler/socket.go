package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/wabridge/bridge-server-go/internal/bridge"
	apperrors "github.com/wabridge/bridge-server-go/internal/errors"
	"github.com/wabridge/bridge-server-go/internal/metrics"
	"github.com/wabridge/bridge-server-go/internal/middleware"
	"github.com/wabridge/bridge-server-go/internal/realtime"
	"github.com/wabridge/bridge-server-go/internal/whatsapp"
)

const (
	socketWriteWait      = 10 * time.Second
	socketPongWait       = 60 * time.Second
	socketPingPeriod     = realtime.HeartbeatInterval
	socketMaxMessageSize = 64 << 10
	commandTimeout       = 30 * time.Second
)

// Commands is the command surface of the session manager.
type Commands interface {
	Initialize(ctx context.Context, userID string, sink bridge.Sink) error
	SendMessage(ctx context.Context, userID string, params bridge.SendParams) (*whatsapp.Message, error)
	GetChats(ctx context.Context, userID string) ([]whatsapp.Chat, error)
	GetMessages(ctx context.Context, userID, chatID string) (*bridge.MessagesPayload, error)
	Disconnect(ctx context.Context, userID string) error
}

// Rooms joins connections to their user's room.
type Rooms interface {
	Subscribe(userID string) *realtime.Client
	Unsubscribe(client *realtime.Client)
}

// SocketHandler is the real-time gateway. Every connection joins its user's
// room and may issue commands; replies and session events share one outbound queue.
type SocketHandler struct {
	commands Commands
	rooms    Rooms
	upgrader websocket.Upgrader
}

func NewSocketHandler(commands Commands, rooms Rooms, allowedOrigin string) *SocketHandler {
	return &SocketHandler{
		commands: commands,
		rooms:    rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    []string{middleware.WebSocketTokenProtocol},
			CheckOrigin:     originChecker(allowedOrigin),
		},
	}
}

func originChecker(allowed string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed == "*" {
			return true
		}
		return strings.EqualFold(strings.TrimRight(origin, "/"), strings.TrimRight(allowed, "/"))
	}
}

// GET /api/socket
func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Missing authentication token"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("userId", user.ID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	client := h.rooms.Subscribe(user.ID)
	defer h.rooms.Unsubscribe(client)

	logger := log.With().Str("userId", user.ID).Str("connId", client.ID).Logger()
	logger.Info().Msg("socket connection established")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx)

	go h.writePump(conn, client)

	conn.SetReadLimit(socketMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(socketPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(socketPongWait))
	})

	for {
		var ev realtime.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("socket read failed")
			}
			break
		}

		h.dispatch(ctx, user.ID, client, ev)
		conn.SetReadDeadline(time.Now().Add(socketPongWait))
	}

	logger.Info().Msg("socket connection closed")
}

func (h *SocketHandler) writePump(conn *websocket.Conn, client *realtime.Client) {
	ticker := time.NewTicker(socketPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-client.Done:
			conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case ev := <-client.Events:
			conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Str("connId", client.ID).Msg("socket write failed")
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch runs one command and replies on the issuing connection.
func (h *SocketHandler) dispatch(ctx context.Context, userID string, client *realtime.Client, ev realtime.Event) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var err error
	switch ev.Name {
	case realtime.CommandInitialize:
		if err = h.commands.Initialize(ctx, userID, client); err != nil {
			client.Send(realtime.ErrorEvent(commandError(err, "Failed to initialize WhatsApp")))
		}

	case realtime.CommandSendMessage:
		var params bridge.SendParams
		if err = json.Unmarshal(ev.Data, &params); err != nil {
			err = apperrors.ValidationError("Invalid send-message payload")
		} else {
			_, err = h.commands.SendMessage(ctx, userID, params)
		}
		if err != nil {
			client.Send(realtime.ErrorEvent(commandError(err, "Failed to send message")))
		}

	case realtime.CommandGetChats:
		var chats []whatsapp.Chat
		if chats, err = h.commands.GetChats(ctx, userID); err != nil {
			client.Send(realtime.ErrorEvent(commandError(err, "Failed to get chats")))
			break
		}
		if chats == nil {
			chats = []whatsapp.Chat{}
		}
		reply(client, realtime.EventChats, chats)

	case realtime.CommandGetMessages:
		var payload *bridge.MessagesPayload
		if payload, err = h.commands.GetMessages(ctx, userID, chatIDFrom(ev.Data)); err != nil {
			client.Send(realtime.ErrorEvent(commandError(err, "Failed to get messages")))
			break
		}
		reply(client, realtime.EventMessages, payload)

	case realtime.CommandDisconnect:
		if err = h.commands.Disconnect(ctx, userID); err != nil {
			if errors.Is(err, bridge.ErrNotConnected) {
				client.Send(realtime.ErrorEvent(bridge.ErrNotConnected.Message))
			} else {
				log.Ctx(ctx).Error().Err(err).Msg("disconnect failed")
			}
		}

	default:
		log.Ctx(ctx).Debug().Str("event", ev.Name).Msg("ignoring unknown command")
		metrics.CommandsTotal.WithLabelValues("unknown", "ignored").Inc()
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
		log.Ctx(ctx).Warn().Err(err).Str("command", ev.Name).Msg("command failed")
	}
	metrics.CommandsTotal.WithLabelValues(ev.Name, result).Inc()
}

func reply(client *realtime.Client, name string, data any) {
	ev, err := realtime.NewEvent(name, data)
	if err != nil {
		log.Error().Err(err).Str("event", name).Msg("failed to encode reply")
		return
	}
	client.Send(ev)
}

// chatIDFrom accepts either a bare JSON string or {"chatId": "..."}.
func chatIDFrom(data json.RawMessage) string {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return id
	}
	var obj struct {
		ChatID string `json:"chatId"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return obj.ChatID
	}
	return ""
}

// commandError picks the message shown to the client. Errors the user can act
// on keep their own message; everything else gets the command's generic text.
func commandError(err error, fallback string) string {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		return fallback
	}
	switch appErr.Code {
	case apperrors.ErrCodeNotConnected,
		apperrors.ErrCodeSessionCapacity,
		apperrors.ErrCodeMissingRequired,
		apperrors.ErrCodeValidation:
		return appErr.Message
	}
	return fallback
}
