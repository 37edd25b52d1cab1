package whatsapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

const (
	avatarCacheSize = 512
	avatarCacheTTL  = 30 * time.Minute
	seedChatLimit   = 500
)

// MeowFactory builds whatsmeow clients backed by a per-user sqlite device store.
type MeowFactory struct {
	dataDir string
	perChat int
	history History
}

// NewMeowFactory builds clients whose chat index starts from history, which may be nil.
func NewMeowFactory(dataDir string, historyPerChat int, history History) *MeowFactory {
	return &MeowFactory{dataDir: dataDir, perChat: historyPerChat, history: history}
}

// New opens the user's newest auth profile, or a fresh time-suffixed one,
// so a previously linked device reconnects without pairing.
func (f *MeowFactory) New(ctx context.Context, userID string) (Client, error) {
	if err := os.MkdirAll(f.dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create auth data dir: %w", err)
	}

	path := ProfilePath(f.dataDir, userID, time.Now())
	if latest, err := LatestProfile(f.dataDir, userID); err != nil {
		return nil, err
	} else if latest != nil {
		path = latest.Path
	}

	logger := log.Logger.With().Str("userId", userID).Logger()

	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open auth profile: %w", err)
	}

	container := sqlstore.NewWithDB(db, "sqlite3", waLog.Zerolog(logger.With().Str("component", "sqlstore").Logger()))
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("upgrade auth profile: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	wa := whatsmeow.NewClient(device, waLog.Zerolog(logger.With().Str("component", "whatsmeow").Logger()))
	wa.EnableAutoReconnect = true
	wa.AutoTrustIdentity = true

	index := newChatIndex(f.perChat)
	if f.history != nil && device.ID != nil {
		seedIndex(ctx, index, f.history, userID, logger)
	}

	clientCtx, cancel := context.WithCancel(context.Background())
	c := &meowClient{
		wa:      wa,
		db:      db,
		path:    path,
		userID:  userID,
		log:     logger,
		history: f.history,
		index:   index,
		avatars: expirable.NewLRU[string, string](avatarCacheSize, nil, avatarCacheTTL),
		ctx:     clientCtx,
		cancel:  cancel,
	}

	logger.Debug().Str("profile", path).Bool("paired", device.ID != nil).Msg("whatsapp client created")
	return c, nil
}

// seedIndex loads the chats mirrored by earlier runs. Failures leave the index empty.
func seedIndex(ctx context.Context, ix *chatIndex, history History, userID string, logger zerolog.Logger) {
	chats, err := history.RecentChats(ctx, userID, seedChatLimit)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to seed chats from store")
		return
	}
	for _, c := range chats {
		ix.seedChat(c)
	}
	logger.Debug().Int("chats", len(chats)).Msg("chat index seeded from store")
}

type meowClient struct {
	wa      *whatsmeow.Client
	db      *sql.DB
	path    string
	userID  string
	log     zerolog.Logger
	history History
	index   *chatIndex
	avatars *expirable.LRU[string, string]

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	handler   EventHandler
	info      *Info
	closeOnce sync.Once
}

func (c *meowClient) Start(ctx context.Context, handler EventHandler) error {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()

	c.wa.AddEventHandler(c.handleEvent)

	if c.wa.Store.ID == nil {
		qrChan, err := c.wa.GetQRChannel(c.ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		go c.forwardQR(qrChan)
	}

	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (c *meowClient) emit(ev Event) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h != nil {
		h(ev)
	}
}

func (c *meowClient) forwardQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			c.emit(QREvent{Code: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			c.log.Info().Msg("qr pairing succeeded")
		case whatsmeow.QRChannelTimeout.Event:
			c.emit(DisconnectedEvent{Reason: "qr timeout"})
		case whatsmeow.QRChannelEventError:
			c.emit(AuthFailureEvent{Message: errorText(item.Error, "pairing failed")})
		default:
			if strings.HasPrefix(item.Event, "err-") {
				c.emit(AuthFailureEvent{Message: item.Event})
			}
		}
	}
}

func errorText(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}

func (c *meowClient) handleEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		info := c.currentInfo()
		c.mu.Lock()
		c.info = &info
		c.mu.Unlock()
		c.emit(ReadyEvent{Info: info})

	case *events.PairSuccess:
		c.log.Info().Str("jid", evt.ID.String()).Str("platform", evt.Platform).Msg("device paired")

	case *events.LoggedOut:
		c.clearInfo()
		c.emit(DisconnectedEvent{Reason: "logged out: " + evt.Reason.String()})

	case *events.StreamReplaced:
		c.clearInfo()
		c.emit(DisconnectedEvent{Reason: "stream replaced by another connection"})

	case *events.ConnectFailure:
		c.clearInfo()
		c.emit(AuthFailureEvent{Message: fmt.Sprintf("connect failure: %s %s", evt.Reason.String(), evt.Message)})

	case *events.TemporaryBan:
		c.clearInfo()
		c.emit(AuthFailureEvent{Message: evt.String()})

	case *events.ClientOutdated:
		c.clearInfo()
		c.emit(AuthFailureEvent{Message: "client outdated"})

	case *events.Disconnected:
		c.log.Warn().Msg("whatsapp connection dropped, reconnecting")

	case *events.Message:
		m := messageFromEvent(evt, c.selfInfo())
		c.index.addMessage(m, true)
		c.emit(MessageEvent{Message: m})

	case *events.Receipt:
		ack, ok := receiptAck(evt.Type)
		if !ok {
			return
		}
		chatID := evt.Chat.ToNonAD().String()
		ids := make([]string, len(evt.MessageIDs))
		for i, id := range evt.MessageIDs {
			ids[i] = string(id)
		}
		c.index.setAck(chatID, ids, ack)
		c.emit(AckEvent{ChatID: chatID, MessageIDs: ids, Ack: ack})

	case *events.HistorySync:
		c.applyHistory(evt)

	case *events.Archive:
		archived := evt.Action.GetArchived()
		chatID := evt.JID.ToNonAD().String()
		c.index.updateChat(chatID, chatMeta{Archived: &archived})
		c.emit(ChatUpdateEvent{ChatID: chatID, Archived: &archived})

	case *events.Mute:
		muted := evt.Action.GetMuted()
		chatID := evt.JID.ToNonAD().String()
		c.index.updateChat(chatID, chatMeta{Muted: &muted})
		c.emit(ChatUpdateEvent{ChatID: chatID, Muted: &muted})
	}
}

func (c *meowClient) applyHistory(evt *events.HistorySync) {
	self := c.selfInfo()
	messages := 0

	for _, conv := range evt.Data.GetConversations() {
		jid, err := types.ParseJID(conv.GetID())
		if err != nil || jid.IsEmpty() {
			continue
		}
		jid = jid.ToNonAD()
		chatID := jid.String()

		archived := conv.GetArchived()
		unread := int(conv.GetUnreadCount())
		muted := conv.GetMuteEndTime() > uint64(time.Now().Unix())
		name := conv.GetDisplayName()
		if name == "" {
			name = conv.GetName()
		}
		c.index.updateChat(chatID, chatMeta{
			Name:     name,
			IsGroup:  jid.Server == types.GroupServer,
			Archived: &archived,
			Muted:    &muted,
			Unread:   &unread,
			Activity: int64(conv.GetConversationTimestamp()),
		})

		for _, hm := range conv.GetMessages() {
			webMsg := hm.GetMessage()
			if webMsg == nil {
				continue
			}
			evt, err := c.wa.ParseWebMessage(jid, webMsg)
			if err != nil {
				continue
			}
			m := messageFromEvent(evt, self)
			if m.FromMe && webMsg.Status != nil {
				m.Ack = webStatusAck(int32(webMsg.GetStatus()))
			}
			c.index.addMessage(m, false)
			messages++
		}
	}

	if n := len(evt.Data.GetConversations()); n > 0 {
		c.emit(HistorySyncedEvent{Chats: n})
	}

	c.log.Debug().
		Str("type", evt.Data.GetSyncType().String()).
		Int("conversations", len(evt.Data.GetConversations())).
		Int("messages", messages).
		Int("indexedChats", c.index.size()).
		Msg("history sync applied")
}

func (c *meowClient) currentInfo() Info {
	info := Info{
		PushName: c.wa.Store.PushName,
		Platform: c.wa.Store.Platform,
	}
	if id := c.wa.Store.ID; id != nil {
		info.JID = id.ToNonAD().String()
		info.Phone = id.User
	}
	return info
}

func (c *meowClient) selfInfo() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.info != nil {
		return *c.info
	}
	return c.currentInfo()
}

func (c *meowClient) clearInfo() {
	c.mu.Lock()
	c.info = nil
	c.mu.Unlock()
}

func (c *meowClient) Info() *Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.info == nil {
		return nil
	}
	info := *c.info
	return &info
}

func (c *meowClient) Chats(ctx context.Context, limit int) ([]Chat, error) {
	if c.Info() == nil {
		return nil, errors.New("client not ready")
	}

	chats := c.index.snapshot(limit)
	for i := range chats {
		c.enrichChat(ctx, &chats[i])
	}
	return chats, nil
}

// enrichChat fills display name, phone number and avatar. Lookup failures leave
// the fields empty.
func (c *meowClient) enrichChat(ctx context.Context, chat *Chat) {
	jid, err := types.ParseJID(chat.ID)
	if err != nil {
		return
	}

	if jid.Server == types.DefaultUserServer {
		chat.PhoneNumber = jid.User
		if contact, err := c.wa.Store.Contacts.GetContact(ctx, jid); err == nil && contact.Found {
			switch {
			case contact.FullName != "":
				chat.Name = contact.FullName
			case contact.PushName != "" && chat.Name == "":
				chat.Name = contact.PushName
			case contact.BusinessName != "" && chat.Name == "":
				chat.Name = contact.BusinessName
			}
		}
	} else if jid.Server == types.GroupServer {
		chat.IsGroup = true
		if chat.Name == "" {
			if group, err := c.wa.GetGroupInfo(ctx, jid); err == nil {
				chat.Name = group.Name
			}
		}
	}
	if chat.Name == "" {
		chat.Name = jid.User
	}

	chat.Avatar = c.avatar(ctx, jid)
}

func (c *meowClient) avatar(ctx context.Context, jid types.JID) string {
	key := jid.String()
	if url, ok := c.avatars.Get(key); ok {
		return url
	}
	url := ""
	pic, err := c.wa.GetProfilePictureInfo(ctx, jid, &whatsmeow.GetProfilePictureParams{})
	if err == nil && pic != nil {
		url = pic.URL
	}
	c.avatars.Add(key, url)
	return url
}

func (c *meowClient) Messages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	jid, err := ParseChatID(chatID)
	if err != nil {
		return nil, err
	}
	chatID = jid.String()

	if c.history != nil && c.index.needsBackfill(chatID) {
		stored, err := c.history.RecentMessages(ctx, c.userID, chatID, c.index.perChat)
		if err != nil {
			c.log.Warn().Err(err).Str("chatId", chatID).Msg("failed to load stored messages")
		} else {
			c.index.backfill(chatID, stored)
		}
	}
	return c.index.recent(chatID, limit), nil
}

func (c *meowClient) SendText(ctx context.Context, chatID, text string, quoted *Message) (*Message, error) {
	self := c.Info()
	if self == nil {
		return nil, errors.New("client not ready")
	}

	jid, err := ParseChatID(chatID)
	if err != nil {
		return nil, err
	}

	payload := buildText(text, quoted)
	resp, err := c.wa.SendMessage(ctx, jid, payload)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	m := Message{
		ID:        string(resp.ID),
		ChatID:    jid.String(),
		Body:      text,
		FromMe:    true,
		From:      self.JID,
		To:        jid.String(),
		Timestamp: resp.Timestamp.Unix(),
		Type:      "chat",
		Ack:       AckSent,
		IsGroup:   jid.Server == types.GroupServer,
		Contact:   Contact{Name: self.PushName, Number: self.Phone},
		quote:     &quoteRef{stanzaID: string(resp.ID), participant: self.JID, message: payload},
	}
	c.index.addMessage(m, false)
	return &m, nil
}

func (c *meowClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.wa.Disconnect()
		c.clearInfo()
		err = c.db.Close()
	})
	return err
}
