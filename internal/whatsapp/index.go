package whatsapp

import (
	"sort"
	"sync"
)

type chatEntry struct {
	id       string
	name     string
	isGroup  bool
	archived bool
	muted    bool
	unread   int
	// activity is the conversation timestamp reported by history sync, used
	// to order chats that have no messages in memory.
	activity int64
	// last stands in for the newest message while none are held in memory.
	last     *LastMessage
	messages []Message
	// backfilled is set once stored messages have been merged in.
	backfilled bool
}

func (e *chatEntry) lastTimestamp() int64 {
	if n := len(e.messages); n > 0 && e.messages[n-1].Timestamp > e.activity {
		return e.messages[n-1].Timestamp
	}
	return e.activity
}

// chatIndex is the in-memory view of a client's chats, fed by history sync,
// live messages and app state changes. Each chat keeps its newest perChat messages.
type chatIndex struct {
	mu      sync.RWMutex
	chats   map[string]*chatEntry
	perChat int
}

func newChatIndex(perChat int) *chatIndex {
	return &chatIndex{
		chats:   make(map[string]*chatEntry),
		perChat: perChat,
	}
}

func (ix *chatIndex) entry(chatID string) *chatEntry {
	e, ok := ix.chats[chatID]
	if !ok {
		e = &chatEntry{id: chatID}
		ix.chats[chatID] = e
	}
	return e
}

type chatMeta struct {
	Name     string
	IsGroup  bool
	Archived *bool
	Muted    *bool
	Unread   *int
	Activity int64
}

// seedChat adds a chat known from an earlier run. Chats already present are
// left alone so live state wins.
func (ix *chatIndex) seedChat(c Chat) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.chats[c.ID]; ok {
		return
	}
	e := &chatEntry{
		id:       c.ID,
		name:     c.Name,
		isGroup:  c.IsGroup,
		archived: c.IsArchived,
		muted:    c.IsMuted,
		unread:   c.UnreadCount,
	}
	if c.LastMessage != nil {
		last := *c.LastMessage
		e.last = &last
		e.activity = last.Timestamp
	}
	ix.chats[c.ID] = e
}

// needsBackfill reports whether stored messages for chatID have yet to be merged.
func (ix *chatIndex) needsBackfill(chatID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.chats[chatID]
	return !ok || !e.backfilled
}

// backfill merges stored messages into a chat without touching unread counts.
func (ix *chatIndex) backfill(chatID string, msgs []Message) {
	for _, m := range msgs {
		ix.addMessage(m, false)
	}
	ix.mu.Lock()
	ix.entry(chatID).backfilled = true
	ix.mu.Unlock()
}

func (ix *chatIndex) updateChat(chatID string, meta chatMeta) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	e := ix.entry(chatID)
	if meta.Name != "" {
		e.name = meta.Name
	}
	if meta.IsGroup {
		e.isGroup = true
	}
	if meta.Archived != nil {
		e.archived = *meta.Archived
	}
	if meta.Muted != nil {
		e.muted = *meta.Muted
	}
	if meta.Unread != nil {
		e.unread = *meta.Unread
	}
	if meta.Activity > e.activity {
		e.activity = meta.Activity
	}
}

// addMessage inserts or replaces m in time order. It reports whether m was new.
// New incoming messages raise the unread count when countUnread is set.
func (ix *chatIndex) addMessage(m Message, countUnread bool) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	e := ix.entry(m.ChatID)
	if m.IsGroup {
		e.isGroup = true
	}

	isNew := true
	for i := range e.messages {
		if e.messages[i].ID == m.ID {
			e.messages = append(e.messages[:i], e.messages[i+1:]...)
			isNew = false
			break
		}
	}

	pos := sort.Search(len(e.messages), func(i int) bool {
		return e.messages[i].Timestamp > m.Timestamp
	})
	e.messages = append(e.messages, Message{})
	copy(e.messages[pos+1:], e.messages[pos:])
	e.messages[pos] = m

	if over := len(e.messages) - ix.perChat; ix.perChat > 0 && over > 0 {
		e.messages = append([]Message(nil), e.messages[over:]...)
	}

	if isNew && countUnread && !m.FromMe {
		e.unread++
	}
	return isNew
}

func (ix *chatIndex) setAck(chatID string, ids []string, ack int) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	e, ok := ix.chats[chatID]
	if !ok {
		return
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for i := range e.messages {
		if _, hit := want[e.messages[i].ID]; hit {
			e.messages[i].Ack = ack
		}
	}
}

// recent returns a copy of the newest limit messages of a chat in time order.
func (ix *chatIndex) recent(chatID string, limit int) []Message {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	e, ok := ix.chats[chatID]
	if !ok {
		return []Message{}
	}
	msgs := e.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// snapshot returns up to limit chats ordered by latest activity, newest first.
func (ix *chatIndex) snapshot(limit int) []Chat {
	ix.mu.RLock()
	entries := make([]*chatEntry, 0, len(ix.chats))
	for _, e := range ix.chats {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		ti, tj := entries[i].lastTimestamp(), entries[j].lastTimestamp()
		if ti != tj {
			return ti > tj
		}
		return entries[i].id < entries[j].id
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]Chat, 0, len(entries))
	for _, e := range entries {
		c := Chat{
			ID:          e.id,
			Name:        e.name,
			IsGroup:     e.isGroup,
			IsArchived:  e.archived,
			IsMuted:     e.muted,
			UnreadCount: e.unread,
		}
		if n := len(e.messages); n > 0 {
			last := e.messages[n-1]
			c.LastMessage = &LastMessage{Body: last.Body, Timestamp: last.Timestamp, FromMe: last.FromMe}
		} else if e.last != nil {
			last := *e.last
			c.LastMessage = &last
		}
		out = append(out, c)
	}
	ix.mu.RUnlock()
	return out
}

func (ix *chatIndex) size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chats)
}
