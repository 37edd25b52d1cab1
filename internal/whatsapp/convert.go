package whatsapp

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

type quoteRef struct {
	stanzaID    string
	participant string
	message     *waE2E.Message
}

// ParseChatID accepts a full JID, a legacy "@c.us" id or a bare phone number.
func ParseChatID(chatID string) (types.JID, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return types.EmptyJID, fmt.Errorf("empty chat id")
	}
	if strings.HasSuffix(chatID, "@c.us") {
		chatID = strings.TrimSuffix(chatID, "@c.us") + "@" + types.DefaultUserServer
	}
	if !strings.Contains(chatID, "@") {
		return types.NewJID(strings.TrimPrefix(chatID, "+"), types.DefaultUserServer), nil
	}
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return types.EmptyJID, fmt.Errorf("parse chat id %q: %w", chatID, err)
	}
	return jid.ToNonAD(), nil
}

func messageFromEvent(evt *events.Message, self Info) Message {
	chat := evt.Info.Chat.ToNonAD()
	sender := evt.Info.Sender.ToNonAD()

	m := Message{
		ID:        evt.Info.ID,
		ChatID:    chat.String(),
		Body:      messageText(evt.Message),
		FromMe:    evt.Info.IsFromMe,
		Timestamp: evt.Info.Timestamp.Unix(),
		Type:      messageType(evt.Message),
		HasMedia:  hasMedia(evt.Message),
		IsGroup:   evt.Info.IsGroup,
		quote: &quoteRef{
			stanzaID:    evt.Info.ID,
			participant: sender.String(),
			message:     evt.Message,
		},
	}

	if m.FromMe {
		m.From = self.JID
		m.To = chat.String()
		m.Ack = AckSent
		m.Contact = Contact{Name: self.PushName, Number: self.Phone}
	} else {
		m.From = chat.String()
		m.To = self.JID
		m.Ack = AckDelivered
		m.Contact = Contact{Name: evt.Info.PushName, Number: sender.User}
		if evt.Info.IsGroup {
			m.Author = sender.String()
		}
	}
	return m
}

// buildText builds the outgoing payload, attaching reply context when quoted is set.
func buildText(text string, quoted *Message) *waE2E.Message {
	if quoted == nil {
		return &waE2E.Message{Conversation: proto.String(text)}
	}

	ctxInfo := &waE2E.ContextInfo{StanzaID: proto.String(quoted.ID)}
	if q := quoted.quote; q != nil {
		if q.participant != "" {
			ctxInfo.Participant = proto.String(q.participant)
		}
		ctxInfo.QuotedMessage = q.message
	}

	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(text),
			ContextInfo: ctxInfo,
		},
	}
}

func messageText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil:
		if c := msg.GetDocumentMessage().GetCaption(); c != "" {
			return c
		}
		return msg.GetDocumentMessage().GetFileName()
	case msg.GetLocationMessage() != nil:
		return msg.GetLocationMessage().GetName()
	case msg.GetContactMessage() != nil:
		return msg.GetContactMessage().GetDisplayName()
	case msg.GetReactionMessage() != nil:
		return msg.GetReactionMessage().GetText()
	}
	return ""
}

// messageType uses the type labels web clients already understand.
func messageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "", msg.GetExtendedTextMessage() != nil:
		return "chat"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		if msg.GetAudioMessage().GetPTT() {
			return "ptt"
		}
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetLocationMessage() != nil, msg.GetLiveLocationMessage() != nil:
		return "location"
	case msg.GetContactMessage() != nil:
		return "vcard"
	case msg.GetContactsArrayMessage() != nil:
		return "multi_vcard"
	case msg.GetPollCreationMessage() != nil, msg.GetPollCreationMessageV3() != nil:
		return "poll_creation"
	case msg.GetReactionMessage() != nil:
		return "reaction"
	case msg.GetProtocolMessage() != nil:
		if msg.GetProtocolMessage().GetType() == waE2E.ProtocolMessage_REVOKE {
			return "revoked"
		}
		return "protocol"
	}
	return "unknown"
}

func hasMedia(msg *waE2E.Message) bool {
	if msg == nil {
		return false
	}
	return msg.GetImageMessage() != nil ||
		msg.GetVideoMessage() != nil ||
		msg.GetAudioMessage() != nil ||
		msg.GetDocumentMessage() != nil ||
		msg.GetStickerMessage() != nil
}

// receiptAck maps a receipt type to an acknowledgment code.
// ok is false for receipt types that carry no delivery state.
func receiptAck(t types.ReceiptType) (ack int, ok bool) {
	switch t {
	case types.ReceiptTypeDelivered:
		return AckDelivered, true
	case types.ReceiptTypeRead, types.ReceiptTypeReadSelf, types.ReceiptTypePlayed, types.ReceiptType("played-self"):
		return AckRead, true
	case types.ReceiptTypeServerError:
		return AckError, true
	}
	return 0, false
}

// webStatusAck maps the stored status of a history message.
// 0 error, 1 pending, 2 server ack, 3 delivery ack, 4 read, 5 played.
func webStatusAck(status int32) int {
	switch status {
	case 1:
		return AckPending
	case 2:
		return AckSent
	case 3:
		return AckDelivered
	case 4, 5:
		return AckRead
	}
	return AckError
}
