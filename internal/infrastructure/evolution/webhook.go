package evolution

import (
	"strings"

	"github.com/tidwall/gjson"
)

// MessageType is the kind of WhatsApp message received.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeAudio    MessageType = "audio"
	TypeVideo    MessageType = "video"
	TypeDocument MessageType = "document"
)

// Event is an inbound user message extracted from a webhook.
type Event struct {
	Phone     string
	MessageID string
	Type      MessageType
	Text      string
	MediaURL  string
}

// ParseWebhook extracts the user message of a messages.upsert webhook. It
// reports false for other events, our own messages and unsupported types.
func ParseWebhook(body []byte) (Event, bool) {
	if !gjson.ValidBytes(body) {
		return Event{}, false
	}
	root := gjson.ParseBytes(body)
	if root.Get("event").String() != "messages.upsert" {
		return Event{}, false
	}
	data := root.Get("data")
	if data.Get("key.fromMe").Bool() {
		return Event{}, false
	}
	phone := strings.TrimSuffix(data.Get("key.remoteJid").String(), "@s.whatsapp.net")
	if phone == "" {
		return Event{}, false
	}
	ev := Event{Phone: phone, MessageID: data.Get("key.id").String()}

	msg := data.Get("message")
	switch {
	case msg.Get("conversation").Exists():
		ev.Type, ev.Text = TypeText, msg.Get("conversation").String()
	case msg.Get("extendedTextMessage").Exists():
		ev.Type, ev.Text = TypeText, msg.Get("extendedTextMessage.text").String()
	case msg.Get("imageMessage").Exists():
		ev.Type, ev.Text, ev.MediaURL = TypeImage, msg.Get("imageMessage.caption").String(), msg.Get("imageMessage.url").String()
	case msg.Get("audioMessage").Exists():
		ev.Type, ev.MediaURL = TypeAudio, msg.Get("audioMessage.url").String()
	case msg.Get("videoMessage").Exists():
		ev.Type, ev.Text, ev.MediaURL = TypeVideo, msg.Get("videoMessage.caption").String(), msg.Get("videoMessage.url").String()
	case msg.Get("documentMessage").Exists():
		ev.Type, ev.Text, ev.MediaURL = TypeDocument, msg.Get("documentMessage.fileName").String(), msg.Get("documentMessage.url").String()
	default:
		return Event{}, false
	}
	return ev, true
}
