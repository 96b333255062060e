// Package telegram is the Telegram transport. Conversations on this channel
// use identities of the form "tg:<chat id>".
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

// IdentityPrefix marks conversation identities that belong to Telegram.
const IdentityPrefix = "tg:"

// sender is the part of tgbotapi.BotAPI the messenger needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Messenger sends text and media to Telegram chats.
type Messenger struct {
	bot    sender
	logger zerolog.Logger
}

// NewMessenger connects to the bot API with token.
func NewMessenger(token string, logger zerolog.Logger) (*Messenger, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init failed: %w", err)
	}
	logger.Info().Str("user", bot.Self.UserName).Msg("telegram bot connected")
	return newMessenger(bot, logger), nil
}

func newMessenger(bot sender, logger zerolog.Logger) *Messenger {
	return &Messenger{bot: bot, logger: logger.With().Str("service", "telegram").Logger()}
}

// Identity returns the conversation identity of a chat.
func Identity(chatID int64) string {
	return IdentityPrefix + strconv.FormatInt(chatID, 10)
}

// ChatID parses a conversation identity back into a chat id.
func ChatID(identity string) (int64, error) {
	if !strings.HasPrefix(identity, IdentityPrefix) {
		return 0, fmt.Errorf("not a telegram identity: %q", identity)
	}
	return strconv.ParseInt(strings.TrimPrefix(identity, IdentityPrefix), 10, 64)
}

func (m *Messenger) SendText(_ context.Context, identity, text string) error {
	chatID, err := ChatID(identity)
	if err != nil {
		return err
	}
	if _, err := m.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	return nil
}

func (m *Messenger) SendMedia(_ context.Context, identity string, kind conversation.ArtifactKind, path, caption string) error {
	chatID, err := ChatID(identity)
	if err != nil {
		return err
	}
	file := tgbotapi.FilePath(path)
	var msg tgbotapi.Chattable
	switch kind {
	case conversation.ArtifactMusic:
		audio := tgbotapi.NewAudio(chatID, file)
		audio.Caption = caption
		msg = audio
	case conversation.ArtifactCover:
		photo := tgbotapi.NewPhoto(chatID, file)
		photo.Caption = caption
		msg = photo
	case conversation.ArtifactVideo:
		video := tgbotapi.NewVideo(chatID, file)
		video.Caption = caption
		msg = video
	default:
		msg = tgbotapi.NewDocument(chatID, file)
	}
	if _, err := m.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send %s failed: %w", kind, err)
	}
	return nil
}

// Message is an inbound chat message.
type Message struct {
	Identity  string
	MessageID string
	Text      string
}

// ParseUpdate extracts the user message of a webhook update. It reports false
// for updates without a message and for messages sent by bots.
func ParseUpdate(body []byte) (Message, bool) {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return Message{}, false
	}
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return Message{}, false
	}
	if msg.From != nil && msg.From.IsBot {
		return Message{}, false
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	return Message{
		Identity:  Identity(msg.Chat.ID),
		MessageID: fmt.Sprintf("tg-%d-%d", msg.Chat.ID, msg.MessageID),
		Text:      text,
	}, true
}
