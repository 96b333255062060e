package telegram

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

type fakeBot struct {
	sent []tgbotapi.Chattable
	err  error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if b.err != nil {
		return tgbotapi.Message{}, b.err
	}
	b.sent = append(b.sent, c)
	return tgbotapi.Message{}, nil
}

func TestMessenger_SendText(t *testing.T) {
	bot := &fakeBot{}
	m := newMessenger(bot, zerolog.Nop())

	require.NoError(t, m.SendText(context.Background(), "tg:42", "hello"))
	require.Len(t, bot.sent, 1)
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "hello", msg.Text)

	assert.Error(t, m.SendText(context.Background(), "905551112233", "hello"))
}

func TestMessenger_SendMedia(t *testing.T) {
	bot := &fakeBot{}
	m := newMessenger(bot, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, m.SendMedia(ctx, "tg:7", conversation.ArtifactMusic, "/a.mp3", "Sunny Day"))
	require.NoError(t, m.SendMedia(ctx, "tg:7", conversation.ArtifactCover, "/c.png", ""))
	require.NoError(t, m.SendMedia(ctx, "tg:7", conversation.ArtifactVideo, "/v.mp4", ""))
	require.Len(t, bot.sent, 3)

	audio, ok := bot.sent[0].(tgbotapi.AudioConfig)
	require.True(t, ok)
	assert.Equal(t, "Sunny Day", audio.Caption)
	_, ok = bot.sent[1].(tgbotapi.PhotoConfig)
	assert.True(t, ok)
	_, ok = bot.sent[2].(tgbotapi.VideoConfig)
	assert.True(t, ok)

	bot.err = errors.New("blocked")
	assert.Error(t, m.SendMedia(ctx, "tg:7", conversation.ArtifactMusic, "/a.mp3", ""))
}

func TestParseUpdate(t *testing.T) {
	got, ok := ParseUpdate([]byte(`{"update_id":1,"message":{"message_id":9,"chat":{"id":42,"type":"private"},"from":{"id":42,"is_bot":false},"text":"make a song"}}`))
	require.True(t, ok)
	assert.Equal(t, Message{Identity: "tg:42", MessageID: "tg-42-9", Text: "make a song"}, got)

	_, ok = ParseUpdate([]byte(`{"update_id":2,"message":{"message_id":1,"chat":{"id":42},"from":{"id":1,"is_bot":true},"text":"hi"}}`))
	assert.False(t, ok)

	_, ok = ParseUpdate([]byte(`{"update_id":3,"edited_message":{"message_id":1,"chat":{"id":42},"text":"hi"}}`))
	assert.False(t, ok)

	_, ok = ParseUpdate([]byte(`not json`))
	assert.False(t, ok)
}

func TestChatID(t *testing.T) {
	id, err := ChatID(Identity(-100123))
	require.NoError(t, err)
	assert.Equal(t, int64(-100123), id)
}
