package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

type countingMessenger struct{ texts, media int }

func (c *countingMessenger) SendText(context.Context, string, string) error {
	c.texts++
	return nil
}

func (c *countingMessenger) SendMedia(context.Context, string, conversation.ArtifactKind, string, string) error {
	c.media++
	return nil
}

func TestRouter(t *testing.T) {
	wa, tg := &countingMessenger{}, &countingMessenger{}
	r := NewRouter(wa, tg)
	ctx := context.Background()

	assert.NoError(t, r.SendText(ctx, "905551112233", "hi"))
	assert.NoError(t, r.SendText(ctx, "tg:42", "hi"))
	assert.NoError(t, r.SendMedia(ctx, "tg:42", conversation.ArtifactMusic, "/a.mp3", ""))
	assert.Equal(t, 1, wa.texts)
	assert.Equal(t, 1, tg.texts)
	assert.Equal(t, 1, tg.media)

	waOnly := NewRouter(wa, nil)
	assert.ErrorIs(t, waOnly.SendText(ctx, "tg:42", "hi"), ErrNoTransport)
}
