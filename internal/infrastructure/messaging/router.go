// Package messaging dispatches outbound messages to the transport that owns
// a conversation identity.
package messaging

import (
	"context"
	"errors"
	"strings"

	"github.com/orhanxakarsu/music-agent/internal/application/workflow"
	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/telegram"
)

var ErrNoTransport = errors.New("no transport for identity")

// Router sends "tg:" identities through Telegram and everything else through
// WhatsApp.
type Router struct {
	whatsapp workflow.Messenger
	telegram workflow.Messenger
}

// NewRouter creates a router. Either transport may be nil.
func NewRouter(whatsapp, telegram workflow.Messenger) *Router {
	return &Router{whatsapp: whatsapp, telegram: telegram}
}

func (r *Router) pick(identity string) (workflow.Messenger, error) {
	m := r.whatsapp
	if strings.HasPrefix(identity, telegram.IdentityPrefix) {
		m = r.telegram
	}
	if m == nil {
		return nil, ErrNoTransport
	}
	return m, nil
}

func (r *Router) SendText(ctx context.Context, identity, text string) error {
	m, err := r.pick(identity)
	if err != nil {
		return err
	}
	return m.SendText(ctx, identity, text)
}

func (r *Router) SendMedia(ctx context.Context, identity string, kind conversation.ArtifactKind, path, caption string) error {
	m, err := r.pick(identity)
	if err != nil {
		return err
	}
	return m.SendMedia(ctx, identity, kind, path, caption)
}
