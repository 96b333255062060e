package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/orhanxakarsu/music-agent/internal/application/inbound"
	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/media"
)

// maxWebhookBody bounds webhook payloads.
const maxWebhookBody = 1 << 20

// Conversations is the administrative view of the engine.
type Conversations interface {
	State(ctx context.Context, identity string) (*conversation.Checkpoint, error)
	Reset(ctx context.Context, identity string) (bool, error)
}

// Config holds the optional secrets of the HTTP surface.
type Config struct {
	// AdminToken guards /state and /reset when set.
	AdminToken string
	// TelegramSecret is compared with X-Telegram-Bot-Api-Secret-Token when set.
	TelegramSecret string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	inbound       *inbound.Service
	conversations Conversations
	roots         media.Roots
	metrics       http.Handler
	cfg           Config
	logger        zerolog.Logger
}

func NewServer(
	inboundSvc *inbound.Service,
	conversations Conversations,
	roots media.Roots,
	metrics http.Handler,
	cfg Config,
	logger zerolog.Logger,
) *Server {
	return &Server{
		inbound:       inboundSvc,
		conversations: conversations,
		roots:         roots,
		metrics:       metrics,
		cfg:           cfg,
		logger:        logger.With().Str("service", "http").Logger(),
	}
}

// Router builds the HTTP router.
//
// Webhooks run the conversation synchronously and are not subject to the
// request timeout; a generation step can take minutes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/webhook", s.whatsappWebhook)
	r.Post("/webhook/telegram", s.telegramWebhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/health", s.health)
		r.Get("/files/{kind}/{name}", s.serveFile)
		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics)
		}

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/state/{identity}", s.getState)
			r.Post("/reset/{identity}", s.resetConversation)
		})
	})
	return r
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func respondStatus(w http.ResponseWriter, status inbound.Status) {
	respondJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}
