package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/orhanxakarsu/music-agent/internal/application/inbound"
	"github.com/orhanxakarsu/music-agent/internal/application/workflow"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/evolution"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/telegram"
)

func (s *Server) whatsappWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	ev, ok := evolution.ParseWebhook(body)
	if !ok {
		respondStatus(w, inbound.StatusIgnored)
		return
	}
	respondStatus(w, s.inbound.Handle(context.WithoutCancel(r.Context()), inbound.Message{
		Transport: "whatsapp",
		Identity:  ev.Phone,
		MessageID: ev.MessageID,
		Text:      ev.Text,
	}))
}

func (s *Server) telegramWebhook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.TelegramSecret != "" && !equalSecret(r.Header.Get("X-Telegram-Bot-Api-Secret-Token"), s.cfg.TelegramSecret) {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid secret token")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	msg, ok := telegram.ParseUpdate(body)
	if !ok {
		respondStatus(w, inbound.StatusIgnored)
		return
	}
	respondStatus(w, s.inbound.Handle(context.WithoutCancel(r.Context()), inbound.Message{
		Transport: "telegram",
		Identity:  msg.Identity,
		MessageID: msg.MessageID,
		Text:      msg.Text,
	}))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	cp, err := s.conversations.State(r.Context(), identity)
	if err != nil {
		s.logger.Error().Err(err).Str("identity", identity).Msg("failed to load state")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to load state")
		return
	}
	if cp == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no conversation for identity")
		return
	}
	respondJSON(w, http.StatusOK, newStateView(cp))
}

func (s *Server) resetConversation(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	existed, err := s.conversations.Reset(r.Context(), identity)
	if errors.Is(err, workflow.ErrBusy) {
		respondError(w, http.StatusConflict, string(inbound.StatusBusy), err.Error())
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("identity", identity).Msg("failed to reset conversation")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to reset conversation")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "reset", "existed": existed})
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	path, ok := s.roots.Resolve(chi.URLParam(r, "kind"), chi.URLParam(r, "name"))
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "file not found")
		return
	}
	http.ServeFile(w, r, path)
}

func equalSecret(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
