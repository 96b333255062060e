// Package evolution talks to WhatsApp through an Evolution API instance.
package evolution

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

// Config configures the Evolution API client.
type Config struct {
	BaseURL  string
	APIKey   string
	Instance string
	Timeout  time.Duration
}

// Client sends WhatsApp messages. Without an API key it only logs what it
// would have sent.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("service", "evolution").Logger(),
	}
}

// CleanPhone strips the formatting WhatsApp adds around a number.
func CleanPhone(phone string) string {
	r := strings.NewReplacer("+", "", " ", "", "@s.whatsapp.net", "")
	return r.Replace(phone)
}

type textMessage struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type mediaMessage struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	MimeType  string `json:"mimetype"`
	Media     string `json:"media"`
	FileName  string `json:"fileName"`
	Caption   string `json:"caption,omitempty"`
}

func (c *Client) SendText(ctx context.Context, identity, text string) error {
	if c.cfg.APIKey == "" {
		c.logger.Info().Str("identity", identity).Int("length", len(text)).Msg("mock send text")
		return nil
	}
	return c.post(ctx, "/message/sendText/"+c.cfg.Instance, textMessage{Number: CleanPhone(identity), Text: text})
}

// SendMedia uploads the file at path as base64 media.
func (c *Client) SendMedia(ctx context.Context, identity string, kind conversation.ArtifactKind, path, caption string) error {
	if c.cfg.APIKey == "" {
		c.logger.Info().Str("identity", identity).Str("kind", string(kind)).Str("path", path).Msg("mock send media")
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read media file: %w", err)
	}
	mediaType, mimeType := mediaTypes(kind, path)
	msg := mediaMessage{
		Number:    CleanPhone(identity),
		MediaType: mediaType,
		MimeType:  mimeType,
		Media:     base64.StdEncoding.EncodeToString(data),
		FileName:  filepath.Base(path),
	}
	if mediaType != "audio" {
		msg.Caption = caption
	}
	return c.post(ctx, "/message/sendMedia/"+c.cfg.Instance, msg)
}

func mediaTypes(kind conversation.ArtifactKind, path string) (string, string) {
	switch kind {
	case conversation.ArtifactMusic:
		return "audio", "audio/mpeg"
	case conversation.ArtifactVideo:
		return "video", "video/mp4"
	case conversation.ArtifactCover:
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jpg", ".jpeg":
			return "image", "image/jpeg"
		case ".gif":
			return "image", "image/gif"
		case ".webp":
			return "image", "image/webp"
		}
		return "image", "image/png"
	}
	return "document", "application/octet-stream"
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("evolution request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("evolution %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
