// Package suno generates music through the Suno API.
package suno

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/orhanxakarsu/music-agent/internal/application/workflow"
	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
	"github.com/orhanxakarsu/music-agent/internal/domain/decision"
)

var (
	ErrTaskFailed  = errors.New("music task failed")
	ErrNoAudio     = errors.New("music task returned no downloadable audio")
	errTaskPending = errors.New("music task pending")
)

// Config configures the Suno client.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	CallbackURL  string
	MusicDir     string
	PollInterval time.Duration
	MaxWait      time.Duration
}

// Client implements workflow.MusicProvider.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sunoapi.org/api/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "V4"
	}
	if cfg.CallbackURL == "" {
		cfg.CallbackURL = "https://example.com/callback"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 400 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 2 * time.Minute},
		logger: logger.With().Str("service", "suno").Logger(),
	}
}

type generateRequest struct {
	UploadURL           string  `json:"uploadUrl,omitempty"`
	Prompt              string  `json:"prompt"`
	Style               string  `json:"style"`
	Title               string  `json:"title"`
	Instrumental        bool    `json:"instrumental"`
	NegativeTags        string  `json:"negativeTags,omitempty"`
	VocalGender         string  `json:"vocalGender,omitempty"`
	StyleWeight         float64 `json:"styleWeight"`
	WeirdnessConstraint float64 `json:"weirdnessConstraint"`
	AudioWeight         float64 `json:"audioWeight"`
	CustomMode          bool    `json:"customMode"`
	Model               string  `json:"model"`
	CallbackURL         string  `json:"callBackUrl"`
	PersonaID           string  `json:"personaId,omitempty"`
}

func (c *Client) request(p decision.MusicParams) generateRequest {
	return generateRequest{
		Prompt:              p.Prompt,
		Style:               p.Style,
		Title:               p.Title,
		Instrumental:        p.Instrumental,
		NegativeTags:        p.NegativeTags,
		VocalGender:         p.VocalGender,
		StyleWeight:         p.StyleWeight,
		WeirdnessConstraint: p.WeirdnessConstraint,
		AudioWeight:         p.AudioWeight,
		CustomMode:          true,
		Model:               c.cfg.Model,
		CallbackURL:         c.cfg.CallbackURL,
		PersonaID:           p.PersonaID,
	}
}

// Generate starts a new song and waits for its tracks.
func (c *Client) Generate(ctx context.Context, p decision.MusicParams) (*workflow.MusicResult, error) {
	return c.run(ctx, "/generate", c.request(p))
}

// Remake creates new versions from the audio at sourceURL.
func (c *Client) Remake(ctx context.Context, sourceURL string, p decision.MusicParams) (*workflow.MusicResult, error) {
	if sourceURL == "" {
		return nil, errors.New("remake needs a source audio url")
	}
	req := c.request(p)
	req.UploadURL = sourceURL
	return c.run(ctx, "/generate/upload-cover", req)
}

// CreatePersona registers the voice of a generated track.
func (c *Client) CreatePersona(ctx context.Context, req workflow.PersonaRequest) (string, error) {
	body, err := c.post(ctx, "/generate/generate-persona", map[string]string{
		"taskId":      req.JobID,
		"audioId":     req.AudioID,
		"name":        req.Name,
		"description": req.Description,
	})
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(body, "data.personaId").String()
	if id == "" {
		return "", errors.New("persona response without id")
	}
	return id, nil
}

func (c *Client) run(ctx context.Context, path string, req generateRequest) (*workflow.MusicResult, error) {
	body, err := c.post(ctx, path, req)
	if err != nil {
		return nil, err
	}
	taskID := gjson.GetBytes(body, "data.taskId").String()
	if taskID == "" {
		return nil, errors.New("music task response without task id")
	}
	c.logger.Info().Str("task_id", taskID).Str("endpoint", path).Msg("music task started")

	tracks, err := c.wait(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := &workflow.MusicResult{JobID: taskID, Style: req.Style}
	for _, t := range tracks {
		dest := filepath.Join(c.cfg.MusicDir, t.ID+".mp3")
		if err := c.download(ctx, t.SourceURL, dest); err != nil {
			c.logger.Warn().Err(err).Str("audio_id", t.ID).Msg("failed to download track")
			continue
		}
		t.Path = dest
		out.Tracks = append(out.Tracks, t)
	}
	if len(out.Tracks) == 0 {
		return nil, ErrNoAudio
	}
	return out, nil
}

// wait polls the task until it finishes, fails, or MaxWait elapses.
func (c *Client) wait(ctx context.Context, taskID string) ([]conversation.Candidate, error) {
	var tracks []conversation.Candidate
	var last string
	attempts := uint64(c.cfg.MaxWait / c.cfg.PollInterval)
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.PollInterval), attempts), ctx)

	op := func() error {
		body, err := c.get(ctx, "/generate/record-info?taskId="+url.QueryEscape(taskID))
		if err != nil {
			c.logger.Warn().Err(err).Str("task_id", taskID).Msg("poll failed")
			return err
		}
		data := gjson.GetBytes(body, "data")
		if !data.Exists() {
			return errTaskPending
		}
		status := data.Get("status").String()
		if status != last {
			c.logger.Info().Str("task_id", taskID).Str("status", status).Msg("music task status")
			last = status
		}
		switch status {
		case "SUCCESS":
			tracks = parseTracks(data.Get("response.sunoData"))
			if len(tracks) == 0 {
				return backoff.Permanent(ErrNoAudio)
			}
			return nil
		case "FAILED", "ERROR", "CANCELLED":
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrTaskFailed, status))
		}
		return errTaskPending
	}
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, errTaskPending) {
			return nil, fmt.Errorf("music task %s timed out after %s", taskID, c.cfg.MaxWait)
		}
		return nil, err
	}
	return tracks, nil
}

// parseTracks reads the finished tracks, skipping entries without audio.
func parseTracks(items gjson.Result) []conversation.Candidate {
	var out []conversation.Candidate
	for i, item := range items.Array() {
		audioURL := firstString(item, "audioUrl", "audio_url", "streamAudioUrl", "sourceAudioUrl")
		if audioURL == "" {
			continue
		}
		id := firstString(item, "id", "audioId")
		if id == "" {
			id = fmt.Sprintf("unknown_%d", i)
		}
		out = append(out, conversation.Candidate{ID: id, Title: item.Get("title").String(), SourceURL: audioURL})
	}
	return out
}

func firstString(r gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := r.Get(k).String(); v != "" {
			return v
		}
	}
	return ""
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// do sends an authorized request and checks the API's own status code.
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("suno request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("suno returned HTTP %d", resp.StatusCode)
	}
	if code := gjson.GetBytes(body, "code").Int(); code != 200 {
		return nil, fmt.Errorf("suno API error %d: %s", code, gjson.GetBytes(body, "msg").String())
	}
	return body, nil
}

func (c *Client) download(ctx context.Context, src, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned HTTP %d", resp.StatusCode)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
