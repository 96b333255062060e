// Package ffmpeg builds still-image music videos with the ffmpeg binary.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

// runFunc executes a command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Muxer implements workflow.VideoMuxer.
type Muxer struct {
	binary string
	dir    string
	run    runFunc
	logger zerolog.Logger
}

func NewMuxer(binary, dir string, logger zerolog.Logger) *Muxer {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Muxer{binary: binary, dir: dir, run: execRun, logger: logger.With().Str("service", "ffmpeg").Logger()}
}

// Args returns the ffmpeg arguments that loop image over audio into output.
func Args(imagePath, audioPath, output string) []string {
	return []string{
		"-loop", "1",
		"-i", imagePath,
		"-i", audioPath,
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-shortest",
		"-y",
		output,
	}
}

func (m *Muxer) Mux(ctx context.Context, imagePath, audioPath string) (conversation.Candidate, error) {
	for _, p := range []string{imagePath, audioPath} {
		if _, err := os.Stat(p); err != nil {
			return conversation.Candidate{}, fmt.Errorf("video input missing: %w", err)
		}
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return conversation.Candidate{}, err
	}
	id := uuid.NewString()
	output := filepath.Join(m.dir, id+".mp4")

	if out, err := m.run(ctx, m.binary, Args(imagePath, audioPath, output)...); err != nil {
		return conversation.Candidate{}, fmt.Errorf("ffmpeg failed: %w: %s", err, tail(out))
	}
	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		return conversation.Candidate{}, fmt.Errorf("ffmpeg produced no output at %s", output)
	}
	m.logger.Info().Str("path", output).Msg("video created")
	return conversation.Candidate{ID: id, Path: output}, nil
}

// tail keeps the end of the ffmpeg log, where the error is.
func tail(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > 400 {
		s = s[len(s)-400:]
	}
	return s
}
