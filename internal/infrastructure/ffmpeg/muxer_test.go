package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inputs(t *testing.T) (string, string) {
	dir := t.TempDir()
	img := filepath.Join(dir, "cover.png")
	audio := filepath.Join(dir, "a.mp3")
	require.NoError(t, os.WriteFile(img, []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(audio, []byte("mp3"), 0o644))
	return img, audio
}

func TestMux(t *testing.T) {
	img, audio := inputs(t)
	m := NewMuxer("", t.TempDir(), zerolog.Nop())
	var gotArgs []string
	m.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "ffmpeg", name)
		gotArgs = args
		return nil, os.WriteFile(args[len(args)-1], []byte("mp4"), 0o644)
	}

	c, err := m.Mux(context.Background(), img, audio)
	require.NoError(t, err)
	assert.FileExists(t, c.Path)
	assert.Equal(t, Args(img, audio, c.Path), gotArgs)
}

func TestMux_Failure(t *testing.T) {
	img, audio := inputs(t)
	m := NewMuxer("ffmpeg", t.TempDir(), zerolog.Nop())
	m.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Unknown encoder 'libx264'"), errors.New("exit status 1")
	}
	_, err := m.Mux(context.Background(), img, audio)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "libx264")

	m.run = func(context.Context, string, ...string) ([]byte, error) { return nil, nil }
	_, err = m.Mux(context.Background(), img, audio)
	assert.Error(t, err)
}

func TestMux_MissingInput(t *testing.T) {
	m := NewMuxer("", t.TempDir(), zerolog.Nop())
	_, err := m.Mux(context.Background(), "/nope.png", "/nope.mp3")
	assert.Error(t, err)
}
