package media

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

func TestLinks(t *testing.T) {
	l := NewLinks("http://100.64.0.1:5000/")
	assert.Equal(t, "http://100.64.0.1:5000/files/music/a1.mp3", l.URL(conversation.ArtifactMusic, "/data/musics/a1.mp3"))
	assert.Equal(t, "http://100.64.0.1:5000/files/image/c.png", l.URL(conversation.ArtifactCover, "c.png"))
	assert.Equal(t, "http://100.64.0.1:5000/files/video/my%20clip.mp4", l.URL(conversation.ArtifactVideo, "/v/my clip.mp4"))
	assert.Empty(t, l.URL(conversation.ArtifactMusic, ""))
}

func TestRoots_Resolve(t *testing.T) {
	r := NewRoots("/data")

	p, ok := r.Resolve("music", "a1.mp3")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join("/data", "musics", "a1.mp3"), p)

	for _, bad := range [][2]string{{"music", "../secret"}, {"music", ""}, {"music", ".env"}, {"docs", "a.txt"}, {"image", "x/y.png"}} {
		_, ok := r.Resolve(bad[0], bad[1])
		assert.False(t, ok, "%v", bad)
	}
}

func TestRoots_Ensure(t *testing.T) {
	r := NewRoots(t.TempDir())
	assert.NoError(t, r.Ensure())
	assert.DirExists(t, r.Videos)
}
