// Package media lays out the artifact directories and builds public links to
// the files stored there.
package media

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

// Roots are the directories artifacts are written to.
type Roots struct {
	Music  string
	Images string
	Videos string
}

// NewRoots places the artifact directories under base.
func NewRoots(base string) Roots {
	return Roots{
		Music:  filepath.Join(base, "musics"),
		Images: filepath.Join(base, "generated_images"),
		Videos: filepath.Join(base, "final_videos"),
	}
}

// Ensure creates the directories.
func (r Roots) Ensure() error {
	for _, dir := range []string{r.Music, r.Images, r.Videos} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// segments maps an artifact kind to its path segment under /files.
var segments = map[conversation.ArtifactKind]string{
	conversation.ArtifactMusic: "music",
	conversation.ArtifactCover: "image",
	conversation.ArtifactVideo: "video",
}

// Dir returns the directory served under segment.
func (r Roots) Dir(segment string) (string, bool) {
	switch segment {
	case "music":
		return r.Music, true
	case "image":
		return r.Images, true
	case "video":
		return r.Videos, true
	}
	return "", false
}

// Resolve maps a public file reference to a path on disk. Names that would
// leave the directory are rejected.
func (r Roots) Resolve(segment, name string) (string, bool) {
	dir, ok := r.Dir(segment)
	if !ok || name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", false
	}
	return filepath.Join(dir, name), true
}

// Links implements workflow.LinkBuilder.
type Links struct {
	base string
}

func NewLinks(baseURL string) Links {
	return Links{base: strings.TrimRight(baseURL, "/")}
}

func (l Links) URL(kind conversation.ArtifactKind, path string) string {
	segment, ok := segments[kind]
	if !ok || path == "" {
		return ""
	}
	return l.base + "/files/" + segment + "/" + url.PathEscape(filepath.Base(path))
}
