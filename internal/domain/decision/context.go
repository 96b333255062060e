package decision

import "github.com/orhanxakarsu/music-agent/internal/domain/conversation"

// historyWindow bounds the transcript handed to the decision maker.
const historyWindow = 20

// Context is the read-only view of a conversation given to the decision maker.
type Context struct {
	Identity        string                  `json:"identity"`
	Stage           conversation.Stage      `json:"stage"`
	History         []string                `json:"history"`
	UserRequest     string                  `json:"userRequest"`
	TaskQueue       []conversation.TaskKind `json:"taskQueue"`
	CompletedTasks  []conversation.TaskKind `json:"completedTasks"`
	MusicGenerated  bool                    `json:"musicGenerated"`
	MusicSelected   bool                    `json:"musicSelected"`
	CoverGenerated  bool                    `json:"coverGenerated"`
	VideoGenerated  bool                    `json:"videoGenerated"`
	MusicTitle      string                  `json:"musicTitle,omitempty"`
	MusicStyle      string                  `json:"musicStyle,omitempty"`
	Brief           conversation.Brief      `json:"brief"`
	RemakeRequested bool                    `json:"remakeRequested"`
	RetryCount      int                     `json:"retryCount"`
	MaxRetries      int                     `json:"maxRetries"`
	LastError       *conversation.LastError `json:"lastError,omitempty"`
	PersonaID       string                  `json:"personaId,omitempty"`
}

// NewContext builds the decision context from a state.
func NewContext(s conversation.State, maxRetries int) Context {
	history := s.Transcript()
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	c := Context{
		Identity:        s.Identity,
		Stage:           s.Stage,
		History:         history,
		UserRequest:     s.UserRequest,
		TaskQueue:       append([]conversation.TaskKind{}, s.TaskQueue...),
		CompletedTasks:  append([]conversation.TaskKind{}, s.CompletedTasks...),
		MusicGenerated:  s.Music.Started(),
		MusicSelected:   s.Music.IsSelected(),
		CoverGenerated:  s.Cover.Started(),
		VideoGenerated:  s.Video.Started(),
		MusicStyle:      s.MusicStyle,
		Brief:           s.Brief,
		RemakeRequested: s.RemakeRequested,
		RetryCount:      s.RetryCount,
		MaxRetries:      maxRetries,
		LastError:       s.LastError,
		PersonaID:       s.SelectedPersonaID,
	}
	if track, ok := s.Music.Chosen(); ok {
		c.MusicTitle = track.Title
	} else if len(s.Music.Candidates) > 0 {
		c.MusicTitle = s.Music.Candidates[0].Title
	}
	return c
}
