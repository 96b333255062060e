package conversation

import (
	"errors"
	"fmt"
)

// Stage is the coarse progress marker of a conversation.
type Stage string

const (
	StageIdle                   Stage = "idle"
	StageUnderstanding          Stage = "understanding"
	StagePlanning               Stage = "planning"
	StageGeneratingMusic        Stage = "generating_music"
	StageAwaitingMusicSelection Stage = "awaiting_music_selection"
	StageGeneratingCover        Stage = "generating_cover"
	StageGeneratingVideo        Stage = "generating_video"
	StageAwaitingApproval       Stage = "awaiting_approval"
	StageDelivering             Stage = "delivering"
	StageCompleted              Stage = "completed"
)

// Valid reports whether the stage is one of the known values.
func (s Stage) Valid() bool {
	switch s {
	case StageIdle, StageUnderstanding, StagePlanning, StageGeneratingMusic,
		StageAwaitingMusicSelection, StageGeneratingCover, StageGeneratingVideo,
		StageAwaitingApproval, StageDelivering, StageCompleted:
		return true
	}
	return false
}

// Role tags a history entry.
type Role string

const (
	RoleUser      Role = "User"
	RoleAssistant Role = "Assistant"
	RoleSystem    Role = "System"
)

// HistoryEntry is one line of the conversation transcript.
type HistoryEntry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

func (h HistoryEntry) String() string {
	return fmt.Sprintf("%s: %s", h.Role, h.Text)
}

// ArtifactKind names a produced media type.
type ArtifactKind string

const (
	ArtifactMusic ArtifactKind = "music"
	ArtifactCover ArtifactKind = "cover"
	ArtifactVideo ArtifactKind = "video"
)

var ErrNoSuchCandidate = errors.New("selection does not reference a candidate")

// Candidate is one generated variant of an artifact.
type Candidate struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	SourceURL string `json:"sourceUrl,omitempty"`
	Path      string `json:"path"`
}

// Artifact tracks the candidates produced for one kind and the chosen one.
// A zero Artifact is "not started".
type Artifact struct {
	Candidates []Candidate `json:"candidates,omitempty"`
	Selected   *int        `json:"selected,omitempty"`
}

// Started reports whether any candidate has been produced.
func (a *Artifact) Started() bool {
	return len(a.Candidates) > 0
}

// IsSelected reports whether a candidate has been chosen.
func (a *Artifact) IsSelected() bool {
	return a.Selected != nil && *a.Selected >= 0 && *a.Selected < len(a.Candidates)
}

// SetCandidates replaces the candidates and clears the selection.
func (a *Artifact) SetCandidates(c []Candidate) {
	a.Candidates = append([]Candidate(nil), c...)
	a.Selected = nil
}

// Select marks candidate i as chosen.
func (a *Artifact) Select(i int) error {
	if i < 0 || i >= len(a.Candidates) {
		return fmt.Errorf("%w: index %d of %d", ErrNoSuchCandidate, i, len(a.Candidates))
	}
	idx := i
	a.Selected = &idx
	return nil
}

// Chosen returns the selected candidate.
func (a *Artifact) Chosen() (Candidate, bool) {
	if !a.IsSelected() {
		return Candidate{}, false
	}
	return a.Candidates[*a.Selected], true
}

// Reset returns the artifact to "not started".
func (a *Artifact) Reset() {
	a.Candidates = nil
	a.Selected = nil
}

// LastError records the most recent failed stage.
type LastError struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// Brief carries the planner's instructions for the producing steps.
type Brief struct {
	MusicDescription   string `json:"musicDescription,omitempty"`
	CoverDescription   string `json:"coverDescription,omitempty"`
	RemakeInstructions string `json:"remakeInstructions,omitempty"`
}

// PersonaOption is a persona offered to the user in a numbered list.
type PersonaOption struct {
	PersonaID string `json:"personaId"`
	Name      string `json:"name"`
}

// State is the durable record of one conversation.
type State struct {
	Identity          string          `json:"identity"`
	Stage             Stage           `json:"stage"`
	History           []HistoryEntry  `json:"history"`
	UserRequest       string          `json:"userRequest,omitempty"`
	Reply             string          `json:"reply,omitempty"`
	TaskQueue         []TaskKind      `json:"taskQueue"`
	CompletedTasks    []TaskKind      `json:"completedTasks"`
	Music             Artifact        `json:"music"`
	Cover             Artifact        `json:"cover"`
	Video             Artifact        `json:"video"`
	RetryCount        int             `json:"retryCount"`
	LastError         *LastError      `json:"lastError,omitempty"`
	PendingTask       TaskKind        `json:"pendingTask,omitempty"`
	RemakeRequested   bool            `json:"isRemakeRequested"`
	Brief             Brief           `json:"brief"`
	MusicJobID        string          `json:"musicJobId,omitempty"`
	MusicStyle        string          `json:"musicStyle,omitempty"`
	PersonaOptions    []PersonaOption `json:"personaOptions,omitempty"`
	SelectedPersonaID string          `json:"selectedPersonaId,omitempty"`
}

// NewState creates the initial state for an identity.
func NewState(identity string) State {
	return State{
		Identity:       identity,
		Stage:          StageIdle,
		History:        []HistoryEntry{},
		TaskQueue:      []TaskKind{},
		CompletedTasks: []TaskKind{},
	}
}

// Artifact returns the record for kind.
func (s *State) Artifact(kind ArtifactKind) *Artifact {
	switch kind {
	case ArtifactMusic:
		return &s.Music
	case ArtifactCover:
		return &s.Cover
	case ArtifactVideo:
		return &s.Video
	}
	return nil
}

// AppendHistory adds an entry to the transcript.
func (s *State) AppendHistory(role Role, text string) {
	s.History = append(s.History, HistoryEntry{Role: role, Text: text})
}

// Transcript renders the history one entry per line.
func (s *State) Transcript() []string {
	out := make([]string, 0, len(s.History))
	for _, h := range s.History {
		out = append(out, h.String())
	}
	return out
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := s
	c.History = append([]HistoryEntry{}, s.History...)
	c.TaskQueue = append([]TaskKind{}, s.TaskQueue...)
	c.CompletedTasks = append([]TaskKind{}, s.CompletedTasks...)
	c.Music = cloneArtifact(s.Music)
	c.Cover = cloneArtifact(s.Cover)
	c.Video = cloneArtifact(s.Video)
	if s.LastError != nil {
		le := *s.LastError
		c.LastError = &le
	}
	if s.PersonaOptions != nil {
		c.PersonaOptions = append([]PersonaOption{}, s.PersonaOptions...)
	}
	return c
}

func cloneArtifact(a Artifact) Artifact {
	out := Artifact{}
	if a.Candidates != nil {
		out.Candidates = append([]Candidate{}, a.Candidates...)
	}
	if a.Selected != nil {
		idx := *a.Selected
		out.Selected = &idx
	}
	return out
}

// Validate checks the structural invariants of the state.
func (s *State) Validate() error {
	if s.Identity == "" {
		return errors.New("state identity is required")
	}
	if !s.Stage.Valid() {
		return fmt.Errorf("invalid stage %q", s.Stage)
	}
	if s.RetryCount < 0 {
		return errors.New("retry count must not be negative")
	}
	for _, kind := range []ArtifactKind{ArtifactMusic, ArtifactCover, ArtifactVideo} {
		a := s.Artifact(kind)
		if a.Selected != nil && !a.IsSelected() {
			return fmt.Errorf("%s: %w", kind, ErrNoSuchCandidate)
		}
	}
	return s.CheckQueue()
}
