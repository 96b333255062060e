package httpapi

import (
	"time"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

// stateView is the debug summary served by /state. It leaves out the
// transcript, pending input and transport message ids.
type stateView struct {
	Identity          string                  `json:"identity"`
	Status            conversation.Status     `json:"status"`
	NextStep          string                  `json:"nextStep,omitempty"`
	Stage             conversation.Stage      `json:"stage"`
	TaskQueue         []conversation.TaskKind `json:"taskQueue"`
	CompletedTasks    []conversation.TaskKind `json:"completedTasks"`
	PendingTask       conversation.TaskKind   `json:"pendingTask,omitempty"`
	Music             artifactView            `json:"music"`
	Cover             artifactView            `json:"cover"`
	Video             artifactView            `json:"video"`
	RemakeRequested   bool                    `json:"isRemakeRequested"`
	SelectedPersonaID string                  `json:"selectedPersonaId,omitempty"`
	RetryCount        int                     `json:"retryCount"`
	LastError         *conversation.LastError `json:"lastError,omitempty"`
	MessagesCount     int                     `json:"messagesCount"`
	Version           int64                   `json:"version"`
	UpdatedAt         time.Time               `json:"updatedAt"`
}

type artifactView struct {
	Generated  bool `json:"generated"`
	Selected   bool `json:"selected"`
	Candidates int  `json:"candidates"`
}

func newArtifactView(a conversation.Artifact) artifactView {
	return artifactView{
		Generated:  a.Started(),
		Selected:   a.IsSelected(),
		Candidates: len(a.Candidates),
	}
}

func newStateView(cp *conversation.Checkpoint) stateView {
	st := cp.State
	return stateView{
		Identity:          cp.Identity,
		Status:            cp.Status,
		NextStep:          cp.NextStep,
		Stage:             st.Stage,
		TaskQueue:         append([]conversation.TaskKind{}, st.TaskQueue...),
		CompletedTasks:    append([]conversation.TaskKind{}, st.CompletedTasks...),
		PendingTask:       st.PendingTask,
		Music:             newArtifactView(st.Music),
		Cover:             newArtifactView(st.Cover),
		Video:             newArtifactView(st.Video),
		RemakeRequested:   st.RemakeRequested,
		SelectedPersonaID: st.SelectedPersonaID,
		RetryCount:        st.RetryCount,
		LastError:         st.LastError,
		MessagesCount:     len(st.History),
		Version:           cp.Version,
		UpdatedAt:         cp.UpdatedAt,
	}
}
