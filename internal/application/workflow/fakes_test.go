package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
	"github.com/orhanxakarsu/music-agent/internal/domain/decision"
	"github.com/orhanxakarsu/music-agent/internal/domain/persona"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/memory"
)

type fakeDecider struct {
	mu      sync.Mutex
	actions []decision.Action
	plan    decision.Plan
	err     error
}

func (d *fakeDecider) Communicate(_ context.Context, _ decision.Context) (decision.Communication, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return decision.Communication{}, d.err
	}
	if len(d.actions) == 0 {
		return decision.Communication{Action: decision.ActionWaitUser}, nil
	}
	a := d.actions[0]
	if len(d.actions) > 1 {
		d.actions = d.actions[1:]
	}
	return decision.Communication{Action: a, Description: "Sure, tell me more."}, nil
}

func (d *fakeDecider) Plan(_ context.Context, _ decision.Context) (decision.Plan, error) {
	return d.plan, nil
}

func (d *fakeDecider) MusicParams(_ context.Context, c decision.Context) (decision.MusicParams, error) {
	return decision.MusicParams{Prompt: c.UserRequest, Style: "pop", Title: "Sunny Day"}, nil
}

func (d *fakeDecider) CoverPrompt(_ context.Context, _ decision.Context) (decision.ImagePrompt, error) {
	return decision.ImagePrompt{Prompt: "a bright sunny album cover"}, nil
}

func (d *fakeDecider) PersonaProfile(_ context.Context, _ decision.Context) (decision.PersonaProfile, error) {
	return decision.PersonaProfile{Name: "Sunny Pop Singer", Description: "bright and warm"}, nil
}

type fakeMusic struct {
	mu       sync.Mutex
	calls    int
	remakes  int
	fail     error
	started  chan struct{}
	release  chan struct{}
	personas int
}

func (m *fakeMusic) Generate(ctx context.Context, p decision.MusicParams) (*MusicResult, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	started, release, fail := m.started, m.release, m.fail
	m.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if fail != nil {
		return nil, fail
	}
	return &MusicResult{
		JobID: fmt.Sprintf("job-%d", n),
		Tracks: []conversation.Candidate{
			{ID: fmt.Sprintf("a%d", n), Title: p.Title, SourceURL: "https://cdn.example/a.mp3", Path: fmt.Sprintf("/artifacts/musics/a%d.mp3", n)},
			{ID: fmt.Sprintf("b%d", n), Title: p.Title, SourceURL: "https://cdn.example/b.mp3", Path: fmt.Sprintf("/artifacts/musics/b%d.mp3", n)},
		},
	}, nil
}

func (m *fakeMusic) Remake(ctx context.Context, _ string, p decision.MusicParams) (*MusicResult, error) {
	m.mu.Lock()
	m.remakes++
	m.mu.Unlock()
	return m.Generate(ctx, p)
}

func (m *fakeMusic) CreatePersona(_ context.Context, req PersonaRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.JobID == "" || req.AudioID == "" {
		return "", errors.New("job and audio ids are required")
	}
	m.personas++
	return "persona-" + req.AudioID, nil
}

func (m *fakeMusic) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakeImages struct{}

func (fakeImages) GenerateCover(_ context.Context, _ string) (conversation.Candidate, error) {
	return conversation.Candidate{ID: "cover-1", Path: "/artifacts/generated_images/cover-1.png"}, nil
}

type fakeVideo struct{}

func (fakeVideo) Mux(_ context.Context, imagePath, audioPath string) (conversation.Candidate, error) {
	if imagePath == "" || audioPath == "" {
		return conversation.Candidate{}, errors.New("missing input")
	}
	return conversation.Candidate{ID: "video-1", Path: "/artifacts/final_videos/video-1.mp4"}, nil
}

type sent struct {
	identity string
	text     string
	kind     conversation.ArtifactKind
}

type recordingMessenger struct {
	mu   sync.Mutex
	msgs []sent
	fail error
}

func (m *recordingMessenger) SendText(_ context.Context, identity, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.msgs = append(m.msgs, sent{identity: identity, text: text})
	return nil
}

func (m *recordingMessenger) SendMedia(_ context.Context, identity string, kind conversation.ArtifactKind, path, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.msgs = append(m.msgs, sent{identity: identity, text: path, kind: kind})
	return nil
}

func (m *recordingMessenger) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.msgs))
	for _, s := range m.msgs {
		out = append(out, s.text)
	}
	return out
}

type fakePersonas struct {
	mu    sync.Mutex
	items []*persona.Persona
}

func (p *fakePersonas) Save(_ context.Context, item *persona.Persona) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append([]*persona.Persona{item}, p.items...)
	return nil
}

func (p *fakePersonas) List(_ context.Context) ([]*persona.Persona, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*persona.Persona{}, p.items...), nil
}

func (p *fakePersonas) Get(_ context.Context, id string) (*persona.Persona, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, it := range p.items {
		if it.PersonaID == id {
			return it, nil
		}
	}
	return nil, nil
}

func (p *fakePersonas) GetByIndex(_ context.Context, index int) (*persona.Persona, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 1 || index > len(p.items) {
		return nil, nil
	}
	return p.items[index-1], nil
}

func (p *fakePersonas) Delete(_ context.Context, _ string) error { return nil }

func (p *fakePersonas) Count(_ context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items), nil
}

type testLinks struct{}

func (testLinks) URL(kind conversation.ArtifactKind, path string) string {
	return "http://localhost:5000/files/" + string(kind) + "/" + path
}

// recordingRepo keeps every saved checkpoint.
type recordingRepo struct {
	*memory.CheckpointRepository
	mu    sync.Mutex
	saved []*conversation.Checkpoint
}

func (r *recordingRepo) Save(ctx context.Context, cp *conversation.Checkpoint, expected int64) error {
	if err := r.CheckpointRepository.Save(ctx, cp, expected); err != nil {
		return err
	}
	r.mu.Lock()
	r.saved = append(r.saved, cp.Clone())
	r.mu.Unlock()
	return nil
}

func (r *recordingRepo) Saved() []*conversation.Checkpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*conversation.Checkpoint{}, r.saved...)
}

type harness struct {
	engine    *Engine
	repo      *recordingRepo
	decider   *fakeDecider
	music     *fakeMusic
	messenger *recordingMessenger
	personas  *fakePersonas
	steps     *Steps
}

func newHarness(t *testing.T, override func(Registry)) *harness {
	t.Helper()
	h := &harness{
		repo:      &recordingRepo{CheckpointRepository: memory.NewCheckpointRepository()},
		decider:   &fakeDecider{},
		music:     &fakeMusic{},
		messenger: &recordingMessenger{},
		personas:  &fakePersonas{},
	}
	h.steps = NewSteps(Deps{
		Decisions: h.decider,
		Music:     h.music,
		Images:    fakeImages{},
		Video:     fakeVideo{},
		Messenger: h.messenger,
		Personas:  h.personas,
		Links:     testLinks{},
	}, zerolog.Nop())
	registry := h.steps.Registry()
	if override != nil {
		override(registry)
	}
	engine, err := NewEngine(h.repo, registry, Options{RunLease: time.Minute}, zerolog.Nop())
	require.NoError(t, err)
	h.engine = engine
	return h
}

func (h *harness) submit(t *testing.T, identity, text, messageID string) *Outcome {
	t.Helper()
	out, err := h.engine.Submit(context.Background(), identity, conversation.Input{Text: text, MessageID: messageID})
	require.NoError(t, err)
	return out
}

func newPersona(id, name string) *persona.Persona {
	return &persona.Persona{PersonaID: id, Name: name, CreatedAt: time.Now()}
}
