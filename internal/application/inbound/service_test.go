package inbound

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/orhanxakarsu/music-agent/internal/application/dedup"
	"github.com/orhanxakarsu/music-agent/internal/application/workflow"
	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Submit(ctx context.Context, identity string, in conversation.Input) (*workflow.Outcome, error) {
	args := m.Called(ctx, identity, in)
	out, _ := args.Get(0).(*workflow.Outcome)
	return out, args.Error(1)
}

type recordingMessenger struct {
	mu    sync.Mutex
	texts map[string][]string
}

func (r *recordingMessenger) SendText(_ context.Context, identity, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.texts == nil {
		r.texts = make(map[string][]string)
	}
	r.texts[identity] = append(r.texts[identity], text)
	return nil
}

func (r *recordingMessenger) SendMedia(context.Context, string, conversation.ArtifactKind, string, string) error {
	return nil
}

type countingRecorder struct {
	events     map[string]int
	duplicates int
}

func (c *countingRecorder) Event(transport, status string) {
	if c.events == nil {
		c.events = make(map[string]int)
	}
	c.events[transport+"/"+status]++
}

func (c *countingRecorder) DuplicateSuppressed() { c.duplicates++ }

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newTestService(allowed ...string) (*Service, *mockEngine, *recordingMessenger, *countingRecorder, *clock) {
	engine := &mockEngine{}
	messenger := &recordingMessenger{}
	rec := &countingRecorder{}
	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	filter := dedup.NewFilter(dedup.DefaultWindow, zerolog.Nop(), dedup.WithClock(clk.Now))
	return NewService(engine, filter, messenger, allowed, rec, zerolog.Nop()), engine, messenger, rec, clk
}

func processed() *workflow.Outcome {
	return &workflow.Outcome{Status: workflow.OutcomeProcessed}
}

func TestHandle_Processed(t *testing.T) {
	svc, engine, _, rec, _ := newTestService()
	engine.On("Submit", mock.Anything, "905551112233", conversation.Input{Text: "make a song", MessageID: "m1"}).
		Return(processed(), nil).Once()

	status := svc.Handle(context.Background(), Message{Transport: "whatsapp", Identity: "905551112233", MessageID: "m1", Text: "  make a song "})

	assert.Equal(t, StatusProcessed, status)
	assert.Equal(t, 1, rec.events["whatsapp/processed"])
	engine.AssertExpectations(t)
}

func TestHandle_EmptyTextIgnored(t *testing.T) {
	svc, engine, _, _, _ := newTestService()
	assert.Equal(t, StatusIgnored, svc.Handle(context.Background(), Message{Identity: "905551112233", Text: "   "}))
	engine.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_AllowList(t *testing.T) {
	svc, engine, _, _, _ := newTestService("905551112233")
	engine.On("Submit", mock.Anything, "905551112233", mock.Anything).Return(processed(), nil)

	assert.Equal(t, StatusIgnored, svc.Handle(context.Background(), Message{Identity: "905550000000", Text: "hi"}))
	assert.Equal(t, StatusProcessed, svc.Handle(context.Background(), Message{Identity: "905551112233", Text: "hi"}))
	engine.AssertNumberOfCalls(t, "Submit", 1)
}

func TestHandle_DuplicateWithinWindow(t *testing.T) {
	svc, engine, _, rec, clk := newTestService()
	engine.On("Submit", mock.Anything, "905551112233", mock.Anything).Return(processed(), nil)
	msg := Message{Transport: "whatsapp", Identity: "905551112233", Text: "hello"}

	assert.Equal(t, StatusProcessed, svc.Handle(context.Background(), msg))
	clk.t = clk.t.Add(10 * time.Second)
	assert.Equal(t, StatusDuplicate, svc.Handle(context.Background(), msg))
	clk.t = clk.t.Add(21 * time.Second)
	assert.Equal(t, StatusProcessed, svc.Handle(context.Background(), msg))

	engine.AssertNumberOfCalls(t, "Submit", 2)
	assert.Equal(t, 1, rec.duplicates)
}

func TestHandle_BusySendsNotice(t *testing.T) {
	svc, engine, messenger, _, _ := newTestService()
	engine.On("Submit", mock.Anything, "905551112233", mock.Anything).
		Return(&workflow.Outcome{Status: workflow.OutcomeBusy}, nil)

	status := svc.Handle(context.Background(), Message{Identity: "905551112233", Text: "are you there?"})

	assert.Equal(t, StatusBusy, status)
	assert.Equal(t, []string{workflow.MsgBusy}, messenger.texts["905551112233"])
}

func TestHandle_EngineDuplicate(t *testing.T) {
	svc, engine, messenger, _, _ := newTestService()
	engine.On("Submit", mock.Anything, "905551112233", mock.Anything).
		Return(&workflow.Outcome{Status: workflow.OutcomeDuplicate}, nil)

	assert.Equal(t, StatusDuplicate, svc.Handle(context.Background(), Message{Identity: "905551112233", MessageID: "old", Text: "2"}))
	assert.Empty(t, messenger.texts)
}

func TestHandle_ErrorSendsNotice(t *testing.T) {
	svc, engine, messenger, rec, _ := newTestService()
	engine.On("Submit", mock.Anything, "905551112233", mock.Anything).Return(nil, errors.New("store down"))

	status := svc.Handle(context.Background(), Message{Transport: "telegram", Identity: "905551112233", Text: "hi"})

	assert.Equal(t, StatusError, status)
	assert.Equal(t, []string{workflow.MsgError}, messenger.texts["905551112233"])
	assert.Equal(t, 1, rec.events["telegram/error"])
}
