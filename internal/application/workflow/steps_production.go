package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
	"github.com/orhanxakarsu/music-agent/internal/domain/decision"
	"github.com/orhanxakarsu/music-agent/internal/domain/persona"
)

var errNoTracks = errors.New("provider returned no tracks")

func (s *Steps) musicParams(ctx context.Context, run *Run) (decision.MusicParams, error) {
	params, err := s.decisions.MusicParams(ctx, s.context(run))
	if err != nil {
		return params, fmt.Errorf("failed to prepare music parameters: %w", err)
	}
	params.Normalize()
	if err := params.Validate(); err != nil {
		return params, err
	}
	params.PersonaID = run.State.SelectedPersonaID
	return params, nil
}

// storeTracks records a finished music job and completes task.
func storeTracks(res *MusicResult, style string, task conversation.TaskKind) Update {
	return func(st *conversation.State) {
		st.Music.SetCandidates(res.Tracks)
		st.Video.Reset()
		st.MusicJobID = res.JobID
		st.MusicStyle = style
		if res.Style != "" {
			st.MusicStyle = res.Style
		}
		_ = st.Complete(task)
		st.PendingTask = ""
		st.ResetRetries()
		st.Stage = conversation.StageAwaitingMusicSelection
		st.AppendHistory(conversation.RoleSystem, fmt.Sprintf("%d music tracks generated, awaiting selection", len(res.Tracks)))
	}
}

func (s *Steps) generateMusic(ctx context.Context, run *Run) Result {
	if err := s.expect(run, conversation.TaskMusic); err != nil {
		return s.reject(ctx, run, err)
	}
	params, err := s.musicParams(ctx, run)
	if err != nil {
		return s.fail(run, conversation.StageGeneratingMusic, err)
	}
	res, err := s.music.Generate(ctx, params)
	if err == nil && len(res.Tracks) == 0 {
		err = errNoTracks
	}
	if err != nil {
		return s.fail(run, conversation.StageGeneratingMusic, fmt.Errorf("music generation failed: %w", err))
	}
	run.logger.Info().Str("job_id", res.JobID).Int("tracks", len(res.Tracks)).Msg("music generated")
	return Advance(storeTracks(res, params.Style, conversation.TaskMusic), StepPromptSelection)
}

func (s *Steps) remakeMusic(ctx context.Context, run *Run) Result {
	if err := s.expect(run, conversation.TaskRemake); err != nil {
		return s.reject(ctx, run, err)
	}
	source, ok := run.State.Music.Chosen()
	if !ok {
		source = run.State.Music.Candidates[0]
	}
	params, err := s.musicParams(ctx, run)
	if err != nil {
		return s.fail(run, conversation.StageGeneratingMusic, err)
	}
	res, err := s.music.Remake(ctx, source.SourceURL, params)
	if err == nil && len(res.Tracks) == 0 {
		err = errNoTracks
	}
	if err != nil {
		return s.fail(run, conversation.StageGeneratingMusic, fmt.Errorf("music remake failed: %w", err))
	}
	return Advance(storeTracks(res, params.Style, conversation.TaskRemake), StepPromptSelection)
}

// promptSelection sends one link per candidate and waits for the choice.
func (s *Steps) promptSelection(ctx context.Context, run *Run) Result {
	tracks := run.State.Music.Candidates
	if len(tracks) == 0 {
		if err := s.say(ctx, run, "no-tracks", msgNoTracks); err != nil {
			run.logger.Warn().Err(err).Msg("failed to report missing tracks")
		}
		return Suspend(func(st *conversation.State) {
			st.Stage = conversation.StageIdle
			st.AppendHistory(conversation.RoleSystem, "Music files not found")
		}, StepAwaitReply)
	}

	intro := fmt.Sprintf(msgSelectionIntro, len(tracks))
	if err := s.say(ctx, run, "intro", intro); err != nil {
		return s.fail(run, conversation.StageAwaitingMusicSelection, fmt.Errorf("failed to send selection prompt: %w", err))
	}
	for i, t := range tracks {
		link := fmt.Sprintf(msgVersionLink, i+1, s.links.URL(conversation.ArtifactMusic, t.Path))
		if err := s.say(ctx, run, fmt.Sprintf("link-%d", i), link); err != nil {
			return s.fail(run, conversation.StageAwaitingMusicSelection, fmt.Errorf("failed to send version link: %w", err))
		}
	}
	return Suspend(func(st *conversation.State) {
		st.Stage = conversation.StageAwaitingMusicSelection
		st.AppendHistory(conversation.RoleAssistant, intro)
		st.AppendHistory(conversation.RoleSystem, "Music links sent")
	}, StepAwaitSelection)
}

// awaitSelection applies the user's choice between the generated versions.
// A remake request does not count as a failure.
func (s *Steps) awaitSelection(ctx context.Context, run *Run) Result {
	text := run.Text()
	if text == "" {
		return Suspend(nil, StepAwaitSelection)
	}
	sel := ParseSelection(text)
	count := len(run.State.Music.Candidates)

	if sel.Kind == SelectRemake {
		if err := s.say(ctx, run, "remake", msgRemaking); err != nil {
			run.logger.Warn().Err(err).Msg("failed to acknowledge remake")
		}
		return Advance(func(st *conversation.State) {
			st.AppendHistory(conversation.RoleUser, text)
			st.RemakeRequested = true
			st.Brief.RemakeInstructions = sel.Feedback
			_ = st.Reopen(conversation.TaskMusic)
			st.PendingTask = conversation.TaskMusic
			st.Stage = conversation.StageGeneratingMusic
		}, StepGenerateMusic)
	}

	if sel.Index >= count {
		msg := fmt.Sprintf(msgOnlyVersions, count, count)
		if err := s.say(ctx, run, "out-of-range", msg); err != nil {
			run.logger.Warn().Err(err).Msg("failed to report invalid selection")
		}
		return Suspend(func(st *conversation.State) {
			st.AppendHistory(conversation.RoleUser, text)
			st.AppendHistory(conversation.RoleAssistant, msg)
		}, StepAwaitSelection)
	}

	u, next := then(run, func(st *conversation.State) {
		st.AppendHistory(conversation.RoleUser, text)
		_ = st.Music.Select(sel.Index)
		st.RemakeRequested = false
		st.Brief.RemakeInstructions = ""
		st.AppendHistory(conversation.RoleSystem, fmt.Sprintf("Music %d selected", sel.Index+1))
	})
	return Advance(u, next)
}

func (s *Steps) generateCover(ctx context.Context, run *Run) Result {
	if err := s.expect(run, conversation.TaskCover); err != nil {
		return s.reject(ctx, run, err)
	}
	prompt, err := s.decisions.CoverPrompt(ctx, s.context(run))
	if err == nil {
		err = prompt.Validate()
	}
	if err != nil {
		return s.fail(run, conversation.StageGeneratingCover, fmt.Errorf("failed to prepare cover prompt: %w", err))
	}
	cover, err := s.images.GenerateCover(ctx, prompt.Text())
	if err != nil {
		return s.fail(run, conversation.StageGeneratingCover, fmt.Errorf("cover generation failed: %w", err))
	}
	u, next := then(run, func(st *conversation.State) {
		st.Cover.SetCandidates([]conversation.Candidate{cover})
		_ = st.Cover.Select(0)
		st.Video.Reset()
		_ = st.Complete(conversation.TaskCover)
		st.ResetRetries()
		st.AppendHistory(conversation.RoleSystem, "Cover generated")
	})
	return Advance(u, next)
}

func (s *Steps) generateVideo(ctx context.Context, run *Run) Result {
	if err := s.expect(run, conversation.TaskVideo); err != nil {
		return s.reject(ctx, run, err)
	}
	track, _ := run.State.Music.Chosen()
	cover, ok := run.State.Cover.Chosen()
	if !ok {
		cover = run.State.Cover.Candidates[0]
	}
	video, err := s.video.Mux(ctx, cover.Path, track.Path)
	if err != nil {
		return s.fail(run, conversation.StageGeneratingVideo, fmt.Errorf("video creation failed: %w", err))
	}
	u, next := then(run, func(st *conversation.State) {
		st.Video.SetCandidates([]conversation.Candidate{video})
		_ = st.Video.Select(0)
		_ = st.Complete(conversation.TaskVideo)
		st.ResetRetries()
		st.AppendHistory(conversation.RoleSystem, "Video created")
	})
	return Advance(u, next)
}

// savePersona registers the voice of the selected song as a persona.
func (s *Steps) savePersona(ctx context.Context, run *Run) Result {
	if err := s.expect(run, conversation.TaskPersonaSave); err != nil {
		return s.reject(ctx, run, err)
	}
	stage := run.State.Stage
	profile, err := s.decisions.PersonaProfile(ctx, s.context(run))
	if err == nil {
		err = profile.Validate()
	}
	if err != nil {
		return s.fail(run, stage, fmt.Errorf("failed to describe persona: %w", err))
	}
	track, _ := run.State.Music.Chosen()
	personaID, err := s.music.CreatePersona(ctx, PersonaRequest{
		JobID:       run.State.MusicJobID,
		AudioID:     track.ID,
		Name:        profile.Name,
		Description: profile.Description,
	})
	if err != nil {
		return s.fail(run, stage, fmt.Errorf("persona creation failed: %w", err))
	}
	p := &persona.Persona{
		PersonaID:     personaID,
		Name:          profile.Name,
		Description:   profile.Description,
		SourceAudioID: track.ID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.personas.Save(ctx, p); err != nil {
		return s.fail(run, stage, fmt.Errorf("failed to store persona: %w", err))
	}
	text := fmt.Sprintf(msgPersonaSaved, profile.Name)
	if err := s.say(ctx, run, "persona-saved", text); err != nil {
		run.logger.Warn().Err(err).Msg("failed to confirm persona")
	}
	u, next := then(run, func(st *conversation.State) {
		st.SelectedPersonaID = personaID
		_ = st.Complete(conversation.TaskPersonaSave)
		st.ResetRetries()
		st.AppendHistory(conversation.RoleAssistant, text)
	})
	return Advance(u, next)
}

// deliver sends a link for every chosen artifact.
func (s *Steps) deliver(ctx context.Context, run *Run) Result {
	type item struct {
		kind  conversation.ArtifactKind
		label string
	}
	items := []item{
		{conversation.ArtifactMusic, "Music"},
		{conversation.ArtifactCover, "Cover"},
		{conversation.ArtifactVideo, "Video"},
	}

	sent := 0
	for _, it := range items {
		a := run.State.Artifact(it.kind)
		c, ok := a.Chosen()
		if !ok {
			continue
		}
		link := fmt.Sprintf("%s:\n%s", it.label, s.links.URL(it.kind, c.Path))
		if err := s.say(ctx, run, "deliver-"+string(it.kind), link); err != nil {
			return s.fail(run, conversation.StageDelivering, fmt.Errorf("delivery failed: %w", err))
		}
		sent++
	}

	if sent == 0 {
		if err := s.say(ctx, run, "nothing", msgNothingToDeliver); err != nil {
			return s.fail(run, conversation.StageDelivering, fmt.Errorf("delivery failed: %w", err))
		}
		return Suspend(func(st *conversation.State) {
			st.Stage = conversation.StageIdle
			st.AppendHistory(conversation.RoleAssistant, msgNothingToDeliver)
		}, StepAwaitReply)
	}

	if err := s.say(ctx, run, "ready", msgAllReady); err != nil {
		return s.fail(run, conversation.StageDelivering, fmt.Errorf("delivery failed: %w", err))
	}
	return Suspend(func(st *conversation.State) {
		st.Stage = conversation.StageCompleted
		st.PendingTask = ""
		st.ResetRetries()
		st.AppendHistory(conversation.RoleAssistant, msgAllReady)
	}, StepAwaitReply)
}

// sendMedia sends an artifact file directly through the transport.
func (s *Steps) sendMedia(kind conversation.ArtifactKind) StepFunc {
	return func(ctx context.Context, run *Run) Result {
		a := run.State.Artifact(kind)
		c, ok := a.Chosen()
		if !ok && len(a.Candidates) > 0 {
			c, ok = a.Candidates[0], true
		}
		if !ok {
			return s.reject(ctx, run, &PrerequisiteError{
				Task:    conversation.TaskKind(kind),
				Message: fmt.Sprintf("There is no %s to send yet. Tell me what you'd like me to create.", kind),
			})
		}
		err := run.Once(ctx, "media", func(ctx context.Context) error {
			return s.messenger.SendMedia(ctx, run.Identity, kind, c.Path, c.Title)
		})
		if err != nil {
			return s.fail(run, conversation.StageDelivering, fmt.Errorf("failed to send %s: %w", kind, err))
		}
		return Advance(func(st *conversation.State) {
			st.AppendHistory(conversation.RoleSystem, fmt.Sprintf("%s sent to the user", kind))
		}, StepUnderstand)
	}
}
