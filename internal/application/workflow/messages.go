package workflow

import "github.com/orhanxakarsu/music-agent/internal/domain/conversation"

// User-facing texts.
const (
	MsgBusy  = "Processing in progress, please wait... I'll let you know when it's done!"
	MsgError = "Something went wrong, can you try again?"

	msgGiveUp           = "Having trouble with %s. Please try again later or make a different request."
	msgSelectionIntro   = "I've created %d different versions for you!\n\nYour options:\n- '1' or '2' - Select one\n- 'both' - Use both\n- 'neither' - Regenerate\n- Write feedback - Tell me what to change"
	msgVersionLink      = "Version %d:\n%s"
	msgNoTracks         = "Music could not be downloaded. Should we try again?"
	msgOnlyVersions     = "There are only %d versions. Please reply with a number between 1 and %d, or 'neither' to regenerate."
	msgRemaking         = "Okay, I'm creating new versions for you. This can take a few minutes."
	msgNoPersonas       = "No personas saved yet. First, generate music and save a style you like!"
	msgPersonaPrompt    = "Which persona would you like to use? (Send number)"
	msgPersonaSaved     = "Saved this voice as the persona %q. You can use it for your next songs."
	msgAllReady         = "All content is ready! Would you like anything else?"
	msgNothingToDeliver = "Hmm, couldn't find content to send. What would you like me to do?"
)

func stageLabel(stage conversation.Stage) string {
	switch stage {
	case conversation.StageGeneratingMusic, conversation.StageAwaitingMusicSelection:
		return "music generation"
	case conversation.StageGeneratingCover:
		return "cover generation"
	case conversation.StageGeneratingVideo:
		return "video creation"
	case conversation.StagePlanning:
		return "planning your request"
	case conversation.StageDelivering, conversation.StageCompleted:
		return "delivering your content"
	}
	return "your request"
}
