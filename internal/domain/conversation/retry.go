package conversation

// DefaultMaxRetries is the number of failed attempts after which the current
// plan is abandoned.
const DefaultMaxRetries = 2

// RecordFailure notes a failed attempt of stage and returns the new count.
// The count is shared by all stages of the conversation.
func (s *State) RecordFailure(stage Stage, message string) int {
	s.RetryCount++
	s.LastError = &LastError{Stage: stage, Message: message}
	return s.RetryCount
}

// ResetRetries clears the ledger after a success.
func (s *State) ResetRetries() {
	s.RetryCount = 0
	s.LastError = nil
}

// RetriesExhausted reports whether the count reached max.
func (s *State) RetriesExhausted(max int) bool {
	if max <= 0 {
		max = DefaultMaxRetries
	}
	return s.RetryCount >= max
}
