package dedup

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"
)

// DefaultWindow is how long an inbound event is remembered.
const DefaultWindow = 30 * time.Second

type record struct {
	hash      string
	messageID string
	seenAt    time.Time
}

// Filter drops repeated inbound events per identity within a time window.
type Filter struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	records map[string][]record
	logger  zerolog.Logger
}

// Option configures a Filter.
type Option func(*Filter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) { f.now = now }
}

// NewFilter creates a filter with the given window.
func NewFilter(window time.Duration, logger zerolog.Logger, opts ...Option) *Filter {
	if window <= 0 {
		window = DefaultWindow
	}
	f := &Filter{
		window:  window,
		now:     time.Now,
		records: make(map[string][]record),
		logger:  logger.With().Str("service", "dedup").Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fingerprint hashes the identity and content of an event.
func Fingerprint(identity, content string) string {
	sum := blake2b.Sum256([]byte(identity + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

// IsDuplicate reports whether the event was already seen for identity, and
// records it when it was not. An event is a duplicate when it carries a
// message id already seen, or the same content arrived within the window.
func (f *Filter) IsDuplicate(identity, content, messageID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	f.purgeLocked(now)

	hash := Fingerprint(identity, content)
	for _, r := range f.records[identity] {
		if messageID != "" && r.messageID == messageID {
			f.logger.Debug().Str("identity", identity).Str("message_id", messageID).Msg("duplicate message id")
			return true
		}
		if r.hash == hash {
			f.logger.Debug().Str("identity", identity).Msg("duplicate content")
			return true
		}
	}
	f.records[identity] = append(f.records[identity], record{hash: hash, messageID: messageID, seenAt: now})
	return false
}

// Sweep removes expired records and returns how many were dropped.
func (f *Filter) Sweep() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.purgeLocked(f.now())
}

// Len returns the number of retained records.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rs := range f.records {
		n += len(rs)
	}
	return n
}

func (f *Filter) purgeLocked(now time.Time) int {
	dropped := 0
	for identity, rs := range f.records {
		kept := rs[:0]
		for _, r := range rs {
			if now.Sub(r.seenAt) < f.window {
				kept = append(kept, r)
			} else {
				dropped++
			}
		}
		if len(kept) == 0 {
			delete(f.records, identity)
			continue
		}
		f.records[identity] = kept
	}
	return dropped
}
