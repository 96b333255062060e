package dedup

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestFilter() (*Filter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewFilter(DefaultWindow, zerolog.Nop(), WithClock(clock.Now)), clock
}

func TestFilter_SameContentWithinWindow(t *testing.T) {
	f, clock := newTestFilter()

	assert.False(t, f.IsDuplicate("905551112233", "make me a song", "m1"))
	clock.Advance(2 * time.Second)
	assert.True(t, f.IsDuplicate("905551112233", "make me a song", "m2"))
}

func TestFilter_SameContentAfterWindow(t *testing.T) {
	f, clock := newTestFilter()

	assert.False(t, f.IsDuplicate("905551112233", "make me a song", ""))
	clock.Advance(31 * time.Second)
	assert.False(t, f.IsDuplicate("905551112233", "make me a song", ""))
}

func TestFilter_SameMessageID(t *testing.T) {
	f, clock := newTestFilter()

	assert.False(t, f.IsDuplicate("id", "first text", "wamid.1"))
	clock.Advance(5 * time.Second)
	assert.True(t, f.IsDuplicate("id", "edited text", "wamid.1"))
	assert.False(t, f.IsDuplicate("id", "other text", "wamid.2"))
}

func TestFilter_IdentitiesAreIndependent(t *testing.T) {
	f, _ := newTestFilter()

	assert.False(t, f.IsDuplicate("a", "hello", "m1"))
	assert.False(t, f.IsDuplicate("b", "hello", "m1"))
}

func TestFilter_PurgesExpiredRecords(t *testing.T) {
	f, clock := newTestFilter()

	f.IsDuplicate("a", "one", "")
	f.IsDuplicate("b", "two", "")
	require.Equal(t, 2, f.Len())

	clock.Advance(45 * time.Second)
	assert.Equal(t, 2, f.Sweep())
	assert.Equal(t, 0, f.Len())
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint("a", "b"), Fingerprint("a", "b"))
	assert.NotEqual(t, Fingerprint("a", "bc"), Fingerprint("ab", "c"))
	assert.Len(t, Fingerprint("a", "b"), 64)
}
