package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromDurationRoundTrips(t *testing.T) {
	s := FromDuration(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, s.Duration())
}

func TestSubClampsToZero(t *testing.T) {
	early := FromNanoseconds(10)
	late := FromNanoseconds(100)

	assert.Equal(t, int64(90), late.Sub(early).Nanoseconds())
	assert.Equal(t, int64(0), early.Sub(late).Nanoseconds(), "underflow must clamp to zero, not go negative")
}

func TestAddZeroIsIdentity(t *testing.T) {
	s := FromMilliseconds(5)
	assert.Equal(t, s, s.Add(Stamp{}))
}

func TestBeforeAfterEqual(t *testing.T) {
	a := FromNanoseconds(1)
	b := FromNanoseconds(2)

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.True(t, a.Equal(a))
	assert.False(t, a.Equal(b))
}

func TestZeroStampIsZero(t *testing.T) {
	assert.True(t, Stamp{}.Zero())
	assert.False(t, Now().Zero())
}
