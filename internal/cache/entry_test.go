package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntry_Expired(t *testing.T) {
	e := &Entry{ExpiresAt: time.Now().Add(-time.Second)}
	assert.True(t, e.Expired())

	e2 := &Entry{ExpiresAt: time.Now().Add(time.Minute)}
	assert.False(t, e2.Expired())

	e3 := &Entry{}
	assert.False(t, e3.Expired(), "zero ExpiresAt means no expiry")
}

func TestEntry_HasAllTags(t *testing.T) {
	e := &Entry{Tags: []string{"a", "b", "c"}}
	assert.True(t, e.HasAllTags(nil))
	assert.True(t, e.HasAllTags([]string{"a", "b"}))
	assert.False(t, e.HasAllTags([]string{"a", "z"}))
}

func TestEntry_IntersectsTags(t *testing.T) {
	e := &Entry{Tags: []string{"a", "b"}}
	assert.True(t, e.IntersectsTags([]string{"b", "c"}))
	assert.False(t, e.IntersectsTags([]string{"x", "y"}))
	assert.False(t, e.IntersectsTags(nil))
}

func TestEntry_TTLRemaining(t *testing.T) {
	e := &Entry{ExpiresAt: time.Now().Add(time.Minute)}
	assert.InDelta(t, time.Minute.Seconds(), e.TTLRemaining().Seconds(), 1)

	past := &Entry{ExpiresAt: time.Now().Add(-time.Minute)}
	assert.Equal(t, time.Duration(0), past.TTLRemaining())

	zero := &Entry{}
	assert.Equal(t, time.Duration(0), zero.TTLRemaining())
}
