package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_advanceMovesTimeForward(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	assert.Equal(t, start, f.Now())

	got := f.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), got)
	assert.Equal(t, start.Add(time.Hour), f.Now())
}

func TestFake_setPinsTime(t *testing.T) {
	f := NewFake(time.Now())
	target := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

	f.Set(target)

	assert.Equal(t, target, f.Now())
}

func TestReal_returnsCurrentTime(t *testing.T) {
	before := time.Now()
	got := Real{}.Now()
	after := time.Now()

	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}
