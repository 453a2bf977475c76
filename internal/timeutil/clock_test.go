package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClockAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	assert.Equal(t, start, c.Now())

	c.Advance(time.Minute)
	assert.Equal(t, start.Add(time.Minute), c.Now())
	assert.Equal(t, time.Minute, c.Since(start))
}

func TestManualClockAfter(t *testing.T) {
	c := NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	ch := c.After(10 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired before deadline")
	default:
	}

	c.Advance(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired halfway to deadline")
	default:
	}

	c.Advance(5 * time.Second)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("did not fire at deadline")
	}
}

func TestManualClockAfterZero(t *testing.T) {
	c := NewManualClock(time.Now())
	select {
	case <-c.After(0):
	case <-time.After(time.Second):
		t.Fatal("zero-duration After should fire immediately")
	}
}
