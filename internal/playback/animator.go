package playback

import (
	"errors"
	"time"

	"github.com/skywatch-data/skywatch/internal/timeutil"
)

// ErrNoFrames is returned when the animator has nothing to play.
var ErrNoFrames = errors.New("playback: no frames loaded")

// SpeedMultipliers are the supported playback rates.
var SpeedMultipliers = []float64{1, 2, 4, 8, 16}

// Animator replays a frame sequence against a monotonic clock. Simulated
// elapsed time is wall elapsed time scaled by the speed multiplier; pausing
// freezes the simulated clock without losing position.
type Animator struct {
	frames  []Frame
	clock   timeutil.Clock
	speed   float64
	playing bool

	simTime  time.Time // current simulated instant
	lastTick time.Time // wall time of the previous step
}

// NewAnimator builds an Animator over ordered frames. A nil clock falls
// back to the real one.
func NewAnimator(frames []Frame, clock timeutil.Clock) *Animator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	a := &Animator{frames: frames, clock: clock, speed: 1}
	if len(frames) > 0 {
		a.simTime = frames[0].Time
	}
	return a
}

// SetSpeed sets the playback rate, snapping to the nearest supported
// multiplier.
func (a *Animator) SetSpeed(speed float64) {
	best := SpeedMultipliers[0]
	for _, m := range SpeedMultipliers {
		if abs(m-speed) < abs(best-speed) {
			best = m
		}
	}
	a.speed = best
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Speed returns the current playback rate.
func (a *Animator) Speed() float64 { return a.speed }

// Play starts or resumes playback.
func (a *Animator) Play() {
	a.playing = true
	a.lastTick = a.clock.Now()
}

// Pause freezes the simulated clock.
func (a *Animator) Pause() { a.playing = false }

// Seek jumps the simulated clock to t, clamped to the frame range.
func (a *Animator) Seek(t time.Time) error {
	if len(a.frames) == 0 {
		return ErrNoFrames
	}
	if t.Before(a.frames[0].Time) {
		t = a.frames[0].Time
	}
	if last := a.frames[len(a.frames)-1].Time; t.After(last) {
		t = last
	}
	a.simTime = t
	a.lastTick = a.clock.Now()
	return nil
}

// Done reports whether playback has reached the final frame.
func (a *Animator) Done() bool {
	if len(a.frames) == 0 {
		return true
	}
	return !a.simTime.Before(a.frames[len(a.frames)-1].Time)
}

// Step advances the simulated clock by the scaled wall time since the last
// step and returns the interpolated snapshot for the new instant.
func (a *Animator) Step() (Frame, error) {
	if len(a.frames) == 0 {
		return Frame{}, ErrNoFrames
	}
	now := a.clock.Now()
	if a.playing {
		wall := now.Sub(a.lastTick)
		a.simTime = a.simTime.Add(time.Duration(float64(wall) * a.speed))
		if last := a.frames[len(a.frames)-1].Time; a.simTime.After(last) {
			a.simTime = last
			a.playing = false
		}
	}
	a.lastTick = now

	lo, hi, _ := FindFrame(a.frames, a.simTime)
	if lo == hi {
		f := a.frames[lo]
		f.Time = a.simTime
		return f, nil
	}
	return Interpolate(a.frames[lo], a.frames[hi], a.simTime), nil
}
