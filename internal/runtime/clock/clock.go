// Package clock reads the engine's wall clock.
package clock

import (
	"time"

	"github.com/drblury/mpiflow/internal/engine"
)

// Clock is backed by the engine's Wtime and Wtick.
type Clock struct {
	eng engine.Lifecycle
}

func New(eng engine.Lifecycle) Clock {
	return Clock{eng: eng}
}

// Time is an instant on the engine clock.
type Time struct {
	seconds float64
}

func (c Clock) Now() Time {
	return Time{seconds: c.eng.Wtime()}
}

// Tick is the clock resolution.
func (c Clock) Tick() time.Duration {
	return seconds(c.eng.Wtick())
}

// Since is shorthand for c.Now().Sub(t).
func (c Clock) Since(t Time) time.Duration {
	return c.Now().Sub(t)
}

func (t Time) Sub(u Time) time.Duration {
	return seconds(t.seconds - u.seconds)
}

func (t Time) Before(u Time) bool { return t.seconds < u.seconds }
func (t Time) Seconds() float64   { return t.seconds }

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
