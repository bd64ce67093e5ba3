package tracing

import "time"

// A TimeTeller reports the current time in seconds since an epoch the
// implementation chooses. Tracers use it to stamp task start and end.
type TimeTeller interface {
	CurrentTime() float64
}

// WallClock tells time in seconds elapsed since its creation.
type WallClock struct {
	start time.Time
}

// NewWallClock creates a WallClock anchored at now.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// CurrentTime returns seconds since the clock was created.
func (c *WallClock) CurrentTime() float64 {
	return time.Since(c.start).Seconds()
}
