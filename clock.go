package kv_settings

import "time"

type Clock interface {
	Now() time.Time
}

var _ Clock = new(RealClock)

type RealClock struct {
}

func NewRealClock() Clock {
	return &RealClock{}
}

func (r *RealClock) Now() time.Time {
	return time.Now()
}

// FixedClock always reports the same instant. Journals written with it are
// byte for byte reproducible.
type FixedClock struct {
	T time.Time
}

func (f FixedClock) Now() time.Time {
	return f.T
}
