package session

import (
	"crypto/rand"
	mrand "math/rand/v2"
	"time"
)

// Clock supplies the current time. The manager and the reaper share one so
// tests can drive both.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Rand rolls the probabilistic idle extension. IntN returns a value in [0, n).
type Rand interface {
	IntN(n int) int
}

// RandFunc adapts a function to Rand.
type RandFunc func(n int) int

func (f RandFunc) IntN(n int) int { return f(n) }

var defaultRand Rand = RandFunc(mrand.IntN)

// TokenSize is the byte length of renewal tokens.
const TokenSize = 16

// TokenSource produces renewal tokens.
type TokenSource func() []byte

func randomToken() []byte {
	b := make([]byte, TokenSize)
	_, _ = rand.Read(b)
	return b
}
