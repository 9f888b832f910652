// Package media abstracts the local playback element and the
// camera/microphone capture source so the coordination logic stays
// headless and testable.
package media

// Player is the local media element a participant watches on. All methods
// are called from coordinator goroutines; implementations must be safe for
// concurrent use.
type Player interface {
	// Play starts playback. It may fail (e.g. an autoplay policy); the
	// caller surfaces that as a user affordance, never a crash.
	Play() error
	Pause()
	// Seek jumps to an absolute position in seconds. Callers must not seek
	// before Ready reports true.
	Seek(seconds float64)
	SetRate(rate float64)

	CurrentTime() float64
	Rate() float64

	// Ready reports whether media metadata is loaded and seeking is
	// possible. OnReady fires once when that becomes true.
	Ready() bool
	OnReady(func())

	// OnBuffering fires on every buffering/resume transition of the
	// element itself.
	OnBuffering(func(isBuffering bool))
}
