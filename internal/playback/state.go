package playback

// State is the local replica's playback phase.
type State string

const (
	StatePaused    State = "paused"
	StatePlaying   State = "playing"
	StateBuffering State = "buffering"
)

// replica tracks the local copy of the room's playback state. The zero
// value is a paused replica, which is the state every participant starts
// in until the first broadcast or snapshot arrives.
type replica struct {
	state      State
	wasPlaying bool // play state before the current buffering episode
}

func newReplica() replica {
	return replica{state: StatePaused}
}

func (r *replica) play() {
	r.state = StatePlaying
}

func (r *replica) pause() {
	r.state = StatePaused
}

// bufferStart remembers whether playback was running so bufferEnd can
// restore it.
func (r *replica) bufferStart() {
	if r.state != StateBuffering {
		r.wasPlaying = r.state == StatePlaying
	}
	r.state = StateBuffering
}

func (r *replica) bufferEnd() {
	if r.wasPlaying {
		r.state = StatePlaying
	} else {
		r.state = StatePaused
	}
}

func (r *replica) playing() bool {
	return r.state == StatePlaying
}
