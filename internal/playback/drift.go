package playback

import "time"

// Drift policy: a gap above hardCorrectionThreshold seconds jumps the
// guest straight to the host position. A smaller but noticeable gap is
// closed by briefly running the guest at an adjusted rate, which avoids
// visible seek jitter.
const (
	hardCorrectionThreshold = 3.0
	softCorrectionThreshold = 0.3

	softCorrectionRatio  = 1.1
	softCorrectionWindow = 2 * time.Second
)

type correction int

const (
	correctionNone correction = iota
	correctionSoft
	correctionHard
)

func classifyDrift(delta float64) correction {
	abs := delta
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs > hardCorrectionThreshold:
		return correctionHard
	case abs > softCorrectionThreshold:
		return correctionSoft
	default:
		return correctionNone
	}
}

// softRate returns the temporary rate that closes the gap: speed up when
// the guest is behind the host, slow down when it is ahead.
func softRate(baseRate, delta float64) float64 {
	if delta < 0 {
		return baseRate * softCorrectionRatio
	}
	return baseRate / softCorrectionRatio
}
