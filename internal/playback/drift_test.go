package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDrift(t *testing.T) {
	assert.Equal(t, correctionNone, classifyDrift(0))
	assert.Equal(t, correctionNone, classifyDrift(0.3))
	assert.Equal(t, correctionNone, classifyDrift(-0.2))
	assert.Equal(t, correctionSoft, classifyDrift(0.5))
	assert.Equal(t, correctionSoft, classifyDrift(-2.9))
	assert.Equal(t, correctionSoft, classifyDrift(3.0))
	assert.Equal(t, correctionHard, classifyDrift(3.1))
	assert.Equal(t, correctionHard, classifyDrift(-40))
}

func TestSoftRateDirection(t *testing.T) {
	// behind the host: speed up; ahead: slow down
	assert.InDelta(t, 1.1, softRate(1.0, -1), 0.001)
	assert.InDelta(t, 1.0/1.1, softRate(1.0, 1), 0.001)

	// scales with the base rate a host set
	assert.InDelta(t, 1.5*1.1, softRate(1.5, -1), 0.001)
}
