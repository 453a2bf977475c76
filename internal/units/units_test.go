package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversions(t *testing.T) {
	assert.InDelta(t, 32808.4, FeetFromMeters(10000), 0.1)
	assert.InDelta(t, 486, KnotsFromMPS(250), 0.1)
	assert.InDelta(t, 984.25, FPMFromMPS(5), 0.01)
	assert.InDelta(t, 35000, FlightLevelFeet(350), 0.001)
}

func TestZeroValues(t *testing.T) {
	assert.Zero(t, FeetFromMeters(0))
	assert.Zero(t, KnotsFromMPS(0))
	assert.Zero(t, FPMFromMPS(0))
}
