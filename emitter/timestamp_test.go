package emitter

import (
	"testing"

	"github.com/cvsfastexport/cvsfastexport/mark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTimestampUTC(t *testing.T) {
	got, err := formatTimestamp(1000, "UTC")
	require.NoError(t, err)
	assert.Equal(t, "1000 +0000", got)
}

func TestFormatTimestampUnknownZoneFallsBackToUTC(t *testing.T) {
	got, err := formatTimestamp(1000, "Not/AZone")
	require.NoError(t, err)
	assert.Equal(t, "1000 +0000", got)
}

func TestForcedTimestampIsMonotonicAndPositive(t *testing.T) {
	t1 := forcedTimestamp(mark.Mark(1))
	t2 := forcedTimestamp(mark.Mark(2))
	assert.Positive(t, t1)
	assert.Less(t, t1, t2)
}
