package mark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextMarkStartsAtOneAndIncrements(t *testing.T) {
	a := NewAllocator()
	m1, err := a.NextMark()
	require.NoError(t, err)
	assert.EqualValues(t, 1, m1)
	m2, err := a.NextMark()
	require.NoError(t, err)
	assert.EqualValues(t, 2, m2)
}

func TestNextSerialIndependentOfMark(t *testing.T) {
	a := NewAllocator()
	_, err := a.NextMark()
	require.NoError(t, err)
	_, err = a.NextMark()
	require.NoError(t, err)
	s1, err := a.NextSerial()
	require.NoError(t, err)
	assert.EqualValues(t, 1, s1, "serial numbering is independent of mark numbering")
}

func TestBindAndMarkOf(t *testing.T) {
	a := NewAllocator()
	s, err := a.NextSerial()
	require.NoError(t, err)
	m, err := a.NextMark()
	require.NoError(t, err)
	a.Bind(s, m)

	got, ok := a.MarkOf(s)
	require.True(t, ok)
	assert.Equal(t, m, got)

	_, ok = a.MarkOf(Serial(999))
	assert.False(t, ok)
}

func TestNextMarkOverflowIsFatal(t *testing.T) {
	a := NewAllocator(WithMaxWidth(1))
	for i := 0; i < 9; i++ {
		_, err := a.NextMark()
		require.NoError(t, err)
	}
	_, err := a.NextMark()
	require.Error(t, err, "mark 10 exceeds 1-digit width")
}

func TestCount(t *testing.T) {
	a := NewAllocator()
	assert.EqualValues(t, 0, a.Count())
	_, _ = a.NextMark()
	_, _ = a.NextMark()
	assert.EqualValues(t, 2, a.Count())
}
