package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidPostcodeArea(t *testing.T) {
	assert.True(t, IsValidPostcodeArea("W"))
	assert.True(t, IsValidPostcodeArea("rg"))
	assert.False(t, IsValidPostcodeArea("RG1"))
	assert.False(t, IsValidPostcodeArea("ABC"))
	assert.False(t, IsValidPostcodeArea(""))
}

func TestIsValidSessionID(t *testing.T) {
	assert.True(t, IsValidSessionID("b6c1e1f0-2d7a-4b1e-9c1d-0e6f3a2b9c10"))
	assert.False(t, IsValidSessionID("a b"))
	assert.False(t, IsValidSessionID("x:y"))
	assert.False(t, IsValidSessionID(""))
}

func TestParseDate(t *testing.T) {
	want := time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2015-06-01", " 01/06/2015 ", "2015-06-01T13:45:00Z", "2015-06-01 08:00:00"} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDate("June 2015")
	assert.ErrorIs(t, err, ErrInvalidDate)
}
