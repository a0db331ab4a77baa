package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	require.True(t, ok)
	assert.Equal(t, s, got.UTC().Format(time.RFC3339))
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, ts, got.Unix())
}

func TestParseTimeDateLayouts(t *testing.T) {
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-03-01", "2024/03/01", "03/01/2024", " 2024-03-01 "} {
		got, ok := ParseTime(s)
		require.True(t, ok, s)
		assert.True(t, want.Equal(got), s)
	}
	_, ok := ParseTime("not a date")
	assert.False(t, ok)
}

func TestParseFloat(t *testing.T) {
	v, err := ParseFloat(" 1,234.5 ")
	require.NoError(t, err)
	assert.Equal(t, 1234.5, v)

	_, err = ParseFloat("n/a")
	assert.Error(t, err)
}
