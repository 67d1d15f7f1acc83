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

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.True(t, ParseTimeDefault("", def).Equal(def))
	assert.True(t, ParseTimeDefault("garbage", def).Equal(def))
}

func TestBucketStart(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 47, 10, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 10, 10, 10, 45, 0, 0, time.UTC), BucketStart(ts, 15*time.Minute))
	assert.Equal(t, time.Date(2024, 10, 10, 8, 0, 0, 0, time.UTC), BucketStart(ts, 4*time.Hour))
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"EURUSD", "GBPUSD"}, SplitCSV(" EURUSD, ,GBPUSD "))
	assert.Nil(t, SplitCSV(""))
}
