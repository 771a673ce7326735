package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIDShapeAndUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateID()
		require.Len(t, id, 24)
		assert.Regexp(t, "^[0-9a-f]{24}$", id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestGetTimeFromID(t *testing.T) {
	before := time.Now().Add(-2 * time.Second)
	id := GenerateID()
	after := time.Now().Add(2 * time.Second)

	ts, err := GetTimeFromID(id)
	require.NoError(t, err)
	assert.True(t, ts.After(before) && ts.Before(after), "timestamp %v outside [%v, %v]", ts, before, after)
}

func TestGetTimeFromIDErrors(t *testing.T) {
	_, err := GetTimeFromID("short")
	assert.Error(t, err)

	_, err = GetTimeFromID("zzzzzzzz-not-hex")
	assert.Error(t, err)
}

func TestGenerateTimestampPrefix(t *testing.T) {
	prefix := GenerateTimestampPrefix()
	require.Len(t, prefix, 9)
	assert.Regexp(t, "^[0-9a-f]{8}_$", prefix)

	ts, err := GetTimeFromID(prefix)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, 5*time.Second)
}
