package entities

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudentID(t *testing.T) {
	assert.Equal(t, "s1", Student{"id": "s1"}.ID())
	assert.Equal(t, "", Student{}.ID())
	assert.Equal(t, "", Student{"id": 42}.ID(), "non-string ids are treated as absent")
}

func TestStudentMarkArchived(t *testing.T) {
	s := Student{"id": "s1", "name": "Ayesha"}
	s.MarkArchived(time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC))

	assert.Equal(t, StudentStatusArchived, s["status"])
	assert.Equal(t, "2025-03-14T09:26:53Z", s["archivedAt"])
	assert.Equal(t, "Ayesha", s["name"], "other fields are untouched")
}

func TestAppStateJSONShape(t *testing.T) {
	raw, err := json.Marshal(NewAppState())
	require.NoError(t, err)
	assert.JSONEq(t, `{"students":[],"archived":[],"settings":{}}`, string(raw))
}

func TestAppStateNormalize(t *testing.T) {
	var state AppState
	state.Normalize()

	assert.NotNil(t, state.Students)
	assert.NotNil(t, state.Archived)
	assert.NotNil(t, state.Settings)
}

func TestStudentRoundTripPreservesUnknownFields(t *testing.T) {
	raw := `{"students":[{"id":"s1","customField":{"nested":true},"fee":300}],"archived":[],"settings":{}}`

	var state AppState
	require.NoError(t, json.Unmarshal([]byte(raw), &state))

	out, err := json.Marshal(&state)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}
