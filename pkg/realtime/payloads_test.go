package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDAcceptsNumbersAndStrings(t *testing.T) {
	var ev StreamEndedEvent
	require.NoError(t, json.Unmarshal([]byte(`{"streamId":"12","streamerId":7,"finalViewerCount":40}`), &ev))
	assert.Equal(t, ID("12"), ev.StreamID)
	assert.Equal(t, ID("7"), ev.StreamerID)
	assert.Equal(t, 40, ev.FinalViewerCount)

	var s Stream
	require.NoError(t, json.Unmarshal([]byte(`{"id":3,"streamer_id":null,"isLive":true}`), &s))
	assert.Equal(t, "3", s.ID.String())
	assert.Empty(t, s.StreamerID)
	assert.True(t, s.IsLive)
}

func TestNormalizeStatsFlat(t *testing.T) {
	snap, ok := NormalizeStats(json.RawMessage(`{"streamId":"9","viewers":12,"followers":"4","subscribers":true}`))
	require.True(t, ok)
	assert.Equal(t, ID("9"), snap.StreamID)
	assert.Equal(t, StreamStats{Viewers: 12, Followers: 4, Subscribers: 0}, snap.Current)
	assert.Empty(t, snap.ViewerHistory)
}

func TestNormalizeStatsNested(t *testing.T) {
	snap, ok := NormalizeStats(json.RawMessage(`{
		"streamId": 9,
		"timestamp": 1700000000,
		"currentStats": {"viewers": 5, "followers": 2, "subscribers": 1},
		"viewerHistory": [{"timestamp": 1, "value": 3}, "junk", {"timestamp": 2, "value": "5"}],
		"followerHistory": "not a list"
	}`))
	require.True(t, ok)
	assert.Equal(t, int64(1700000000), snap.Timestamp)
	assert.Equal(t, StreamStats{Viewers: 5, Followers: 2, Subscribers: 1}, snap.Current)
	assert.Equal(t, []StatsPoint{{Timestamp: 1, Value: 3}, {Timestamp: 2, Value: 5}}, snap.ViewerHistory)
	assert.Nil(t, snap.FollowerHistory)
}

func TestNormalizeStatsGarbage(t *testing.T) {
	for _, in := range []string{``, `null`, `[1,2]`, `"x"`} {
		snap, ok := NormalizeStats(json.RawMessage(in))
		assert.False(t, ok, in)
		assert.Equal(t, StreamStatsSnapshot{}, snap)
	}
}
