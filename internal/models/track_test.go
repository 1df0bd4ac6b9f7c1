package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrack_Duration(t *testing.T) {
	track := Track{ID: "t1", DurationMillis: 215500}
	assert.Equal(t, 3*time.Minute+35*time.Second+500*time.Millisecond, track.Duration())
}

func TestNewTrackRank(t *testing.T) {
	before := time.Now().UTC()
	r := NewTrackRank("t1", "Song", 7)

	assert.Equal(t, "t1", r.TrackID)
	assert.Equal(t, "Song", r.Title)
	assert.Equal(t, 7, r.Rank)
	assert.False(t, r.UpdatedAt.Before(before))
	assert.Equal(t, "track_ranks", TrackRank{}.TableName())
}
