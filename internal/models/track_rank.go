package models

import "time"

// TrackRank is the persisted rank score for one track
type TrackRank struct {
	TrackID   string    `json:"track_id" gorm:"type:text;primaryKey;column:track_id"`
	Title     string    `json:"title" gorm:"type:text;not null;default:'';column:title"`
	Rank      int       `json:"rank" gorm:"type:integer;not null;column:rank"`
	UpdatedAt time.Time `json:"updated_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:updated_at"`
}

// TableName overrides the gorm table name
func (TrackRank) TableName() string {
	return "track_ranks"
}

// NewTrackRank creates a TrackRank stamped with the current time
func NewTrackRank(trackID, title string, rank int) *TrackRank {
	return &TrackRank{
		TrackID:   trackID,
		Title:     title,
		Rank:      rank,
		UpdatedAt: time.Now().UTC(),
	}
}
