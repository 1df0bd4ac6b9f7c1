// Package models defines the data shared between the station's components.
package models

import "time"

// Track is one catalog entry as reported by the provider
type Track struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Artist         string `json:"artist"`
	Album          string `json:"album"`
	DurationMillis int64  `json:"duration"`
	ArtworkURL     string `json:"album_art,omitempty"`
	Comment        string `json:"comment,omitempty"`
}

// Duration returns the track length as a time.Duration
func (t Track) Duration() time.Duration {
	return time.Duration(t.DurationMillis) * time.Millisecond
}
