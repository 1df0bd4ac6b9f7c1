package broadcast

import (
	"encoding/json"

	"github.com/stwalsh4118/airwave/internal/models"
)

// Message types sent to clients
const (
	TypeUpdate = "update"
	TypeAck    = "ack"
)

// Inbound and ack keys
const (
	KeyVersion = "version"
	KeyNext    = "next"
	KeyScore   = "score"
	KeyTime    = "time"
)

// UpdateMessage announces the playing track
type UpdateMessage struct {
	Type     string  `json:"type"`
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album"`
	AlbumArt string  `json:"albumArt"`
	Duration int64   `json:"duration"`
	Score    int     `json:"score"`
	Extra    string  `json:"extra"`
	Time     float64 `json:"time"`
}

// AckMessage confirms or reports a single value
type AckMessage struct {
	Type  string `json:"type"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// InboundMessage is anything a client sends
type InboundMessage struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func newUpdate(track models.Track, score int, elapsed float64) UpdateMessage {
	return UpdateMessage{
		Type:     TypeUpdate,
		ID:       track.ID,
		Title:    track.Title,
		Artist:   track.Artist,
		Album:    track.Album,
		AlbumArt: track.ArtworkURL,
		Duration: track.DurationMillis,
		Score:    score,
		Extra:    track.Comment,
		Time:     elapsed,
	}
}

func newAck(key string, value any) AckMessage {
	return AckMessage{Type: TypeAck, Key: key, Value: value}
}
