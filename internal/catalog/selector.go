// Package catalog holds the station's view of the remote library and picks
// what to play next.
//
// Selection is weighted random with replacement: a track's weight is
// Alpha^rank, so every rank point doubles its chances. Unseen tracks start at
// the configured default rank, which is high, so new additions dominate until
// listeners vote them down.
package catalog

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/stwalsh4118/airwave/internal/models"
)

// Alpha is the base of the selection weight
const Alpha = 2.0

// DefaultRank is assigned to tracks seen for the first time
const DefaultRank = 256

// TrackSource lists the full remote catalog
type TrackSource interface {
	Tracks(ctx context.Context) ([]models.Track, error)
}

// Selector owns the catalog snapshot and per-track ranks. Safe for concurrent use.
type Selector struct {
	source      TrackSource
	defaultRank int

	mu          sync.RWMutex
	tracks      []models.Track
	ranks       map[string]int
	rng         *rand.Rand
	refreshedAt time.Time
}

// Option configures a Selector
type Option func(*Selector)

// WithDefaultRank overrides the rank given to unseen tracks
func WithDefaultRank(rank int) Option {
	return func(s *Selector) { s.defaultRank = rank }
}

// WithRand injects the random source, for deterministic tests
func WithRand(rng *rand.Rand) Option {
	return func(s *Selector) { s.rng = rng }
}

// NewSelector creates an empty selector backed by source
func NewSelector(source TrackSource, opts ...Option) *Selector {
	s := &Selector{
		source:      source,
		defaultRank: DefaultRank,
		ranks:       make(map[string]int),
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh replaces the snapshot with the provider's current listing. Ranks are
// carried over by id and unseen ids get the default rank; ranks of tracks no
// longer listed are dropped. On failure the previous snapshot is kept.
func (s *Selector) Refresh(ctx context.Context) error {
	tracks, err := s.source.Tracks(ctx)
	if err != nil {
		return fmt.Errorf("catalog refresh failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ranks := make(map[string]int, len(tracks))
	for _, t := range tracks {
		if r, ok := s.ranks[t.ID]; ok {
			ranks[t.ID] = r
		} else {
			ranks[t.ID] = s.defaultRank
		}
	}

	s.tracks = tracks
	s.ranks = ranks
	s.refreshedAt = time.Now().UTC()
	return nil
}

// Pick draws one track, weighted by Alpha^rank. Returns false when the
// snapshot is empty.
func (s *Selector) Pick() (models.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tracks) == 0 {
		return models.Track{}, false
	}

	// Weights are scaled by Alpha^-maxRank; the ratios, and so the
	// distribution, are unchanged but large ranks cannot overflow.
	maxRank := math.MinInt
	for _, t := range s.tracks {
		maxRank = max(maxRank, s.ranks[t.ID])
	}

	weights := make([]float64, len(s.tracks))
	total := 0.0
	for i, t := range s.tracks {
		weights[i] = math.Pow(Alpha, float64(s.ranks[t.ID]-maxRank))
		total += weights[i]
	}

	r := s.rng.Float64() * total
	for i, t := range s.tracks {
		r -= weights[i]
		if r <= 0 {
			return t, true
		}
	}
	// float rounding can leave a sliver of r; the last track owns it
	return s.tracks[len(s.tracks)-1], true
}

// Rank returns the score of a track, 0 if it is unknown
func (s *Selector) Rank(trackID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ranks[trackID]
}

// SetRank records listener feedback for a track
func (s *Selector) SetRank(trackID string, rank int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranks[trackID] = rank
}

// LoadRanks seeds ranks from durable storage, typically before the first Refresh
func (s *Selector) LoadRanks(ranks []*models.TrackRank) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range ranks {
		s.ranks[r.TrackID] = r.Rank
	}
}

// RankSnapshot returns the current ranks with titles for persistence
func (s *Selector) RankSnapshot() []*models.TrackRank {
	s.mu.RLock()
	defer s.mu.RUnlock()

	titles := make(map[string]string, len(s.tracks))
	for _, t := range s.tracks {
		titles[t.ID] = t.Title
	}

	out := make([]*models.TrackRank, 0, len(s.ranks))
	for id, rank := range s.ranks {
		out = append(out, models.NewTrackRank(id, titles[id], rank))
	}
	return out
}

// Tracks returns a copy of the current snapshot
func (s *Selector) Tracks() []models.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Len returns the snapshot size
func (s *Selector) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// RefreshedAt returns when the snapshot was last replaced
func (s *Selector) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}
