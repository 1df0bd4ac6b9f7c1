// Package player owns the station's playback queue and clock.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/stwalsh4118/airwave/internal/logger"
	"github.com/stwalsh4118/airwave/internal/metrics"
	"github.com/stwalsh4118/airwave/internal/models"
	"github.com/stwalsh4118/airwave/internal/prefetch"
)

// DefaultMaxQueue is the queue length maintained by Tick
const DefaultMaxQueue = 5

// Picker chooses the next track to enqueue
type Picker interface {
	Pick() (models.Track, bool)
}

// Resolver turns a track id into a downloadable URL
type Resolver interface {
	ResolveStreamURL(ctx context.Context, trackID string) (string, error)
}

// Prefetcher starts background downloads
type Prefetcher interface {
	Begin(trackID, url string) *prefetch.Request
}

// Notifier receives the messages produced by an advance
type Notifier interface {
	EnqueueUpdate(track models.Track, elapsed float64)
	EnqueueAck(key string, value any)
}

// Scheduler keeps the queue filled and decides when the head changes. The
// head of the queue is the playing track. Safe for concurrent use; Tick calls
// are serialized.
type Scheduler struct {
	picker     Picker
	resolver   Resolver
	prefetcher Prefetcher
	notifier   Notifier
	maxQueue   int
	now        func() time.Time

	tickMu sync.Mutex

	mu        sync.RWMutex
	queue     []models.Track
	startTime time.Time
	mode      Mode
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithMaxQueue sets the queue length to maintain
func WithMaxQueue(n int) Option {
	return func(s *Scheduler) { s.maxQueue = n }
}

// WithClock injects the time source
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates an idle scheduler with an empty queue
func NewScheduler(picker Picker, resolver Resolver, prefetcher Prefetcher, notifier Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		picker:     picker,
		resolver:   resolver,
		prefetcher: prefetcher,
		notifier:   notifier,
		maxQueue:   DefaultMaxQueue,
		now:        time.Now,
		mode:       ModeContinue,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxQueue < 2 {
		s.maxQueue = 2
	}
	return s
}

// Tick refills the queue, then advances it when the head has finished, a skip
// was requested, or playback has not started yet.
func (s *Scheduler) Tick(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.refill(ctx)

	head, advanced := s.advance()
	if !advanced {
		return
	}

	metrics.TracksPlayed.Inc()
	logger.Log.Info().
		Str("track_id", head.ID).
		Str("title", head.Title).
		Str("artist", head.Artist).
		Msg("Now playing")

	s.notifier.EnqueueAck("next", ModeContinue)
	s.notifier.EnqueueUpdate(head, 0)
}

// refill tops the queue up to maxQueue. No lock is held across resolution.
func (s *Scheduler) refill(ctx context.Context) {
	for s.queueLen() < s.maxQueue {
		if ctx.Err() != nil {
			return
		}

		track, ok := s.picker.Pick()
		if !ok {
			logger.Log.Debug().Msg("Catalog is empty, cannot fill queue")
			return
		}

		url, err := s.resolver.ResolveStreamURL(ctx, track.ID)
		if err != nil {
			// queued anyway; the empty url fails in the prefetch buffer
			logger.Log.Warn().
				Err(err).
				Str("track_id", track.ID).
				Msg("Failed to resolve stream url")
			url = ""
		}

		s.mu.Lock()
		s.queue = append(s.queue, track)
		s.mu.Unlock()

		s.prefetcher.Begin(track.ID, url)
	}
}

func (s *Scheduler) advance() (models.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return models.Track{}, false
	}

	now := s.now()
	if s.mode == ModeSkip {
		s.startTime = time.Time{}
	}
	if !s.startTime.IsZero() && now.Sub(s.startTime) > s.queue[0].Duration() {
		s.startTime = time.Time{}
	}
	if !s.startTime.IsZero() {
		return models.Track{}, false
	}

	switch s.mode {
	case ModeLoop:
	case ModeContinue, ModeSkip:
		if len(s.queue) < 2 {
			// nothing to advance to until the queue is refilled
			return models.Track{}, false
		}
		s.queue = s.queue[1:]
	}

	s.mode = ModeContinue
	s.startTime = now
	return s.queue[0], true
}

func (s *Scheduler) queueLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queue)
}

// Playing returns the head of the queue
func (s *Scheduler) Playing() (models.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.queue) == 0 {
		return models.Track{}, false
	}
	return s.queue[0], true
}

// Elapsed returns seconds since the head started, 0 before the first advance
func (s *Scheduler) Elapsed() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return s.now().Sub(s.startTime).Seconds()
}

// Started reports whether the head has a running clock
func (s *Scheduler) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.startTime.IsZero()
}

// Mode returns the pending listener instruction
func (s *Scheduler) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetMode records a listener instruction for the next tick
func (s *Scheduler) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// Queue returns a copy of the queue, head first
func (s *Scheduler) Queue() []models.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Track, len(s.queue))
	copy(out, s.queue)
	return out
}
