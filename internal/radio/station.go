// Package radio wires the catalog, prefetch buffer, player and broadcaster
// into one station and runs its periodic jobs.
package radio

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/stwalsh4118/airwave/internal/broadcast"
	"github.com/stwalsh4118/airwave/internal/catalog"
	"github.com/stwalsh4118/airwave/internal/config"
	"github.com/stwalsh4118/airwave/internal/faults"
	"github.com/stwalsh4118/airwave/internal/logger"
	"github.com/stwalsh4118/airwave/internal/models"
	"github.com/stwalsh4118/airwave/internal/player"
	"github.com/stwalsh4118/airwave/internal/prefetch"
	"github.com/stwalsh4118/airwave/internal/provider"
)

// Common errors
var (
	ErrStationStopped = errors.New("station has been stopped")
	ErrAlreadyStarted = errors.New("station already started")
)

const saveTimeout = 10 * time.Second

// Provider is the remote catalog as seen by the station
type Provider interface {
	Login(ctx context.Context) error
	Tracks(ctx context.Context) ([]models.Track, error)
	ResolveStreamURL(ctx context.Context, trackID string) (string, error)
}

// RankStore persists listener ranks
type RankStore interface {
	List(ctx context.Context) ([]*models.TrackRank, error)
	ReplaceAll(ctx context.Context, ranks []*models.TrackRank) error
}

// Options holds the station's tuning knobs
type Options struct {
	Version         string
	MaxQueue        int
	MaxPrefetch     int
	DefaultRank     int
	TickInterval    time.Duration
	FlushInterval   time.Duration
	PersistInterval time.Duration
	RefreshInterval time.Duration
	HTTPClient      *http.Client
}

// OptionsFromConfig maps the radio config section onto Options
func OptionsFromConfig(cfg config.RadioConfig, version string) Options {
	return Options{
		Version:         version,
		MaxQueue:        cfg.MaxQueue,
		MaxPrefetch:     cfg.MaxPrefetch,
		DefaultRank:     cfg.DefaultRank,
		TickInterval:    cfg.TickInterval,
		FlushInterval:   cfg.FlushInterval,
		PersistInterval: cfg.PersistInterval,
		RefreshInterval: cfg.RefreshInterval,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxQueue <= 0 {
		o.MaxQueue = player.DefaultMaxQueue
	}
	if o.MaxPrefetch <= 0 {
		o.MaxPrefetch = prefetch.DefaultMaxEntries
	}
	if o.DefaultRank == 0 {
		o.DefaultRank = catalog.DefaultRank
	}
	if o.TickInterval <= 0 {
		o.TickInterval = 150 * time.Millisecond
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 50 * time.Millisecond
	}
	if o.PersistInterval <= 0 {
		o.PersistInterval = time.Minute
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = 5 * time.Minute
	}
	return o
}

// Station owns every component and the goroutines that drive them
type Station struct {
	provider Provider
	ranks    RankStore
	opts     Options

	selector  *catalog.Selector
	buffer    *prefetch.Buffer
	scheduler *player.Scheduler
	hub       *broadcast.Hub

	ctx      context.Context
	cancel   context.CancelFunc
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// New builds a station. Nothing runs until Start.
func New(p Provider, ranks RankStore, opts Options) *Station {
	opts = opts.withDefaults()
	selector := catalog.NewSelector(p, catalog.WithDefaultRank(opts.DefaultRank))

	var bufferOpts []prefetch.Option
	if opts.HTTPClient != nil {
		bufferOpts = append(bufferOpts, prefetch.WithHTTPClient(opts.HTTPClient))
	}
	buffer := prefetch.New(opts.MaxPrefetch, bufferOpts...)

	hub := broadcast.NewHub(selector, opts.Version)
	scheduler := player.NewScheduler(selector, p, buffer, hub, player.WithMaxQueue(opts.MaxQueue))
	hub.SetPlayer(scheduler)

	ctx, cancel := context.WithCancel(context.Background())
	return &Station{
		provider:  p,
		ranks:     ranks,
		opts:      opts,
		selector:  selector,
		buffer:    buffer,
		scheduler: scheduler,
		hub:       hub,
		ctx:       ctx,
		cancel:    cancel,
		stopChan:  make(chan struct{}),
	}
}

// Selector returns the catalog selector
func (s *Station) Selector() *catalog.Selector { return s.selector }

// Buffer returns the prefetch buffer
func (s *Station) Buffer() *prefetch.Buffer { return s.buffer }

// Scheduler returns the playback scheduler
func (s *Station) Scheduler() *player.Scheduler { return s.scheduler }

// Hub returns the broadcaster
func (s *Station) Hub() *broadcast.Hub { return s.hub }

// Start loads saved ranks, logs in, takes the first catalog snapshot and
// launches the periodic jobs. Provider and storage failures are logged and
// the station starts anyway; the refresh job keeps retrying the catalog.
func (s *Station) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStationStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}

	if saved, err := s.ranks.List(ctx); err != nil {
		logger.Log.Error().
			Err(faults.New(faults.KindPersistence, "load ranks", err)).
			Msg("Starting without saved ranks")
	} else {
		s.selector.LoadRanks(saved)
		logger.Log.Info().Int("ranks", len(saved)).Msg("Loaded saved ranks")
	}

	if err := s.provider.Login(ctx); err != nil {
		logger.Log.Error().Err(err).Msg("Provider login failed")
	}
	s.refresh(ctx)

	s.startLoop("tick", s.opts.TickInterval, s.scheduler.Tick)
	s.startLoop("flush", s.opts.FlushInterval, func(context.Context) { s.hub.Flush() })
	s.startLoop("persist", s.opts.PersistInterval, s.persist)
	s.startLoop("refresh", s.opts.RefreshInterval, s.refresh)
	s.started = true

	logger.Log.Info().
		Dur("tick_interval", s.opts.TickInterval).
		Dur("flush_interval", s.opts.FlushInterval).
		Dur("persist_interval", s.opts.PersistInterval).
		Dur("refresh_interval", s.opts.RefreshInterval).
		Msg("Station started")

	return nil
}

func (s *Station) startLoop(name string, interval time.Duration, job func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				logger.Log.Debug().Str("loop", name).Msg("Station loop stopped")
				return
			case <-ticker.C:
				job(s.ctx)
			}
		}
	}()
}

func (s *Station) refresh(ctx context.Context) {
	if err := s.selector.Refresh(ctx); err != nil {
		logger.Log.Warn().
			Err(err).
			Int("tracks", s.selector.Len()).
			Msg("Keeping previous catalog snapshot")
		return
	}
	logger.Log.Info().Int("tracks", s.selector.Len()).Msg("Catalog refreshed")
}

func (s *Station) persist(ctx context.Context) {
	if err := s.SaveRanks(ctx); err != nil {
		logger.Log.Error().Err(err).Msg("Failed to save ranks")
	}
}

// SaveRanks writes the current ranks to the store
func (s *Station) SaveRanks(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()

	snapshot := s.selector.RankSnapshot()
	if err := s.ranks.ReplaceAll(ctx, snapshot); err != nil {
		return faults.New(faults.KindPersistence, "save ranks", err)
	}
	logger.Log.Debug().Int("ranks", len(snapshot)).Msg("Ranks saved")
	return nil
}

// Stop halts the periodic jobs, disconnects clients, aborts downloads and
// saves ranks one last time. Safe to call more than once.
func (s *Station) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	logger.Log.Info().Msg("Stopping station...")

	close(s.stopChan)
	s.cancel()
	s.wg.Wait()

	s.hub.Close()
	s.buffer.Close()

	if started {
		if err := s.SaveRanks(context.Background()); err != nil {
			logger.Log.Error().Err(err).Msg("Failed to save ranks during shutdown")
		}
	}

	logger.Log.Info().Msg("Station stopped")
}

// Status is a point-in-time summary of the station
type Status struct {
	Version            string        `json:"version"`
	Running            bool          `json:"running"`
	NowPlaying         *models.Track `json:"now_playing,omitempty"`
	Elapsed            float64       `json:"elapsed"`
	Mode               string        `json:"mode"`
	Queue              []string      `json:"queue"`
	PrefetchEntries    int           `json:"prefetch_entries"`
	Clients            int           `json:"clients"`
	CatalogSize        int           `json:"catalog_size"`
	CatalogRefreshedAt time.Time     `json:"catalog_refreshed_at"`
	ProviderBreaker    string        `json:"provider_breaker,omitempty"`
}

// Status reports what the station is doing
func (s *Station) Status() Status {
	s.mu.Lock()
	running := s.started && !s.stopped
	s.mu.Unlock()

	queue := s.scheduler.Queue()
	ids := make([]string, len(queue))
	for i, t := range queue {
		ids[i] = t.ID
	}

	status := Status{
		Version:            s.opts.Version,
		Running:            running,
		Elapsed:            s.scheduler.Elapsed(),
		Mode:               s.scheduler.Mode().String(),
		Queue:              ids,
		PrefetchEntries:    s.buffer.Len(),
		Clients:            s.hub.ClientCount(),
		CatalogSize:        s.selector.Len(),
		CatalogRefreshedAt: s.selector.RefreshedAt(),
	}
	if s.scheduler.Started() {
		if track, ok := s.scheduler.Playing(); ok {
			status.NowPlaying = &track
		}
	}
	if b, ok := s.provider.(interface{ Breaker() *provider.Breaker }); ok {
		status.ProviderBreaker = b.Breaker().State().String()
	}
	return status
}
