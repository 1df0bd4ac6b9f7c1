// Package prefetch downloads upcoming tracks into memory so they can be served
// to listeners while the download is still in progress.
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/stwalsh4118/airwave/internal/faults"
	"github.com/stwalsh4118/airwave/internal/logger"
	"github.com/stwalsh4118/airwave/internal/metrics"
)

// DefaultMaxEntries bounds the number of tracks held in memory
const DefaultMaxEntries = 10

const chunkSize = 32 * 1024

// Request identifies one download. It is handed to every callback so a
// callback can tell whether its entry is still alive.
type Request struct {
	Seq     uint64
	TrackID string
	URL     string
}

type entry struct {
	trackID  string
	data     []byte
	expected int64
}

// Buffer holds at most maxEntries in-flight or completed downloads. Inserting
// beyond the bound evicts the entry with the smallest sequence id. Removing an
// entry is what cancels its download: the next callback finds nothing and
// aborts.
type Buffer struct {
	client     *http.Client
	maxEntries int

	mu      sync.Mutex
	nextSeq uint64
	entries map[uint64]*entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Buffer
type Option func(*Buffer)

// WithHTTPClient sets the client used for downloads
func WithHTTPClient(client *http.Client) Option {
	return func(b *Buffer) { b.client = client }
}

// New creates an empty buffer
func New(maxEntries int, opts ...Option) *Buffer {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Buffer{
		client:     http.DefaultClient,
		maxEntries: maxEntries,
		entries:    make(map[uint64]*entry),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Begin allocates an entry for trackID and starts downloading url in the
// background. It returns immediately.
func (b *Buffer) Begin(trackID, url string) *Request {
	b.mu.Lock()
	b.nextSeq++
	req := &Request{Seq: b.nextSeq, TrackID: trackID, URL: url}
	b.entries[req.Seq] = &entry{trackID: trackID}
	evicted := b.evictLocked()
	live := len(b.entries)
	b.mu.Unlock()

	metrics.PrefetchStarted.Inc()
	metrics.PrefetchEntries.Set(float64(live))
	for _, seq := range evicted {
		logger.Log.Debug().
			Uint64("seq", seq).
			Msg("Evicted prefetch entry")
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.fetch(req)
	}()

	logger.Log.Debug().
		Uint64("seq", req.Seq).
		Str("track_id", trackID).
		Msg("Prefetch started")

	return req
}

// evictLocked drops the oldest entries until the bound holds. Caller holds mu.
func (b *Buffer) evictLocked() []uint64 {
	var evicted []uint64
	for len(b.entries) > b.maxEntries {
		oldest := uint64(0)
		first := true
		for seq := range b.entries {
			if first || seq < oldest {
				oldest = seq
				first = false
			}
		}
		delete(b.entries, oldest)
		evicted = append(evicted, oldest)
		metrics.PrefetchEvictions.Inc()
	}
	return evicted
}

// Read returns the bytes received so far and the expected total size for the
// oldest live entry of trackID, or nil, 0 when there is none. The returned
// slice is never written to again and may be used without holding any lock.
func (b *Buffer) Read(trackID string) ([]byte, int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var found *entry
	var foundSeq uint64
	for seq, e := range b.entries {
		if e.trackID != trackID {
			continue
		}
		if found == nil || seq < foundSeq {
			found, foundSeq = e, seq
		}
	}
	if found == nil {
		return nil, 0
	}
	n := len(found.data)
	return found.data[:n:n], found.expected
}

// Len returns the number of live entries
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Close aborts all downloads and waits for them to finish
func (b *Buffer) Close() {
	b.cancel()
	b.wg.Wait()
}

func (b *Buffer) fetch(req *Request) {
	err := b.download(req)
	switch {
	case err == nil:
		b.onComplete(req)
	case errors.Is(err, faults.ErrObsoleteRequest):
		logger.Log.Debug().
			Uint64("seq", req.Seq).
			Str("track_id", req.TrackID).
			Msg("Prefetch aborted, entry no longer live")
	default:
		b.fail(req, err)
	}
}

func (b *Buffer) download(req *Request) error {
	if req.URL == "" {
		return faults.New(faults.KindTransfer, "no stream url", nil)
	}

	httpReq, err := http.NewRequestWithContext(b.ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return faults.New(faults.KindTransfer, "invalid stream url", err)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return faults.New(faults.KindTransfer, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return faults.New(faults.KindTransfer, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	if err := b.onHeaders(req, resp.ContentLength); err != nil {
		return err
	}

	chunk := make([]byte, chunkSize)
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			if err := b.onChunk(req, chunk[:n]); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return faults.New(faults.KindTransfer, "read failed", readErr)
		}
	}
}

func (b *Buffer) onHeaders(req *Request, contentLength int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[req.Seq]
	if !ok {
		return faults.ErrObsoleteRequest
	}
	// unknown length stays 0 and fails the size check on completion
	if contentLength > 0 {
		e.expected = contentLength
	}
	return nil
}

func (b *Buffer) onChunk(req *Request, chunk []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[req.Seq]
	if !ok {
		return faults.ErrObsoleteRequest
	}
	e.data = append(e.data, chunk...)
	metrics.PrefetchBytes.Add(float64(len(chunk)))
	return nil
}

func (b *Buffer) onComplete(req *Request) {
	b.mu.Lock()
	e, ok := b.entries[req.Seq]
	if !ok {
		b.mu.Unlock()
		return
	}
	received, expected := int64(len(e.data)), e.expected
	if received == expected {
		b.mu.Unlock()
		logger.Log.Debug().
			Uint64("seq", req.Seq).
			Str("track_id", req.TrackID).
			Int64("bytes", received).
			Msg("Prefetch complete")
		return
	}
	delete(b.entries, req.Seq)
	live := len(b.entries)
	b.mu.Unlock()

	metrics.PrefetchEntries.Set(float64(live))
	metrics.PrefetchFailures.Inc()
	err := faults.New(faults.KindTransfer,
		fmt.Sprintf("size mismatch: received %d of %d bytes", received, expected), nil)
	logger.Log.Warn().
		Err(err).
		Uint64("seq", req.Seq).
		Str("track_id", req.TrackID).
		Msg("Prefetch discarded")
}

func (b *Buffer) fail(req *Request, err error) {
	b.mu.Lock()
	_, ok := b.entries[req.Seq]
	delete(b.entries, req.Seq)
	live := len(b.entries)
	b.mu.Unlock()

	if !ok {
		return
	}
	metrics.PrefetchEntries.Set(float64(live))
	metrics.PrefetchFailures.Inc()
	logger.Log.Warn().
		Err(err).
		Uint64("seq", req.Seq).
		Str("track_id", req.TrackID).
		Msg("Prefetch failed")
}
