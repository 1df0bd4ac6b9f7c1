package prefetch

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/airwave/internal/faults"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func audio(n int) []byte {
	return bytes.Repeat([]byte{0xAB}, n)
}

func serveBytes(body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}
}

func TestBuffer_ReadUnknown(t *testing.T) {
	b := New(DefaultMaxEntries)
	defer b.Close()

	data, total := b.Read("missing")
	assert.Nil(t, data)
	assert.Zero(t, total)
}

func TestBuffer_CompletesDownload(t *testing.T) {
	body := audio(200_000)
	srv := httptest.NewServer(serveBytes(body))
	defer srv.Close()

	b := New(DefaultMaxEntries)
	defer b.Close()

	req := b.Begin("track-1", srv.URL)
	assert.Equal(t, uint64(1), req.Seq)
	assert.Equal(t, "track-1", req.TrackID)

	require.Eventually(t, func() bool {
		data, total := b.Read("track-1")
		return total == int64(len(body)) && len(data) == len(body)
	}, waitFor, tick)

	data, _ := b.Read("track-1")
	assert.Equal(t, body, data)
	assert.Equal(t, 1, b.Len())
}

func TestBuffer_SequenceIsMonotonic(t *testing.T) {
	b := New(DefaultMaxEntries)
	defer b.Close()

	first := b.Begin("a", "")
	second := b.Begin("b", "")
	assert.Greater(t, second.Seq, first.Seq)
}

func TestBuffer_EvictsOldestBeyondBound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	b := New(3)
	defer b.Close()

	for i := 1; i <= 5; i++ {
		b.Begin(fmt.Sprintf("t%d", i), srv.URL)
		assert.LessOrEqual(t, b.Len(), 3)
	}

	assert.Equal(t, 3, b.Len())
	require.Eventually(t, func() bool {
		_, total := b.Read("t5")
		return total == 1000
	}, waitFor, tick)

	for _, id := range []string{"t1", "t2"} {
		data, total := b.Read(id)
		assert.Nil(t, data, id)
		assert.Zero(t, total, id)
	}
}

func TestBuffer_ReadReturnsOldestEntryForTrack(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/first", serveBytes([]byte("first")))
	mux.Handle("/second", serveBytes([]byte("second!")))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := New(DefaultMaxEntries)
	defer b.Close()

	b.Begin("same", srv.URL+"/first")
	b.Begin("same", srv.URL+"/second")

	require.Eventually(t, func() bool {
		data, total := b.Read("same")
		return total == 5 && len(data) == 5
	}, waitFor, tick)

	data, _ := b.Read("same")
	assert.Equal(t, "first", string(data))
}

func TestBuffer_GrowsWhileDownloading(t *testing.T) {
	release := make(chan struct{})
	half := audio(50_000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(2*len(half)))
		_, _ = w.Write(half)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write(half)
	}))
	defer srv.Close()

	b := New(DefaultMaxEntries)
	defer b.Close()

	b.Begin("growing", srv.URL)

	require.Eventually(t, func() bool {
		data, total := b.Read("growing")
		return total == int64(2*len(half)) && len(data) == len(half)
	}, waitFor, tick)

	prefix, _ := b.Read("growing")
	close(release)

	require.Eventually(t, func() bool {
		data, _ := b.Read("growing")
		return len(data) == 2*len(half)
	}, waitFor, tick)

	assert.Len(t, prefix, len(half), "an earlier read is not affected by later chunks")
}

func TestBuffer_UnknownLengthIsDiscarded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("more"))
	}))
	defer srv.Close()

	b := New(DefaultMaxEntries)
	defer b.Close()

	b.Begin("chunked", srv.URL)

	require.Eventually(t, func() bool { return b.Len() == 0 }, waitFor, tick)
	data, total := b.Read("chunked")
	assert.Nil(t, data)
	assert.Zero(t, total)
}

func TestBuffer_ShortBodyIsDiscarded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write(audio(40))
	}))
	defer srv.Close()

	b := New(DefaultMaxEntries)
	defer b.Close()

	b.Begin("short", srv.URL)

	require.Eventually(t, func() bool { return b.Len() == 0 }, waitFor, tick)
}

func TestBuffer_FailedTransfersAreDiscarded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	tests := []struct {
		name string
		url  string
	}{
		{name: "error status", url: srv.URL},
		{name: "empty url", url: ""},
		{name: "malformed url", url: "://nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(DefaultMaxEntries)
			defer b.Close()

			b.Begin("x", tt.url)
			require.Eventually(t, func() bool { return b.Len() == 0 }, waitFor, tick)
		})
	}
}

func TestBuffer_CallbacksForEvictedEntryAreObsolete(t *testing.T) {
	b := New(1)
	defer b.Close()

	stale := &Request{Seq: 42, TrackID: "gone"}

	err := b.onHeaders(stale, 10)
	assert.ErrorIs(t, err, faults.ErrObsoleteRequest)

	err = b.onChunk(stale, []byte("late"))
	assert.ErrorIs(t, err, faults.ErrObsoleteRequest)
	assert.Zero(t, b.Len(), "obsolete data never creates an entry")

	b.onComplete(stale)
	assert.Zero(t, b.Len())
}

func TestBuffer_EvictedDownloadStopsWriting(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "20")
		_, _ = w.Write(audio(10))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write(audio(10))
	}))
	defer srv.Close()

	b := New(1)
	defer b.Close()

	b.Begin("old", srv.URL)
	require.Eventually(t, func() bool {
		data, _ := b.Read("old")
		return len(data) == 10
	}, waitFor, tick)

	b.Begin("new", "")
	close(release)

	assert.Never(t, func() bool {
		data, _ := b.Read("old")
		return data != nil
	}, 100*time.Millisecond, tick)
}
