package api

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/airwave/internal/logger"
	"github.com/stwalsh4118/airwave/internal/metrics"
)

const (
	// DefaultFrameSize is the most bytes written per step of a response
	DefaultFrameSize = 64 * 1024
	// DefaultWaitDelay is how long a response waits for more data
	DefaultWaitDelay = 50 * time.Millisecond
)

// rangePattern accepts only the open ended form "bytes=N-"
var rangePattern = regexp.MustCompile(`^bytes=(\d+)-$`)

// bufferReader defines what StreamHandler needs from the prefetch buffer
type bufferReader interface {
	Read(trackID string) ([]byte, int64)
}

// StreamHandler serves prefetched audio while it is still downloading
type StreamHandler struct {
	buffer    bufferReader
	frameSize int64
	waitDelay time.Duration
}

// NewStreamHandler creates a new stream handler instance
func NewStreamHandler(buffer bufferReader, frameSize int, waitDelay time.Duration) *StreamHandler {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	if waitDelay <= 0 {
		waitDelay = DefaultWaitDelay
	}
	return &StreamHandler{
		buffer:    buffer,
		frameSize: int64(frameSize),
		waitDelay: waitDelay,
	}
}

// Get handles GET /get?name=<track id>
func (h *StreamHandler) Get(c *gin.Context) {
	trackID := c.Query("name")

	_, total := h.buffer.Read(trackID)
	if total == 0 {
		metrics.StreamResponses.WithLabelValues(strconv.Itoa(http.StatusNoContent)).Inc()
		c.Status(http.StatusNoContent)
		return
	}

	header := c.Writer.Header()
	status := http.StatusOK
	var offset int64

	if m := rangePattern.FindStringSubmatch(c.GetHeader("Range")); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || n >= total {
			logger.Log.Debug().
				Str("track_id", trackID).
				Str("range", c.GetHeader("Range")).
				Int64("total", total).
				Msg("Unsatisfiable range")
			metrics.StreamResponses.WithLabelValues(strconv.Itoa(http.StatusRequestedRangeNotSatisfiable)).Inc()
			header.Set("Content-Range", fmt.Sprintf("bytes */%d", total))
			c.Status(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		offset = n
		status = http.StatusPartialContent
		header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, total-1, total))
	}

	header.Set("Content-Type", "audio/mpeg")
	header.Set("Accept-Ranges", "bytes")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Length", strconv.FormatInt(total-offset, 10))
	c.Status(status)
	c.Writer.WriteHeaderNow()
	metrics.StreamResponses.WithLabelValues(strconv.Itoa(status)).Inc()

	logger.Log.Debug().
		Str("track_id", trackID).
		Int("status", status).
		Int64("offset", offset).
		Int64("total", total).
		Str("client_ip", c.ClientIP()).
		Msg("Streaming track")

	written := h.stream(c.Request.Context(), c.Writer, trackID, offset, total)
	metrics.StreamBytes.Add(float64(written - offset))

	if written < total {
		logger.Log.Debug().
			Str("track_id", trackID).
			Int64("written", written).
			Int64("total", total).
			Msg("Stream ended early")
	}
}

// stream writes frames from offset until total bytes have been sent, waiting
// for the download to catch up when needed. It returns the final position.
// The buffer is re-read on every step; an entry that disappears ends the
// response.
func (h *StreamHandler) stream(ctx context.Context, w gin.ResponseWriter, trackID string, offset, total int64) int64 {
	written := offset
	for written < total {
		if ctx.Err() != nil {
			return written
		}
		data, current := h.buffer.Read(trackID)
		if current != total {
			return written
		}

		end := min(written+h.frameSize, total)
		if int64(len(data)) < end {
			if !wait(ctx, h.waitDelay) {
				return written
			}
			continue
		}

		if _, err := w.Write(data[written:end]); err != nil {
			return written
		}
		w.Flush()
		written = end
	}
	return written
}

// wait sleeps for d unless ctx ends first
func wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// SetupStreamRoutes registers the audio stream route
func SetupStreamRoutes(router gin.IRoutes, buffer bufferReader, frameSize int, waitDelay time.Duration) {
	handler := NewStreamHandler(buffer, frameSize, waitDelay)
	router.GET("/get", handler.Get)
}
