package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stwalsh4118/airwave/internal/faults"
	"github.com/stwalsh4118/airwave/internal/logger"
	"github.com/stwalsh4118/airwave/internal/metrics"
	"github.com/stwalsh4118/airwave/internal/models"
)

// ClientOptions tunes the retry and breaker policy of a Client
type ClientOptions struct {
	// MaxRetries is how many times a failed resolution is retried after re-login
	MaxRetries       int
	BreakerThreshold int
	BreakerReset     time.Duration
}

// Client owns the provider session and re-authenticates when calls fail.
// It is safe for concurrent use.
type Client struct {
	catalog    Catalog
	creds      Credentials
	maxRetries int
	breaker    *Breaker

	mu      sync.RWMutex
	session Session
}

// NewClient wraps catalog with session management
func NewClient(catalog Catalog, creds Credentials, opts ClientOptions) *Client {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Client{
		catalog:    catalog,
		creds:      creds,
		maxRetries: opts.MaxRetries,
		breaker:    NewBreaker(opts.BreakerThreshold, opts.BreakerReset),
	}
}

// Login authenticates and stores the new session
func (c *Client) Login(ctx context.Context) error {
	session, err := c.catalog.Login(ctx, c.creds)
	if err != nil {
		return wrapProvider("login failed", err)
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	logger.Log.Info().
		Str("username", c.creds.Username).
		Msg("Logged in to provider")
	return nil
}

// LoggedIn reports whether a session is held
func (c *Client) LoggedIn() bool {
	return c.currentSession().Valid()
}

// Breaker exposes the resolution circuit breaker for status reporting
func (c *Client) Breaker() *Breaker {
	return c.breaker
}

// Tracks lists the full catalog, logging in first if no session is held
func (c *Client) Tracks(ctx context.Context) ([]models.Track, error) {
	if !c.LoggedIn() {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	tracks, err := c.catalog.ListTracks(ctx, c.currentSession())
	if err != nil {
		return nil, wrapProvider("listing tracks failed", err)
	}
	return tracks, nil
}

// ResolveStreamURL returns a playable URL for trackID. Each failure triggers a
// re-login before the next attempt, up to MaxRetries retries. Exhausting the
// retries returns a provider fault and opens the breaker after repeated
// exhaustion so later calls fail fast.
func (c *Client) ResolveStreamURL(ctx context.Context, trackID string) (string, error) {
	if !c.breaker.Allow() {
		return "", faults.New(faults.KindProvider, "stream url lookup skipped", ErrCircuitOpen)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", wrapProvider("stream url lookup cancelled", err)
		}

		session := c.currentSession()
		if session.Valid() {
			url, err := c.catalog.ResolveStreamURL(ctx, session, trackID)
			if err == nil {
				c.breaker.Success()
				return url, nil
			}
			lastErr = err
		} else {
			lastErr = ErrNotLoggedIn
		}

		logger.Log.Warn().
			Err(lastErr).
			Str("track_id", trackID).
			Int("attempt", attempt+1).
			Int("max_attempts", c.maxRetries+1).
			Msg("Stream url lookup failed")

		if attempt < c.maxRetries {
			if err := c.Login(ctx); err != nil {
				lastErr = err
			}
		}
	}

	c.breaker.Failure()
	metrics.ProviderFailures.Inc()
	return "", faults.New(faults.KindProvider,
		fmt.Sprintf("stream url for %s unavailable after %d attempts", trackID, c.maxRetries+1), lastErr)
}

func (c *Client) currentSession() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}
