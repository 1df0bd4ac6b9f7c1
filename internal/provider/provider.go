// Package provider is the boundary to the remote catalog and stream host.
// The station only ever talks to it through Catalog, wrapped by Client which
// owns the session and the re-authentication policy.
package provider

import (
	"context"
	"errors"

	"github.com/stwalsh4118/airwave/internal/faults"
	"github.com/stwalsh4118/airwave/internal/models"
)

// Credentials identify the station to the provider
type Credentials struct {
	Username string
	Password string
}

// Session is an authenticated handle returned by Login. Its contents are
// provider specific.
type Session struct {
	Username string
	Token    string
	Salt     string
}

// Valid reports whether the session came from a successful login
func (s Session) Valid() bool {
	return s.Token != ""
}

// Catalog is the narrow interface the station needs from a provider
type Catalog interface {
	Login(ctx context.Context, creds Credentials) (Session, error)
	ListTracks(ctx context.Context, session Session) ([]models.Track, error)
	ResolveStreamURL(ctx context.Context, session Session, trackID string) (string, error)
}

// Provider errors
var (
	// ErrAuth indicates the provider rejected the credentials
	ErrAuth = errors.New("provider authentication failed")
	// ErrNotLoggedIn indicates a call was made without a valid session
	ErrNotLoggedIn = errors.New("not logged in to provider")
)

// wrapProvider classifies err as a provider fault unless it already is one
func wrapProvider(message string, err error) error {
	if err == nil || faults.IsKind(err, faults.KindProvider) {
		return err
	}
	return faults.New(faults.KindProvider, message, err)
}

// IsAuthError checks if the error is an authentication failure
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}
