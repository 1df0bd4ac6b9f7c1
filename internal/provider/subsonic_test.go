package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "sesame"

// newSubsonicServer fakes the handful of Subsonic endpoints the catalog uses.
// It serves totalSongs songs through search3 and checks the auth token.
func newSubsonicServer(t *testing.T, totalSongs int) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")

		if q.Get("t") != tokenFor(testPassword, q.Get("s")) {
			_, _ = fmt.Fprint(w, `{"subsonic-response":{"status":"failed","error":{"code":40,"message":"Wrong username or password"}}}`)
			return
		}

		switch r.URL.Path {
		case "/rest/ping.view":
			_, _ = fmt.Fprint(w, `{"subsonic-response":{"status":"ok","version":"1.16.1"}}`)
		case "/rest/search3.view":
			size, _ := strconv.Atoi(q.Get("songCount"))
			offset, _ := strconv.Atoi(q.Get("songOffset"))
			var songs []string
			for i := offset; i < offset+size && i < totalSongs; i++ {
				songs = append(songs, fmt.Sprintf(
					`{"id":"s%d","title":"Song %d","artist":"Artist","album":"Album","duration":180,"coverArt":"al-%d","comment":"c%d"}`,
					i, i, i, i))
			}
			_, _ = fmt.Fprintf(w, `{"subsonic-response":{"status":"ok","searchResult3":{"song":[%s]}}}`, strings.Join(songs, ","))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestSubsonic(t *testing.T, baseURL string, pageSize int) *Subsonic {
	t.Helper()
	s, err := NewSubsonic(SubsonicConfig{
		BaseURL:    baseURL,
		ClientName: "airwave-test",
		APIVersion: "1.16.1",
		PageSize:   pageSize,
	})
	require.NoError(t, err)
	return s
}

func TestNewSubsonic_RejectsBadURL(t *testing.T) {
	_, err := NewSubsonic(SubsonicConfig{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestSubsonic_Login(t *testing.T) {
	server := newSubsonicServer(t, 0)
	defer server.Close()
	s := newTestSubsonic(t, server.URL, 10)

	session, err := s.Login(context.Background(), Credentials{Username: "dj", Password: testPassword})

	require.NoError(t, err)
	assert.True(t, session.Valid())
	assert.Equal(t, "dj", session.Username)
	assert.Equal(t, tokenFor(testPassword, session.Salt), session.Token)
}

func TestSubsonic_LoginWrongPassword(t *testing.T) {
	server := newSubsonicServer(t, 0)
	defer server.Close()
	s := newTestSubsonic(t, server.URL, 10)

	_, err := s.Login(context.Background(), Credentials{Username: "dj", Password: "wrong"})

	assert.ErrorIs(t, err, ErrAuth)
}

func TestSubsonic_ListTracksPages(t *testing.T) {
	server := newSubsonicServer(t, 7)
	defer server.Close()
	s := newTestSubsonic(t, server.URL, 3)

	session, err := s.Login(context.Background(), Credentials{Username: "dj", Password: testPassword})
	require.NoError(t, err)

	tracks, err := s.ListTracks(context.Background(), session)
	require.NoError(t, err)
	require.Len(t, tracks, 7)

	first := tracks[0]
	assert.Equal(t, "s0", first.ID)
	assert.Equal(t, "Song 0", first.Title)
	assert.Equal(t, int64(180000), first.DurationMillis)
	assert.Equal(t, "c0", first.Comment)
	assert.Contains(t, first.ArtworkURL, "/rest/getCoverArt.view")
	assert.Contains(t, first.ArtworkURL, "id=al-0")
	assert.Equal(t, "s6", tracks[6].ID)
}

func TestSubsonic_ListTracksRequiresSession(t *testing.T) {
	s := newTestSubsonic(t, "http://localhost:1", 3)

	_, err := s.ListTracks(context.Background(), Session{})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestSubsonic_ResolveStreamURL(t *testing.T) {
	s := newTestSubsonic(t, "http://music.local/base/", 3)
	session := Session{Username: "dj", Token: "abc", Salt: "123"}

	raw, err := s.ResolveStreamURL(context.Background(), session, "s42")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/base/rest/stream.view", u.Path)
	assert.Equal(t, "s42", u.Query().Get("id"))
	assert.Equal(t, "dj", u.Query().Get("u"))
	assert.Equal(t, "abc", u.Query().Get("t"))
	assert.Equal(t, "123", u.Query().Get("s"))
	assert.Equal(t, "airwave-test", u.Query().Get("c"))

	_, err = s.ResolveStreamURL(context.Background(), Session{}, "s42")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestSubsonic_HTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()
	s := newTestSubsonic(t, server.URL, 3)

	_, err := s.Login(context.Background(), Credentials{Username: "dj", Password: testPassword})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.False(t, IsAuthError(err))
}
