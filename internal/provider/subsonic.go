package provider

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stwalsh4118/airwave/internal/models"
)

const subsonicStatusOK = "ok"

// SubsonicConfig configures a Subsonic-compatible catalog (Navidrome, Airsonic, ...)
type SubsonicConfig struct {
	BaseURL    string
	ClientName string
	APIVersion string
	PageSize   int
	Timeout    time.Duration
}

// Subsonic implements Catalog against the Subsonic REST API using salted
// token authentication.
type Subsonic struct {
	baseURL    *url.URL
	clientName string
	apiVersion string
	pageSize   int
	httpClient *http.Client
	newSalt    func() (string, error)
}

type subsonicEnvelope struct {
	Response struct {
		Status  string `json:"status"`
		Version string `json:"version"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error,omitempty"`
		SearchResult3 *struct {
			Song []subsonicSong `json:"song"`
		} `json:"searchResult3,omitempty"`
	} `json:"subsonic-response"`
}

type subsonicSong struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	Duration int64  `json:"duration"` // seconds
	CoverArt string `json:"coverArt"`
	Comment  string `json:"comment"`
}

// NewSubsonic creates a Subsonic catalog rooted at cfg.BaseURL
func NewSubsonic(cfg SubsonicConfig) (*Subsonic, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid subsonic base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid subsonic base url: %q", cfg.BaseURL)
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Subsonic{
		baseURL:    base,
		clientName: cfg.ClientName,
		apiVersion: cfg.APIVersion,
		pageSize:   cfg.PageSize,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		newSalt:    randomSalt,
	}, nil
}

// Login verifies the credentials with a ping and returns a token session
func (s *Subsonic) Login(ctx context.Context, creds Credentials) (Session, error) {
	salt, err := s.newSalt()
	if err != nil {
		return Session{}, fmt.Errorf("failed to generate salt: %w", err)
	}

	session := Session{
		Username: creds.Username,
		Token:    tokenFor(creds.Password, salt),
		Salt:     salt,
	}

	if _, err := s.call(ctx, session, "ping", nil); err != nil {
		return Session{}, err
	}
	return session, nil
}

// ListTracks pages through search3 with an empty query, which returns the whole library
func (s *Subsonic) ListTracks(ctx context.Context, session Session) ([]models.Track, error) {
	if !session.Valid() {
		return nil, ErrNotLoggedIn
	}

	var tracks []models.Track
	for offset := 0; ; offset += s.pageSize {
		params := url.Values{}
		params.Set("query", "")
		params.Set("artistCount", "0")
		params.Set("albumCount", "0")
		params.Set("songCount", fmt.Sprint(s.pageSize))
		params.Set("songOffset", fmt.Sprint(offset))

		env, err := s.call(ctx, session, "search3", params)
		if err != nil {
			return nil, err
		}

		var songs []subsonicSong
		if env.Response.SearchResult3 != nil {
			songs = env.Response.SearchResult3.Song
		}
		for _, song := range songs {
			tracks = append(tracks, s.toTrack(session, song))
		}
		if len(songs) < s.pageSize {
			return tracks, nil
		}
	}
}

// ResolveStreamURL builds an authenticated stream URL for the track
func (s *Subsonic) ResolveStreamURL(_ context.Context, session Session, trackID string) (string, error) {
	if !session.Valid() {
		return "", ErrNotLoggedIn
	}
	if trackID == "" {
		return "", fmt.Errorf("empty track id")
	}

	params := url.Values{}
	params.Set("id", trackID)
	params.Set("format", "mp3")
	return s.endpoint(session, "stream", params), nil
}

func (s *Subsonic) toTrack(session Session, song subsonicSong) models.Track {
	track := models.Track{
		ID:             song.ID,
		Title:          song.Title,
		Artist:         song.Artist,
		Album:          song.Album,
		DurationMillis: song.Duration * 1000,
		Comment:        song.Comment,
	}
	if song.CoverArt != "" {
		params := url.Values{}
		params.Set("id", song.CoverArt)
		track.ArtworkURL = s.endpoint(session, "getCoverArt", params)
	}
	return track
}

// endpoint builds the full URL for a Subsonic method including auth parameters
func (s *Subsonic) endpoint(session Session, method string, params url.Values) string {
	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("u", session.Username)
	q.Set("t", session.Token)
	q.Set("s", session.Salt)
	q.Set("v", s.apiVersion)
	q.Set("c", s.clientName)
	q.Set("f", "json")

	u := *s.baseURL
	u.Path = u.Path + "/rest/" + method + ".view"
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Subsonic) call(ctx context.Context, session Session, method string, params url.Values) (*subsonicEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(session, method, params), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned HTTP %d", method, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var env subsonicEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	if env.Response.Status != subsonicStatusOK {
		if env.Response.Error != nil {
			// 40: wrong username or password, 41: token auth not supported
			if env.Response.Error.Code == 40 || env.Response.Error.Code == 41 {
				return nil, fmt.Errorf("%w: %s", ErrAuth, env.Response.Error.Message)
			}
			return nil, fmt.Errorf("%s failed (code %d): %s", method, env.Response.Error.Code, env.Response.Error.Message)
		}
		return nil, fmt.Errorf("%s failed with status %q", method, env.Response.Status)
	}

	return &env, nil
}

// tokenFor computes the Subsonic auth token md5(password + salt)
func tokenFor(password, salt string) string {
	sum := md5.Sum([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

func randomSalt() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
