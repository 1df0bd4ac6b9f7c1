package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/airwave/internal/config"
	"github.com/stwalsh4118/airwave/internal/db"
	"github.com/stwalsh4118/airwave/internal/faults"
	"github.com/stwalsh4118/airwave/internal/radio"
)

const audioSize = 150_000

// newFakeSubsonic serves a three song library and its audio
func newFakeSubsonic(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/ping.view", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"subsonic-response":{"status":"ok","version":"1.16.1"}}`)
	})
	mux.HandleFunc("/rest/search3.view", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"subsonic-response":{"status":"ok","version":"1.16.1","searchResult3":{"song":[
			{"id":"s1","title":"One","artist":"A","album":"X","duration":120},
			{"id":"s2","title":"Two","artist":"B","album":"Y","duration":120},
			{"id":"s3","title":"Three","artist":"C","album":"Z","duration":120}]}}}`)
	})
	mux.HandleFunc("/rest/stream.view", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(audioSize))
		_, _ = w.Write([]byte(strings.Repeat("a", audioSize)))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<html></html>"), 0644))

	return &config.Config{
		Server: config.ServerConfig{
			Host:        "127.0.0.1",
			Port:        0,
			ReadTimeout: 5 * time.Second,
			StaticDir:   static,
		},
		Database: config.DatabaseConfig{
			Path:              filepath.Join(t.TempDir(), "airwave.db"),
			ConnectionTimeout: time.Second,
		},
		Logging: config.LoggingConfig{Level: "info"},
		Provider: config.ProviderConfig{
			BaseURL:        baseURL,
			Username:       "dj",
			Password:       "secret",
			ClientName:     "airwave",
			APIVersion:     "1.16.1",
			PageSize:       500,
			ResolveRetries: 2,
			RequestTimeout: 2 * time.Second,
			BreakerFails:   5,
			BreakerReset:   time.Minute,
		},
		Radio: config.RadioConfig{
			MaxQueue:        3,
			MaxPrefetch:     5,
			DefaultRank:     256,
			FrameSize:       16 * 1024,
			WaitDelay:       5 * time.Millisecond,
			TickInterval:    10 * time.Millisecond,
			FlushInterval:   10 * time.Millisecond,
			PersistInterval: time.Hour,
			RefreshInterval: time.Hour,
		},
	}
}

func setupTestDB(t *testing.T, cfg *config.Config) *db.DB {
	t.Helper()
	database, err := db.New(cfg.Database.Path, db.Options{ConnectionTimeout: cfg.Database.ConnectionTimeout})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	sqlDB, err := database.GetSQLDB()
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(sqlDB))
	return database
}

func TestNew_RejectsInvalidProviderURL(t *testing.T) {
	cfg := testConfig(t, "not a url")

	_, err := New(cfg, setupTestDB(t, cfg))

	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindConfig))
}

func TestServer_RoutesBeforeStart(t *testing.T) {
	cfg := testConfig(t, "http://music.local")
	s, err := New(cfg, setupTestDB(t, cfg))
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	tests := []struct {
		path string
		want int
	}{
		{path: "/get?name=s1", want: http.StatusNoContent},
		{path: "/api/status", want: http.StatusOK},
		{path: "/api/health", want: http.StatusServiceUnavailable},
		{path: "/metrics", want: http.StatusOK},
		{path: "/", want: http.StatusFound},
		{path: "/index.html", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := client.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestServer_EndToEnd(t *testing.T) {
	provider := newFakeSubsonic(t)
	cfg := testConfig(t, provider.URL)
	database := setupTestDB(t, cfg)
	s, err := New(cfg, database)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	require.NoError(t, s.station.Start(context.Background()))

	var status radio.Status
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/api/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return false
		}
		return status.NowPlaying != nil
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, status.CatalogSize)
	assert.Equal(t, "closed", status.ProviderBreaker)

	trackID := status.NowPlaying.ID
	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/get?name=" + trackID)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		body, err = io.ReadAll(resp.Body)
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)
	assert.Len(t, body, audioSize)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first map[string]any
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "version", first["key"])

	require.NoError(t, conn.WriteJSON(map[string]any{"key": "score", "value": 3}))
	require.Eventually(t, func() bool {
		return s.station.Selector().Rank(trackID) == 3
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	saved, err := s.repos.Ranks.GetByTrackID(context.Background(), trackID)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Rank)
}
