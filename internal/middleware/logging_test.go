package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stwalsh4118/airwave/internal/logger"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	previous := logger.Log
	logger.InitWithWriter(&buf, "debug", false)
	t.Cleanup(func() {
		logger.Log = previous
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})
	return &buf
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLogger("/metrics"))
	router.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	router.GET("/broken", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	router.GET("/metrics", func(c *gin.Context) { c.String(http.StatusOK, "# metrics") })
	return router
}

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		path      string
		wantLevel string
		wantLog   bool
	}{
		{path: "/ok", wantLevel: `"level":"info"`, wantLog: true},
		{path: "/missing", wantLevel: `"level":"warn"`, wantLog: true},
		{path: "/broken", wantLevel: `"level":"error"`, wantLog: true},
		{path: "/metrics", wantLog: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			buf := captureLogs(t)
			router := setupRouter()

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path+"?name=x", nil))

			if !tt.wantLog {
				assert.Empty(t, buf.String())
				return
			}
			out := buf.String()
			assert.Contains(t, out, tt.wantLevel)
			assert.Contains(t, out, `"path":"`+tt.path+`"`)
			assert.Contains(t, out, `"query":"name=x"`)
			assert.Contains(t, out, `"message":"HTTP request"`)
		})
	}
}
