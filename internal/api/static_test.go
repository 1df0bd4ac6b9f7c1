package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStaticTestRouter(t *testing.T, withIndex bool) *gin.Engine {
	t.Helper()
	dir := t.TempDir()
	if withIndex {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>radio</html>"), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log('hi')"), 0644))

	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupStaticRoutes(router, dir)
	return router
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestStaticHandler_RootRedirects(t *testing.T) {
	router := setupStaticTestRouter(t, true)

	w := serve(router, http.MethodGet, "/")

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/index.html", w.Header().Get("Location"))
}

func TestStaticHandler_Index(t *testing.T) {
	router := setupStaticTestRouter(t, true)

	w := serve(router, http.MethodGet, "/index.html")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<html>radio</html>", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
}

func TestStaticHandler_MissingIndex(t *testing.T) {
	router := setupStaticTestRouter(t, false)

	w := serve(router, http.MethodGet, "/index.html")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStaticHandler_Assets(t *testing.T) {
	router := setupStaticTestRouter(t, true)

	w := serve(router, http.MethodGet, "/app.js")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "console.log('hi')", w.Body.String())

	w = serve(router, http.MethodGet, "/nope.css")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(router, http.MethodPost, "/app.js")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
