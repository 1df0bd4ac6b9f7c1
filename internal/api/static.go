package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/airwave/internal/logger"
)

// StaticHandler serves the bundled web client
type StaticHandler struct {
	dir   string
	files http.Handler
}

// NewStaticHandler creates a handler serving files from dir
func NewStaticHandler(dir string) *StaticHandler {
	return &StaticHandler{
		dir:   dir,
		files: http.FileServer(http.Dir(dir)),
	}
}

// Root handles GET / by redirecting to the client page
func (h *StaticHandler) Root(c *gin.Context) {
	c.Redirect(http.StatusFound, "/index.html")
}

// Index handles GET /index.html. http.FileServer would redirect this path
// back to /, so the file is served directly.
func (h *StaticHandler) Index(c *gin.Context) {
	path := filepath.Join(h.dir, "index.html")
	f, err := os.Open(path)
	if err != nil {
		logger.Log.Warn().Err(err).Str("path", path).Msg("Web client not found")
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Web client is not installed",
		})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to read web client",
		})
		return
	}
	http.ServeContent(c.Writer, c.Request, "index.html", info.ModTime(), f)
}

// Files serves any other static asset; used as the router's fallback
func (h *StaticHandler) Files(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found"})
		return
	}
	h.files.ServeHTTP(c.Writer, c.Request)
}

// SetupStaticRoutes registers the web client routes on router
func SetupStaticRoutes(router *gin.Engine, dir string) {
	handler := NewStaticHandler(dir)
	router.GET("/", handler.Root)
	router.GET("/index.html", handler.Index)
	router.NoRoute(handler.Files)
}
