package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/airwave/internal/radio"
)

// databasePinger defines what HealthHandler needs from the database
type databasePinger interface {
	Health(ctx context.Context) error
}

// stationReporter defines what HealthHandler needs from the station
type stationReporter interface {
	Status() radio.Status
}

// HealthResponse represents the response from the health check endpoint
type HealthResponse struct {
	Status   string                 `json:"status"`
	Database string                 `json:"database"`
	Station  string                 `json:"station"`
	Time     string                 `json:"time"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// HealthHandler handles health and status requests
type HealthHandler struct {
	db      databasePinger
	station stationReporter
}

// NewHealthHandler creates a new health check handler
func NewHealthHandler(database databasePinger, station stationReporter) *HealthHandler {
	return &HealthHandler{db: database, station: station}
}

// Check handles GET /api/health
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:   "ok",
		Database: "healthy",
		Station:  "running",
		Time:     time.Now().UTC().Format(time.RFC3339),
		Details:  make(map[string]interface{}),
	}

	if err := h.db.Health(ctx); err != nil {
		response.Status = "degraded"
		response.Database = "unhealthy"
		response.Details["database_error"] = err.Error()
	}

	status := h.station.Status()
	if !status.Running {
		response.Status = "degraded"
		response.Station = "stopped"
	}
	if status.CatalogSize == 0 {
		response.Details["catalog"] = "empty"
	}

	if response.Status != "ok" {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Status handles GET /api/status
func (h *HealthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.station.Status())
}

// SetupHealthRoutes registers health and status routes
func SetupHealthRoutes(apiGroup *gin.RouterGroup, database databasePinger, station stationReporter) {
	handler := NewHealthHandler(database, station)
	apiGroup.GET("/health", handler.Check)
	apiGroup.GET("/status", handler.Status)
}
