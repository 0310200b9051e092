package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/libmanage/internal/storage"
)

type HealthResponse struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping() error
}

type HealthController struct {
	db      Pinger
	files   storage.Storage
	version string
}

func NewHealthController(db Pinger, files storage.Storage, version string) *HealthController {
	return &HealthController{db: db, files: files, version: version}
}

// Status reports 503 when the database is unreachable. A missing
// placeholder image is reported but does not make the service unhealthy.
func (h *HealthController) Status(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"

	if h.db == nil {
		checks["database"] = "not configured"
	} else if err := h.db.Ping(); err != nil {
		checks["database"] = "error: " + err.Error()
		status = "unhealthy"
	} else {
		checks["database"] = "ok"
	}

	switch {
	case h.files == nil:
		checks["uploads"] = "not configured"
	case !h.files.Exists(storage.PlaceholderCover):
		checks["uploads"] = "placeholder images missing"
	default:
		checks["uploads"] = "ok"
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.IndentedJSON(statusCode, HealthResponse{
		Status:  status,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Version: h.version,
		Checks:  checks,
	})
}
