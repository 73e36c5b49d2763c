package ingress

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apperrors "github.com/openhqm/openhqm/pkg/errors"
)

// HealthResponse is the GET /api/v1/health body, with per-component detail
// the distilled spec names but leaves unshaped.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Components map[string]interface{} `json:"components"`
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()

	queueHealthy := s.queue.Healthy(ctx)

	// A NotFound error proves the store round-tripped the read; any other
	// error means the backend itself is unreachable.
	storeHealthy := true
	var probe string
	if err := s.store.Get(ctx, "health:probe", &probe); err != nil {
		var appErr *apperrors.AppError
		if !apperrors.As(err, &appErr) || appErr.Code != apperrors.CodeNotFound {
			storeHealthy = false
		}
	}

	components := map[string]interface{}{
		"queue": map[string]interface{}{
			"healthy": queueHealthy,
		},
		"state_store": map[string]interface{}{
			"healthy": storeHealthy,
		},
	}

	if s.partition != nil {
		components["partition"] = s.partition.Stats()
	}

	status := "ok"
	if !queueHealthy || !storeHealthy {
		status = "degraded"
	}

	return c.JSON(http.StatusOK, HealthResponse{
		Status:     status,
		Version:    s.cfg.Version,
		Timestamp:  time.Now().UTC(),
		Uptime:     time.Since(s.startedAt).String(),
		Components: components,
	})
}
