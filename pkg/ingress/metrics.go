package ingress

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openhqm_submissions_total",
		Help: "Total requests accepted on /api/v1/submit, by outcome.",
	}, []string{"outcome"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "openhqm_queue_depth",
		Help: "Approximate depth of a named queue, sampled on /metrics scrape.",
	}, []string{"queue"})
)

func (s *Server) handleMetrics(c echo.Context) error {
	ctx := c.Request().Context()
	if depth, err := s.queue.GetQueueDepth(ctx, s.cfg.RequestQueue); err == nil {
		queueDepth.WithLabelValues(s.cfg.RequestQueue).Set(float64(depth))
	}

	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
