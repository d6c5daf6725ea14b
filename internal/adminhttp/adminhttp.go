// Package adminhttp exposes a read-only HTTP status and metrics
// surface for the manager, bound to an optional admin address. It can
// never mutate registry, queue, or dispatcher state — every route is
// a GET over data those packages already own.
package adminhttp

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haldring/syncd/internal/history"
	"github.com/haldring/syncd/internal/queue"
	"github.com/haldring/syncd/internal/registry"
)

// Metrics holds the Prometheus collectors the worker pool and
// registry feed. It is its own type (rather than package-level
// globals) so more than one manager instance can run in-process
// (tests, multi-tenant hosting) without colliding on a shared default
// registry.
type Metrics struct {
	registry  *prometheus.Registry
	jobsTotal *prometheus.CounterVec
}

// NewMetrics returns a Metrics bound to a fresh Prometheus registry
// and registers the gauge functions that read live depth/count state
// from reg and q.
func NewMetrics(reg *registry.Registry, q *queue.Queue, workerCount int) *Metrics {
	promReg := prometheus.NewRegistry()

	jobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "syncd_jobs_total",
		Help: "Total transfer jobs completed, by result.",
	}, []string{"result"})

	queueDepth := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "syncd_queue_depth",
		Help: "Current number of jobs resident in the bounded queue.",
	}, func() float64 { return float64(q.Len()) })

	activeWorkers := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "syncd_active_workers",
		Help: "Configured worker pool size.",
	}, func() float64 { return float64(workerCount) })

	registryPairs := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "syncd_registry_pairs",
		Help: "Current number of sync pairs known to the registry (active and deactivated).",
	}, func() float64 { return float64(reg.Count()) })

	promReg.MustRegister(jobsTotal, queueDepth, activeWorkers, registryPairs)

	return &Metrics{registry: promReg, jobsTotal: jobsTotal}
}

// RecordJob implements internal/pool.MetricsRecorder.
func (m *Metrics) RecordJob(result string) {
	m.jobsTotal.WithLabelValues(result).Inc()
}

// Server is the gin-backed admin HTTP surface.
type Server struct {
	engine *gin.Engine
	http   *http.Server
}

// New builds a Server bound to addr, with routes reading live state
// from reg and q, optionally backed by a history ledger (nil means
// the /history route reports 404 rather than erroring).
func New(addr string, reg *registry.Registry, q *queue.Queue, workerCount int, ledger *history.Ledger, metrics *Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())

	e.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"registry_pairs": reg.Count(),
			"queue_depth":    q.Len(),
			"queue_capacity": q.Cap(),
			"worker_count":   workerCount,
			"shutting_down":  q.ShuttingDown(),
		})
	})

	e.GET("/pairs", func(c *gin.Context) {
		c.JSON(http.StatusOK, reg.Enumerate())
	})

	e.GET("/history", func(c *gin.Context) {
		if ledger == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "history ledger not configured"})
			return
		}
		records, err := ledger.Recent(c.Request.Context(), 200)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, records)
	})

	if metrics != nil {
		handler := promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{})
		e.GET("/metrics", gin.WrapH(handler))
	}

	return &Server{
		engine: e,
		http:   &http.Server{Addr: addr, Handler: e, ReadHeaderTimeout: 5 * time.Second},
	}
}

// Serve runs the HTTP server until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
