package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"queuemigrate/internal/progress"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes metrics
type Collector struct {
	registry        *prometheus.Registry
	objectsTotal    *prometheus.CounterVec
	bytesTotal      prometheus.Counter
	activeWorkers   prometheus.Gauge
	queueLength     prometheus.Gauge
	duration        prometheus.Histogram
	progressTracker *progress.Tracker
}

// New creates a new metrics collector on its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		objectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "migrate_objects_total",
				Help: "Objects processed by outcome (migrated or requeued)",
			},
			[]string{"status"},
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "migrate_bytes_total",
				Help: "Total bytes written to the destination",
			},
		),
		activeWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "migrate_active_workers",
				Help: "Number of workers that have not reached a terminal state",
			},
		),
		queueLength: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "migrate_queue_length",
				Help: "Identifiers left in the queue at the last check",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "migrate_object_duration_seconds",
				Help:    "Time taken to migrate an object",
				Buckets: prometheus.DefBuckets,
			},
		),
		progressTracker: progress.NewTracker(),
	}

	c.registry.MustRegister(
		c.objectsTotal,
		c.bytesTotal,
		c.activeWorkers,
		c.queueLength,
		c.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// IncMigrated records a successful transfer
func (c *Collector) IncMigrated(bytes int64, d time.Duration) {
	c.objectsTotal.WithLabelValues("migrated").Inc()
	c.bytesTotal.Add(float64(bytes))
	c.duration.Observe(d.Seconds())
	c.progressTracker.AddMigrated(bytes)
}

// IncRequeued records a failed transfer pushed back onto the queue
func (c *Collector) IncRequeued() {
	c.objectsTotal.WithLabelValues("requeued").Inc()
	c.progressTracker.AddRequeued()
}

// WorkerStarted and WorkerStopped track live workers
func (c *Collector) WorkerStarted() { c.activeWorkers.Inc() }

func (c *Collector) WorkerStopped() { c.activeWorkers.Dec() }

// SetQueueLength records the latest queue length
func (c *Collector) SetQueueLength(n int64) {
	c.queueLength.Set(float64(n))
	c.progressTracker.SetRemaining(n)
}

// GetProgressTracker returns the progress tracker
func (c *Collector) GetProgressTracker() *progress.Tracker {
	return c.progressTracker
}

// Registry exposes the underlying registry, mainly for tests
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// StartServer serves /metrics on addr until ctx is cancelled
func (c *Collector) StartServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
