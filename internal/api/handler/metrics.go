package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmerrifield20/BaseProofs/internal/promise"
	"github.com/jmerrifield20/BaseProofs/internal/proofs"
)

var (
	proofsRecordsTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "proofs_records_total",
		Help: "Records in the merged view by status.",
	}, []string{"status"})

	proofsRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofs_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	proofsRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "proofs_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	proofsSyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofs_syncs_total",
		Help: "Chain sync cycles by result.",
	}, []string{"result"})

	proofsSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "proofs_sync_duration_seconds",
		Help:    "Duration of successful sync cycles.",
		Buckets: prometheus.DefBuckets,
	})

	proofsCallDataFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofs_calldata_fetches_total",
		Help: "Transaction call data fetches by result.",
	}, []string{"result"})

	proofsEnshrinedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proofs_enshrined_total",
		Help: "Promises enshrined through this node.",
	})

	proofsStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofs_status_changes_total",
		Help: "Status updates submitted through this node.",
	}, []string{"status"})

	proofsVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofs_verifications_total",
		Help: "Verification requests by outcome.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		proofsRequestsTotal.WithLabelValues(method, path, status).Inc()
		proofsRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordSync records a sync attempt. It matches proofs.SyncObserver.
func RecordSync(res proofs.SyncResult, err error) {
	switch {
	case err == nil:
		proofsSyncsTotal.WithLabelValues("success").Inc()
		proofsSyncDuration.Observe(res.Duration.Seconds())
	case errors.Is(err, proofs.ErrNoFreshData):
		proofsSyncsTotal.WithLabelValues("no_fresh_data").Inc()
	default:
		proofsSyncsTotal.WithLabelValues("failure").Inc()
	}
}

// RecordCallDataFetch records a transaction call data fetch.
func RecordCallDataFetch(success bool) {
	if success {
		proofsCallDataFetchesTotal.WithLabelValues("success").Inc()
	} else {
		proofsCallDataFetchesTotal.WithLabelValues("failure").Inc()
	}
}

// RecordEnshrined records a newly anchored promise.
func RecordEnshrined() {
	proofsEnshrinedTotal.Inc()
}

// RecordStatusChange records a submitted status update.
func RecordStatusChange(status string) {
	proofsStatusChangesTotal.WithLabelValues(status).Inc()
}

// RecordVerification records a verification outcome.
func RecordVerification(matched bool) {
	if matched {
		proofsVerificationsTotal.WithLabelValues("match").Inc()
	} else {
		proofsVerificationsTotal.WithLabelValues("no_match").Inc()
	}
}

// SetRecordsGauge publishes the merged view's status counts.
func SetRecordsGauge(st proofs.Stats) {
	proofsRecordsTotal.WithLabelValues(string(promise.StatusActive)).Set(float64(st.Active))
	proofsRecordsTotal.WithLabelValues(string(promise.StatusFulfilled)).Set(float64(st.Fulfilled))
	proofsRecordsTotal.WithLabelValues(string(promise.StatusVoided)).Set(float64(st.Voided))
}
