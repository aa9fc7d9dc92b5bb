package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasks_submitted",
	})
	TasksRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tasks_running",
	})
	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasks_completed",
	})
	TasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasks_failed",
	})

	URLsInspected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "urls_inspected",
	})
	URLInspectionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "url_inspection_errors",
	})

	ArtifactsDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "artifacts_downloaded",
	})
	ArtifactBytesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "artifact_bytes_downloaded",
	})
	ArtifactsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "artifacts_swept",
	})

	HTTPAPIRequests = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_api_requests",
			Help:    "Method call latency distributions",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.4, 1, 2, 5, 10},
		},
		[]string{"status_code"},
	)
)
