package telemetry

import (
	"net/http"
	"net/http/httptrace"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	prometheus.MustRegister(httpInFlight)
	prometheus.MustRegister(httpDuration)
	prometheus.MustRegister(httpQueueTime)
	prometheus.MustRegister(CheckpointsCompleted)
	prometheus.MustRegister(CheckpointsAborted)
	prometheus.MustRegister(CheckpointDuration)
	prometheus.MustRegister(TaskRestarts)
}

var (
	// Transport level metrics

	httpInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_client_in_flight_requests",
			Help: "Current number of in-flight HTTP requests",
		},
		[]string{"client"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_client_duration_seconds",
			Help:    "HTTP request duration distributions",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"client", "code"},
	)

	httpQueueTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_client_queue_seconds",
			Help:    "Time spent waiting before request starts",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"client"},
	)

	// Checkpoint level metrics, labeled by subtask index

	CheckpointsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_checkpoints_completed_total",
			Help: "Checkpoints whose sink state was snapshotted and persisted",
		},
		[]string{"subtask"},
	)

	CheckpointsAborted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_checkpoints_aborted_total",
			Help: "Checkpoint attempts abandoned because the sink could not flush",
		},
		[]string{"subtask"},
	)

	CheckpointDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sink_checkpoint_duration_seconds",
			Help:    "Time from barrier to persisted sink state",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"subtask"},
	)

	TaskRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_task_restarts_total",
			Help: "Task restarts from the last completed checkpoint after a fatal sink error",
		},
		[]string{"subtask"},
	)
)

// SubtaskLabel formats a subtask index for metric labels.
func SubtaskLabel(index int) string {
	return strconv.Itoa(index)
}

type MetricsTransport struct {
	name    string
	wrapped http.RoundTripper
}

func NewMetricsTransport(name string, wrapped http.RoundTripper) *MetricsTransport {
	if wrapped == nil {
		wrapped = http.DefaultTransport
	}
	return &MetricsTransport{
		name:    name,
		wrapped: wrapped,
	}
}

func (t *MetricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	inFlight := httpInFlight.WithLabelValues(t.name)
	inFlight.Inc()
	defer inFlight.Dec()

	trace := &httptrace.ClientTrace{
		GetConn: func(hostPort string) {
			httpQueueTime.WithLabelValues(t.name).Observe(time.Since(start).Seconds())
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	resp, err := t.wrapped.RoundTrip(req)
	if err != nil {
		httpDuration.WithLabelValues(t.name, "error").Observe(time.Since(start).Seconds())
		return nil, err
	}

	httpDuration.WithLabelValues(t.name, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())
	return resp, nil
}
