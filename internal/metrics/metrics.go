package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics

	ReminderPickupLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "callwhen",
		Name:      "reminder_pickup_latency_seconds",
		Help:      "Time from a reminder becoming due to a worker claiming it.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	CallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "callwhen",
		Name:      "call_duration_seconds",
		Help:      "Duration of the external notification call.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"status"})

	RemindersInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "callwhen",
		Name:      "reminders_in_flight",
		Help:      "Number of reminders currently being executed.",
	})

	RemindersFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callwhen",
		Name:      "reminders_finished_total",
		Help:      "Total reminder executions finished, by outcome.",
	}, []string{"outcome"})

	// Reaper metrics

	ReaperRescuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callwhen",
		Name:      "reaper_rescued_total",
		Help:      "Total stale reminders handled by the reaper.",
	}, []string{"action"})

	// Dispatcher / calendar metrics

	RecurringFiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "callwhen",
		Name:      "recurring_fired_total",
		Help:      "Total reminders fired from recurring definitions.",
	})

	CalendarScheduledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "callwhen",
		Name:      "calendar_scheduled_total",
		Help:      "Total reminders scheduled from calendar events.",
	})

	// Worker lifecycle

	WorkerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "callwhen",
		Name:      "worker_start_time_seconds",
		Help:      "Unix timestamp when the worker started.",
	})

	WorkerShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "callwhen",
		Name:      "worker_shutdowns_total",
		Help:      "Number of times the worker has shut down.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "callwhen",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callwhen",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		ReminderPickupLatency,
		CallDuration,
		RemindersInFlight,
		RemindersFinishedTotal,
		ReaperRescuedTotal,
		RecurringFiredTotal,
		CalendarScheduledTotal,
		WorkerStartTime,
		WorkerShutdownsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

func NewServer(addr string, readiness http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if readiness != nil {
		mux.Handle("/readyz", readiness)
	}
	return &http.Server{Addr: addr, Handler: mux}
}
