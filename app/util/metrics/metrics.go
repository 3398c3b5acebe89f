package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"

	KindTools = "tools"
	KindFinal = "final"

	AdmissionAccepted    = "accepted"
	AdmissionHourly      = "hourly_limit"
	AdmissionDaily       = "daily_limit"
	AdmissionQueueFull   = "queue_full"
	AdmissionUnavailable = "unavailable"
)

var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	ModelCalls = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "forager_model_calls_total",
		Help: "Model completion calls issued by the agent loop.",
	}, []string{"kind"})

	ToolCalls = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "forager_tool_calls_total",
		Help: "Tool dispatches by tool name and outcome.",
	}, []string{"tool", "outcome"})

	Admissions = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "forager_admissions_total",
		Help: "Usage governor decisions.",
	}, []string{"result"})

	ChatDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "forager_chat_duration_seconds",
		Help:    "Wall time of one chat call.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
