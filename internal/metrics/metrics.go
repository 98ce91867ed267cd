package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 发布编排与指令通道的 Prometheus 指标, nil 接收者上的调用均为空操作
type Metrics struct {
	registry *prometheus.Registry

	commandsTotal       *prometheus.CounterVec
	responsesTotal      prometheus.Counter
	responseWaitSeconds *prometheus.HistogramVec

	rolloutTransitionsTotal *prometheus.CounterVec
	stageDecisionsTotal     *prometheus.CounterVec
	deviceResultsTotal      *prometheus.CounterVec
	dispatchTotal           *prometheus.CounterVec
}

// New 创建并注册全部指标
func New() *Metrics {
	registry := prometheus.NewRegistry()

	commandsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleet",
			Subsystem: "channel",
			Name:      "commands_total",
			Help:      "Commands seen by the command channel, by outcome.",
		},
		[]string{"outcome"}, // published/handled/expired/malformed/reclaimed/poison
	)
	responsesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fleet",
			Subsystem: "channel",
			Name:      "responses_published_total",
			Help:      "Responses published to the response stream.",
		},
	)
	responseWaitSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fleet",
			Subsystem: "channel",
			Name:      "response_wait_seconds",
			Help:      "Time spent waiting for a correlated response.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"result"},
	)
	rolloutTransitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleet",
			Subsystem: "rollout",
			Name:      "transitions_total",
			Help:      "Rollout status transitions.",
		},
		[]string{"from", "to"},
	)
	stageDecisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleet",
			Subsystem: "rollout",
			Name:      "stage_decisions_total",
			Help:      "Monitor decisions per stage evaluation.",
		},
		[]string{"decision"}, // promote/rollback/wait
	)
	deviceResultsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleet",
			Subsystem: "rollout",
			Name:      "device_results_total",
			Help:      "Device update results reported by agents.",
		},
		[]string{"result"},
	)
	dispatchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleet",
			Subsystem: "rollout",
			Name:      "dispatch_total",
			Help:      "Update and rollback commands dispatched to devices.",
		},
		[]string{"command_type", "result"},
	)

	registry.MustRegister(
		commandsTotal,
		responsesTotal,
		responseWaitSeconds,
		rolloutTransitionsTotal,
		stageDecisionsTotal,
		deviceResultsTotal,
		dispatchTotal,
	)

	return &Metrics{
		registry:                registry,
		commandsTotal:           commandsTotal,
		responsesTotal:          responsesTotal,
		responseWaitSeconds:     responseWaitSeconds,
		rolloutTransitionsTotal: rolloutTransitionsTotal,
		stageDecisionsTotal:     stageDecisionsTotal,
		deviceResultsTotal:      deviceResultsTotal,
		dispatchTotal:           dispatchTotal,
	}
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncCommand(outcome string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncResponse() {
	if m == nil {
		return
	}
	m.responsesTotal.Inc()
}

func (m *Metrics) ObserveResponseWait(result string, seconds float64) {
	if m == nil {
		return
	}
	m.responseWaitSeconds.WithLabelValues(result).Observe(seconds)
}

func (m *Metrics) IncRolloutTransition(from, to string) {
	if m == nil {
		return
	}
	m.rolloutTransitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncStageDecision(decision string) {
	if m == nil {
		return
	}
	m.stageDecisionsTotal.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncDeviceResult(result string) {
	if m == nil {
		return
	}
	m.deviceResultsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncDispatch(commandType, result string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(commandType, result).Inc()
}
