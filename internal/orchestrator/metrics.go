package orchestrator

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// Metrics exposes Prometheus collectors that report orchestrator activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	plansTotal   *prometheus.CounterVec
	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	plansActive  prometheus.Gauge
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Collectors that are already registered with reg are reused, so building
// several orchestrators against one registry is safe. Any other registration
// error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		plansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opsmesh",
				Subsystem: "orchestrator",
				Name:      "plans_total",
				Help:      "Plans that reached a terminal status.",
			},
			[]string{"status"},
		),
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opsmesh",
				Subsystem: "orchestrator",
				Name:      "tasks_total",
				Help:      "Tasks that reached a terminal status.",
			},
			[]string{"agent_type", "status"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "opsmesh",
				Subsystem: "orchestrator",
				Name:      "task_duration_seconds",
				Help:      "Time spent in agent execution per task.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"agent_type", "status"},
		),
		plansActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "opsmesh",
				Subsystem: "orchestrator",
				Name:      "plans_active",
				Help:      "Plans currently being driven.",
			},
		),
	}

	m.plansTotal = register(reg, m.plansTotal)
	m.tasksTotal = register(reg, m.tasksTotal)
	m.taskDuration = register(reg, m.taskDuration)
	m.plansActive = register(reg, m.plansActive)
	return m
}

// register registers c, returning the existing collector if an identical
// one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// PlanStarted increments the active plan gauge.
func (m *Metrics) PlanStarted() {
	if m == nil {
		return
	}
	m.plansActive.Inc()
}

// PlanFinished records a terminal plan and decrements the active gauge.
func (m *Metrics) PlanFinished(status models.PlanStatus) {
	if m == nil {
		return
	}
	m.plansActive.Dec()
	m.plansTotal.WithLabelValues(string(status)).Inc()
}

// ObserveTask records a terminal task with its agent execution time.
func (m *Metrics) ObserveTask(agentType models.AgentType, status models.TaskStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(string(agentType), string(status)).Inc()
	m.taskDuration.WithLabelValues(string(agentType), string(status)).Observe(d.Seconds())
}
