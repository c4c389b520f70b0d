package orchestrator

import (
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/opsmesh/internal/extract"
	"github.com/ShayCichocki/opsmesh/internal/state"
)

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	logger             *zap.Logger
	extractor          extract.Extractor
	archive            state.PlanWriter
	metrics            *Metrics
	taskTimeout        time.Duration
	parallelDispatch   bool
	rejectInvalidPlans bool
	eventBuffer        int
}

func defaultOptions() orchestratorOptions {
	return orchestratorOptions{
		logger:    zap.NewNop(),
		extractor: extract.Empty{},
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *orchestratorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithExtractor sets the parameter extractor used when building plans.
func WithExtractor(e extract.Extractor) Option {
	return func(o *orchestratorOptions) {
		if e != nil {
			o.extractor = e
		}
	}
}

// WithArchive records every terminal plan in the given archive.
func WithArchive(a state.PlanWriter) Option {
	return func(o *orchestratorOptions) { o.archive = a }
}

// WithMetrics sets the Prometheus collectors to update.
func WithMetrics(m *Metrics) Option {
	return func(o *orchestratorOptions) { o.metrics = m }
}

// WithTaskTimeout bounds each agent call. Zero means no bound.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.taskTimeout = d }
}

// WithParallelDispatch runs each iteration's ready tasks concurrently.
func WithParallelDispatch(b bool) Option {
	return func(o *orchestratorOptions) { o.parallelDispatch = b }
}

// WithRejectInvalidPlans fails plans with cycles or unknown dependencies
// before any task is dispatched.
func WithRejectInvalidPlans(b bool) Option {
	return func(o *orchestratorOptions) { o.rejectInvalidPlans = b }
}

// WithEvents enables the event stream with the given buffer size.
// Without it, Events returns nil.
func WithEvents(bufferSize int) Option {
	return func(o *orchestratorOptions) { o.eventBuffer = bufferSize }
}
