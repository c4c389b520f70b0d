package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ShayCichocki/opsmesh/internal/agent"
	"github.com/ShayCichocki/opsmesh/internal/knowledge"
	"github.com/ShayCichocki/opsmesh/pkg/models"
)

var (
	// ErrPlanNotFound is returned when no active or archived plan has the id.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrPlanActive is returned when a plan already has a driver.
	ErrPlanActive = errors.New("plan is already running")
	// ErrPlanFinished is returned when asked to execute a terminal plan.
	ErrPlanFinished = errors.New("plan has already finished")
	// ErrNoAgent is the cause recorded on tasks whose type has no agent.
	ErrNoAgent = errors.New("no agent available")
	// ErrTaskTimeout is the cause recorded on tasks whose agent call
	// exceeded the task timeout.
	ErrTaskTimeout = errors.New("task timed out")
)

// Orchestrator turns requests into execution plans and drives them through
// the registered agents.
//
// The mutex guards only the active plan registry. It is never held while an
// agent runs; plans and the knowledge base carry their own locks.
type Orchestrator struct {
	kb       *knowledge.KnowledgeBase
	registry *AgentRegistry
	emitter  *EventEmitter
	logger   *zap.Logger
	opts     orchestratorOptions

	mu     sync.Mutex
	active map[string]*PlanHandle

	// drivers tracks background drivers started by ExecuteAsync.
	drivers sync.WaitGroup
}

// New creates an Orchestrator over the knowledge base and agents.
func New(kb *knowledge.KnowledgeBase, agents []agent.Agent, opts ...Option) *Orchestrator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if kb == nil {
		kb = knowledge.New(knowledge.WithLogger(o.logger))
	}

	orch := &Orchestrator{
		kb:       kb,
		registry: NewAgentRegistry(agents...),
		logger:   o.logger.Named("orchestrator"),
		opts:     o,
		active:   make(map[string]*PlanHandle),
	}
	if o.eventBuffer > 0 {
		orch.emitter = NewEventEmitter(o.eventBuffer, orch.logger)
	}
	return orch
}

// KnowledgeBase returns the shared knowledge base.
func (o *Orchestrator) KnowledgeBase() *knowledge.KnowledgeBase {
	return o.kb
}

// Agents returns the registered agents in registration order.
func (o *Orchestrator) Agents() []agent.Agent {
	return o.registry.All()
}

// Events returns the event stream, or nil when events are disabled.
// The channel is closed by Close.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// DroppedEvents returns how many events were dropped because nobody was
// reading the stream.
func (o *Orchestrator) DroppedEvents() uint64 {
	return o.emitter.DroppedCount()
}

// GetPlanStatus returns a snapshot of the plan with the given id, looking at
// active plans first and then at the knowledge base history.
func (o *Orchestrator) GetPlanStatus(id string) (*models.ExecutionPlan, bool) {
	o.mu.Lock()
	h, ok := o.active[id]
	o.mu.Unlock()
	if ok {
		return h.plan.Snapshot(), true
	}
	return o.kb.FindExecutionPlan(id)
}

// ActivePlans returns snapshots of every plan currently being driven,
// ordered by creation time.
func (o *Orchestrator) ActivePlans() []*models.ExecutionPlan {
	o.mu.Lock()
	plans := make([]*models.ExecutionPlan, 0, len(o.active))
	for _, h := range o.active {
		plans = append(plans, h.plan.Snapshot())
	}
	o.mu.Unlock()

	sort.Slice(plans, func(i, j int) bool {
		if plans[i].CreatedAt.Equal(plans[j].CreatedAt) {
			return plans[i].ID < plans[j].ID
		}
		return plans[i].CreatedAt.Before(plans[j].CreatedAt)
	})
	return plans
}

// Handle returns the handle of an active plan.
func (o *Orchestrator) Handle(id string) (*PlanHandle, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.active[id]
	return h, ok
}

// Wait blocks until every plan started with ExecuteAsync has finished or
// ctx is done. It never aborts a plan.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.drivers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for plans: %w", ctx.Err())
	}
}

// Close waits for background drivers and closes the event stream.
func (o *Orchestrator) Close() {
	o.drivers.Wait()
	o.emitter.Close()
}
