package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/opsmesh/internal/graph"
	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// ExecutePlan runs the plan. A synchronous call returns the terminal plan;
// an asynchronous call returns as soon as the plan is running.
func (o *Orchestrator) ExecutePlan(ctx context.Context, plan *models.ExecutionPlan, async bool) (*models.ExecutionPlan, error) {
	if async {
		_, snap, err := o.launch(ctx, plan)
		return snap, err
	}
	return o.Execute(ctx, plan)
}

// Execute drives the plan on the calling goroutine until it is terminal.
// Cancelling ctx does not interrupt dispatched tasks; only the task timeout
// cuts an agent off.
func (o *Orchestrator) Execute(ctx context.Context, plan *models.ExecutionPlan) (*models.ExecutionPlan, error) {
	h, err := o.start(plan)
	if err != nil {
		return nil, err
	}
	o.drive(context.WithoutCancel(ctx), h)
	return plan.Snapshot(), nil
}

// ExecuteAsync marks the plan running and drives it on a background
// goroutine. The driver does not inherit ctx cancellation, so a plan started
// from a short-lived request context still runs to completion.
func (o *Orchestrator) ExecuteAsync(ctx context.Context, plan *models.ExecutionPlan) (*PlanHandle, error) {
	h, _, err := o.launch(ctx, plan)
	return h, err
}

// launch starts a background driver and returns the plan as it was before
// the driver could touch it.
func (o *Orchestrator) launch(ctx context.Context, plan *models.ExecutionPlan) (*PlanHandle, *models.ExecutionPlan, error) {
	h, err := o.start(plan)
	if err != nil {
		return nil, nil, err
	}
	snap := plan.Snapshot()

	driverCtx := context.WithoutCancel(ctx)
	o.drivers.Add(1)
	go func() {
		defer o.drivers.Done()
		o.drive(driverCtx, h)
	}()
	return h, snap, nil
}

// ProcessRequest creates a plan for the request and executes it.
func (o *Orchestrator) ProcessRequest(ctx context.Context, request, name string, async bool) (*models.ExecutionPlan, error) {
	plan, err := o.CreatePlan(ctx, request, name)
	if err != nil {
		return nil, err
	}
	return o.ExecutePlan(ctx, plan, async)
}

// start registers the plan as active and moves it to running.
func (o *Orchestrator) start(plan *models.ExecutionPlan) (*PlanHandle, error) {
	o.mu.Lock()
	if _, ok := o.active[plan.ID]; ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", plan.ID, ErrPlanActive)
	}
	status := plan.GetStatus()
	if status.Terminal() {
		o.mu.Unlock()
		return nil, fmt.Errorf("%s is %s: %w", plan.ID, status, ErrPlanFinished)
	}
	if !plan.Start() {
		o.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", plan.ID, ErrPlanActive)
	}

	h := newPlanHandle(plan)
	o.active[plan.ID] = h
	o.mu.Unlock()

	o.opts.metrics.PlanStarted()
	o.emitter.Emit(Event{Type: EventPlanStarted, PlanID: plan.ID, Message: plan.Name})
	o.logger.Info("plan started", zap.String("plan_id", plan.ID), zap.String("name", plan.Name))
	return h, nil
}

// drive runs the scheduling loop until the plan is terminal, then archives it.
func (o *Orchestrator) drive(ctx context.Context, h *PlanHandle) {
	plan := h.plan
	defer o.finish(h)

	if !o.validate(plan) {
		plan.MarkFailed()
		return
	}

	// Every productive iteration moves at least one task to a terminal
	// state, so a well-formed plan needs at most len(tasks)+1 iterations.
	maxIterations := len(plan.Snapshot().Tasks) + 1
	for iteration := 1; ; iteration++ {
		if iteration > maxIterations {
			o.logger.Error("plan exceeded iteration bound",
				zap.String("plan_id", plan.ID),
				zap.Int("iterations", maxIterations))
			plan.MarkFailed()
			return
		}

		runnable := plan.RunnableTasks()
		if len(runnable) == 0 {
			if plan.IsComplete() {
				plan.MarkCompleted()
			} else {
				counts := plan.Counts()
				o.logger.Warn("plan stalled",
					zap.String("plan_id", plan.ID),
					zap.Int("pending", counts[models.TaskStatusPending]),
					zap.Int("failed", counts[models.TaskStatusFailed]))
				plan.MarkFailed()
			}
			return
		}

		o.dispatch(ctx, plan, runnable)
	}
}

// validate reports dependency problems. It returns false only when the plan
// must be rejected.
func (o *Orchestrator) validate(plan *models.ExecutionPlan) bool {
	g, err := graph.FromPlan(plan)
	if err == nil {
		return true
	}

	blocked := g.Blocked()
	fields := []zap.Field{
		zap.String("plan_id", plan.ID),
		zap.Error(err),
		zap.Any("blocked", blocked),
	}
	if o.opts.rejectInvalidPlans {
		o.logger.Error("rejecting invalid plan", fields...)
		return false
	}
	o.logger.Warn("plan has invalid dependencies", fields...)
	return true
}

// dispatch runs one iteration's ready set and returns once every task in it
// is terminal.
func (o *Orchestrator) dispatch(ctx context.Context, plan *models.ExecutionPlan, ready []*models.AgentTask) {
	if !o.opts.parallelDispatch || len(ready) == 1 {
		for _, t := range ready {
			o.runTask(ctx, plan, t.ID)
		}
		return
	}

	var g errgroup.Group
	for _, t := range ready {
		g.Go(func() error {
			o.runTask(ctx, plan, t.ID)
			return nil
		})
	}
	_ = g.Wait()
}

// runTask executes one task and records its outcome on the plan.
// Task failures never escape: they end up in the task result.
func (o *Orchestrator) runTask(ctx context.Context, plan *models.ExecutionPlan, id string) {
	task, err := plan.StartTask(id)
	if err != nil {
		o.logger.Warn("skipping task", zap.String("plan_id", plan.ID), zap.String("task_id", id), zap.Error(err))
		return
	}

	log := o.logger.With(
		zap.String("plan_id", plan.ID),
		zap.String("task_id", task.ID),
		zap.String("agent_type", string(task.AgentType)))
	log.Debug("task started")
	o.emitter.Emit(Event{Type: EventTaskStarted, PlanID: plan.ID, TaskID: task.ID, AgentType: task.AgentType, Message: task.Description})

	start := time.Now()
	result, err := o.invoke(ctx, task)
	elapsed := time.Since(start)

	if err != nil {
		plan.FailTask(task.ID, err.Error())
		o.opts.metrics.ObserveTask(task.AgentType, models.TaskStatusFailed, elapsed)
		log.Warn("task failed", zap.Error(err), zap.Duration("duration", elapsed))
		o.emitter.Emit(Event{Type: EventTaskFailed, PlanID: plan.ID, TaskID: task.ID, AgentType: task.AgentType,
			Message: err.Error(), Error: err, Duration: elapsed})
		return
	}

	plan.CompleteTask(task.ID, result)
	o.opts.metrics.ObserveTask(task.AgentType, models.TaskStatusCompleted, elapsed)
	log.Info("task completed", zap.Duration("duration", elapsed))
	o.emitter.Emit(Event{Type: EventTaskCompleted, PlanID: plan.ID, TaskID: task.ID, AgentType: task.AgentType, Duration: elapsed})
}

type outcome struct {
	result map[string]any
	err    error
}

// invoke calls the agent for the task under the task timeout. A hung agent is
// abandoned once the deadline passes; panics become errors.
func (o *Orchestrator) invoke(ctx context.Context, task *models.AgentTask) (map[string]any, error) {
	a, ok := o.registry.Get(task.AgentType)
	if !ok {
		return nil, fmt.Errorf("%w for type: %s", ErrNoAgent, task.AgentType)
	}

	if o.opts.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.taskTimeout)
		defer cancel()
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("agent %s panicked: %v", task.AgentType, r)}
			}
		}()
		result, err := a.Execute(ctx, task)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && o.opts.taskTimeout > 0 {
			return nil, fmt.Errorf("%w after %s", ErrTaskTimeout, o.opts.taskTimeout)
		}
		return nil, ctx.Err()
	}
}

// finish archives a terminal plan and releases its handle.
func (o *Orchestrator) finish(h *PlanHandle) {
	plan := h.plan
	status := plan.GetStatus()
	if !status.Terminal() {
		// Never archive a running plan.
		plan.MarkFailed()
		status = plan.GetStatus()
	}

	o.kb.AddExecutionPlan(plan)
	if o.opts.archive != nil {
		if err := o.opts.archive.SavePlan(plan); err != nil {
			o.logger.Warn("failed to archive plan", zap.String("plan_id", plan.ID), zap.Error(err))
		}
	}
	o.opts.metrics.PlanFinished(status)

	var elapsed time.Duration
	if d, ok := plan.Duration(); ok {
		elapsed = d
	}
	eventType := EventPlanCompleted
	if status == models.PlanStatusFailed {
		eventType = EventPlanFailed
	}
	o.emitter.Emit(Event{Type: eventType, PlanID: plan.ID, Message: string(status), Duration: elapsed})
	o.logger.Info("plan finished",
		zap.String("plan_id", plan.ID),
		zap.String("status", string(status)),
		zap.Duration("duration", elapsed))

	o.mu.Lock()
	delete(o.active, plan.ID)
	o.mu.Unlock()
	close(h.done)
}
