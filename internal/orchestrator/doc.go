// Package orchestrator turns free-text operational requests into execution
// plans and drives them through capability agents.
//
// A request is classified by asking every registered agent whether it can
// handle it; the matching agent types become a linear chain of tasks. The
// scheduling loop then repeatedly dispatches the plan's runnable tasks (pending
// tasks whose dependencies all completed) until none remain:
//
//	orch := orchestrator.New(kb, agents, orchestrator.WithLogger(logger))
//	plan, err := orch.ProcessRequest(ctx, "Launch an EC2 instance and deploy v1.2.0", "", false)
//
// A plan completes when every task is terminal, and fails when it stalls on
// tasks whose dependencies can never complete (a failed prerequisite, an
// unknown dependency, or a cycle).
package orchestrator
