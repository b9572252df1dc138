// Package orchestrator composes dispatches into workflows.
//
// The orchestrator package provides:
//   - Sequential workflows: each step receives the previous step's data merged
//     into its request context
//   - Parallel workflows: one request fanned out to several workers and merged
//     into a single response keyed by worker id
//   - Conflict handling: detection of disagreeing results, priority-based
//     resolution and consensus responses that keep every viewpoint
//
// Workflows are registered by name and run through Run:
//
//	orch := orchestrator.New(dispatcher, orchestrator.WithSessionStore(store))
//	orch.Register(orchestrator.Workflow{
//		Name:    "design",
//		Mode:    orchestrator.ModeSequential,
//		Workers: []string{"domain", "service"},
//	})
//	resp, err := orch.Run(ctx, "design", models.NewRequest("entity", payload))
package orchestrator
