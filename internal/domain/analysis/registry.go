package analysis

import "github.com/foreverwb/swing-workflow/internal/domain/workflow"

// DefaultRegistry wires the four production stage handlers.
func DefaultRegistry() (*workflow.Registry, error) {
	return workflow.NewRegistry(
		NewEventDetector(),
		NewScoringEngine(),
		NewStrategyCalculator(),
		NewComparator(),
	)
}
