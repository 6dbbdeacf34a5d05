package pipeline

import "sort"

// StageOutcome is the aggregate result of the steps deposited so far
// (Driver.Run accumulates it over every prior stage), used to evaluate
// the reserved `if` conditions of a later stage.
type StageOutcome struct {
	AnyFailed bool
	AllSucceeded bool
}

// GroupByStage returns the distinct stage numbers present in steps, in
// ascending order.
func GroupByStage(steps []ExpandedStep) []int {
	seen := make(map[int]bool)
	var stages []int
	for _, s := range steps {
		if !seen[s.Stage] {
			seen[s.Stage] = true
			stages = append(stages, s.Stage)
		}
	}
	sort.Ints(stages)
	return stages
}

// Gate reports whether a step whose `if` is cond should be deposited,
// given the aggregate outcome of the prior stages. An empty cond always gates
// true — steps without a condition always run.
func Gate(cond string, prior StageOutcome) bool {
	switch cond {
	case "", "always":
		return true
	case "success":
		return prior.AllSucceeded
	case "failure":
		return prior.AnyFailed
	default:
		// Any other condition, including expressions over the pipeline
		// execution context (${{ pipeline.<step>.<field> }} references),
		// is not evaluated here or by Driver.Run: it gates true. Gate
		// only interprets the three reserved literals.
		return true
	}
}
