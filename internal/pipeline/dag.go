package pipeline

import (
	"fmt"
	"regexp"
)

var pipelineTokenPattern = regexp.MustCompile(`\$\{\{\s*pipeline\.([a-zA-Z0-9_-]+)\.[a-zA-Z0-9_.]+\s*\}\}`)

// ValidateReferences rejects a configuration where a step's
// ${{ pipeline.<step>.<field> }} token references a step that
// doesn't exist, or one in the same or a later stage: stage N+1 is
// not deposited until every stage-1..N step is terminal, so a
// same-or-later-stage reference can never resolve.
func ValidateReferences(cfg *Configuration) []string {
	var violations []string
	for name, step := range cfg.Pipeline {
		for _, ref := range referencedSteps(step.Work) {
			target, ok := cfg.Pipeline[ref]
			if !ok {
				violations = append(violations, fmt.Sprintf("step %q references unknown step %q", name, ref))
				continue
			}
			if target.Stage >= step.Stage {
				violations = append(violations, fmt.Sprintf("step %q (stage %d) references step %q (stage %d): references must target an earlier stage", name, step.Stage, ref, target.Stage))
			}
		}
	}
	return violations
}

func referencedSteps(v interface{}) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		for _, match := range pipelineTokenPattern.FindAllStringSubmatch(val, -1) {
			refs = append(refs, match[1])
		}
	case map[string]interface{}:
		for _, nested := range val {
			refs = append(refs, referencedSteps(nested)...)
		}
	case []interface{}:
		for _, nested := range val {
			refs = append(refs, referencedSteps(nested)...)
		}
	}
	return refs
}
