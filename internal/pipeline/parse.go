package pipeline

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidationError aggregates every problem found while parsing and
// validating a Configuration, rather than failing on the first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pipeline: %d validation error(s): %s", len(e.Violations), strings.Join(e.Violations, "; "))
}

// Parse decodes and validates a Pipeline Configuration document.
// Unknown top-level keys are rejected (fail-closed).
func Parse(data []byte) (*Configuration, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Configuration
	if err := dec.Decode(&cfg); err != nil {
		return nil, &ValidationError{Violations: []string{fmt.Sprintf("invalid document: %v", err)}}
	}

	for name, step := range cfg.Pipeline {
		step.name = name
	}

	errs := validateConfiguration(&cfg)
	errs = append(errs, ValidateReferences(&cfg)...)
	if len(errs) > 0 {
		return nil, &ValidationError{Violations: errs}
	}
	return &cfg, nil
}

func validateConfiguration(cfg *Configuration) []string {
	var violations []string

	if cfg.Name == "" {
		violations = append(violations, "name is required")
	}
	if cfg.Version == 0 {
		violations = append(violations, "version is required")
	}
	if len(cfg.Pipeline) == 0 {
		violations = append(violations, "pipeline must declare at least one step")
	}

	topAxes := axisNames(cfg.Matrix)

	for name, step := range cfg.Pipeline {
		if step.Stage <= 0 {
			violations = append(violations, fmt.Sprintf("step %q: stage must be a positive integer", name))
		}
		if len(step.Work) == 0 {
			violations = append(violations, fmt.Sprintf("step %q: work is required", name))
		}
		stepAxes := axisNames(step.Matrix)
		for axis := range stepAxes {
			if topAxes[axis] {
				violations = append(violations, fmt.Sprintf("step %q: matrix axis %q collides with a top-level matrix axis", name, axis))
			}
		}
	}

	return violations
}

func axisNames(m Matrix) map[string]bool {
	names := make(map[string]bool, len(m))
	for name := range m {
		names[name] = true
	}
	return names
}
