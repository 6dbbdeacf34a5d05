package work

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Strategy selects how the validator treats unknown fields and
// non-fatal issues. Strict rejects on any violation; Relaxed preserves
// unknown fields and emits warnings instead of failing.
type Strategy string

const (
	Strict  Strategy = "strict"
	Relaxed Strategy = "relaxed"
)

// ValidationError aggregates every violation found for one Work,
// rather than failing on the first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("work: validation failed: %s", strings.Join(e.Violations, "; "))
}

var pipelineNamePattern = regexp.MustCompile(`^[a-z0-9-]+$`)
var disallowedPipelineChars = regexp.MustCompile(`[^a-z0-9-]+`)

// Validator applies schema rules and the XOR discriminant to a raw
// Work, normalizes the pipeline name, resolves site against the
// workspace's allowed sites, fills defaults, and stamps Creation.
type Validator struct {
	Strategy     Strategy
	AllowedSites []string
	// Now returns the current time as a Unix-epoch float; overridable
	// for deterministic tests.
	Now func() float64
	// Schema, when non-nil, strict-validates the raw JSON payload
	// before struct-level rules run. See NewSchema.
	Schema *Schema
	// Warn receives non-fatal messages under either Strategy (e.g. a
	// pipeline name rewrite, or a violation tolerated in Relaxed
	// mode). May be nil.
	Warn func(msg string)
}

// Validate normalizes w in place and returns the aggregated
// violations as a *ValidationError, or nil if w is acceptable under
// the configured Strategy. raw, when non-nil, is the original
// unparsed JSON payload and is schema-checked in Strict mode only.
func (v *Validator) Validate(w *Work, raw json.RawMessage) error {
	var violations []string

	if v.Schema != nil && v.Strategy == Strict && raw != nil {
		if err := v.Schema.Validate(raw); err != nil {
			violations = append(violations, err.Error())
		}
	}

	if w.Pipeline == "" {
		violations = append(violations, "pipeline is required")
	} else {
		normalized := normalizePipelineName(w.Pipeline)
		if normalized != w.Pipeline {
			v.warnf("pipeline name %q rewritten to %q", w.Pipeline, normalized)
			w.Pipeline = normalized
		}
		if !pipelineNamePattern.MatchString(w.Pipeline) || w.Pipeline == "" {
			violations = append(violations, fmt.Sprintf("pipeline %q is not a valid [a-z0-9-]+ name", w.Pipeline))
		}
	}

	switch {
	case w.Function == "" && len(w.Command) == 0:
		violations = append(violations, "exactly one of function or command is required, neither set")
	case w.Function != "" && len(w.Command) > 0:
		violations = append(violations, "exactly one of function or command is required, both set")
	}

	if v.AllowedSites != nil {
		if w.Site == "" {
			violations = append(violations, "site is required")
		} else if !contains(v.AllowedSites, w.Site) {
			violations = append(violations, fmt.Sprintf("site %q is not in the workspace's allowed sites", w.Site))
		}
	}

	if w.Timeout == 0 {
		w.Timeout = DefaultTimeout
	} else if w.Timeout < 0 {
		violations = append(violations, "timeout must be a positive integer")
	} else if w.Timeout > MaxTimeout {
		violations = append(violations, fmt.Sprintf("timeout exceeds the maximum of %d seconds", MaxTimeout))
	}

	if w.Retries == UnsetRetries {
		w.Retries = DefaultRetries
	} else if w.Retries < 0 {
		violations = append(violations, "retries must be non-negative")
	}

	if w.Priority == 0 {
		w.Priority = DefaultPriority
	} else if w.Priority < MinPriority || w.Priority > MaxPriority {
		violations = append(violations, fmt.Sprintf("priority must be in [%d,%d]", MinPriority, MaxPriority))
	}

	if w.Start != 0 && w.Stop != 0 && w.Start > w.Stop {
		violations = append(violations, "start must not be after stop")
	}

	if w.Attempt > w.Retries+1 {
		violations = append(violations, "attempt exceeds retries+1")
	}

	if w.Creation == 0 {
		w.Creation = v.now()
	}
	if w.Status == "" {
		w.Status = StatusCreated
	}

	if len(violations) == 0 {
		return nil
	}
	if v.Strategy == Relaxed {
		v.warnf("work failed %d strict checks, preserved under relaxed strategy: %s", len(violations), strings.Join(violations, "; "))
		return nil
	}
	return &ValidationError{Violations: violations}
}

func (v *Validator) now() float64 {
	if v.Now != nil {
		return v.Now()
	}
	return defaultNow()
}

func (v *Validator) warnf(format string, args ...interface{}) {
	if v.Warn != nil {
		v.Warn(fmt.Sprintf(format, args...))
	}
}

// normalizePipelineName lowercases, maps underscores to hyphens, strips
// disallowed characters, and trims leading/trailing separators.
func normalizePipelineName(name string) string {
	lowered := strings.ToLower(name)
	lowered = strings.ReplaceAll(lowered, "_", "-")
	lowered = disallowedPipelineChars.ReplaceAllString(lowered, "")
	lowered = strings.Trim(lowered, "-")
	return lowered
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
