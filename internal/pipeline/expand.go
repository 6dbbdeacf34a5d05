package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sitefed/labwork/internal/work"
)

var matrixTokenPattern = regexp.MustCompile(`\$\{\{\s*matrix\.[a-zA-Z0-9_]+\s*\}\}`)

// Expand layers defaults onto each step, expands matrices into the
// Cartesian product of their axes, substitutes ${{ matrix.x }}
// tokens, and orders the result by ascending stage. Within a stage,
// steps come in step-name order (Configuration.Pipeline is a map); the
// document's declaration order is not kept.
func Expand(cfg *Configuration) ([]ExpandedStep, error) {
	names := make([]string, 0, len(cfg.Pipeline))
	for name := range cfg.Pipeline {
		names = append(names, name)
	}
	sort.Strings(names)

	var expanded []ExpandedStep
	for _, name := range names {
		step := cfg.Pipeline[name]
		effective := work.DeepMerge(cfg.Defaults, step.Work)
		effective = withStepGroup(effective, name)

		combined := combineMatrices(cfg.Matrix, step.Matrix)
		tuples := cartesianProduct(combined)

		if len(tuples) == 0 {
			expanded = append(expanded, ExpandedStep{
				StepName: name,
				Stage:    step.Stage,
				If:       step.If,
				Work:     cloneAndSubstitute(effective, nil),
			})
			continue
		}

		for _, tuple := range tuples {
			expanded = append(expanded, ExpandedStep{
				StepName: name,
				Stage:    step.Stage,
				If:       step.If,
				Work:     cloneAndSubstitute(effective, tuple),
			})
		}
	}

	sort.SliceStable(expanded, func(i, j int) bool { return expanded[i].Stage < expanded[j].Stage })
	return expanded, nil
}

// withStepGroup prepends the owning step's name to the Work's group
// classification, so the audit daemon can later tell whether this
// step still exists in the pipeline's configuration. A group already
// set explicitly on the step's work is left untouched.
func withStepGroup(effective map[string]interface{}, stepName string) map[string]interface{} {
	if _, ok := effective["group"]; ok {
		return effective
	}
	out := make(map[string]interface{}, len(effective)+1)
	for k, v := range effective {
		out[k] = v
	}
	out["group"] = []interface{}{stepName}
	return out
}

func combineMatrices(top, step Matrix) Matrix {
	combined := make(Matrix, len(top)+len(step))
	for k, v := range top {
		combined[k] = v
	}
	for k, v := range step {
		combined[k] = v
	}
	return combined
}

// cartesianProduct returns every axis-tuple as a map[axisName]value,
// with axes taken in name order rather than declaration order, which a
// Go map does not keep; sorting makes expansion deterministic. Cardinality
// and distinctness are unaffected by that choice.
func cartesianProduct(m Matrix) []map[string]interface{} {
	if len(m) == 0 {
		return nil
	}
	axisNames := make([]string, 0, len(m))
	for name := range m {
		axisNames = append(axisNames, name)
	}
	sort.Strings(axisNames)

	tuples := []map[string]interface{}{{}}
	for _, name := range axisNames {
		values := m[name].values()
		var next []map[string]interface{}
		for _, tuple := range tuples {
			for _, v := range values {
				copied := make(map[string]interface{}, len(tuple)+1)
				for k, existing := range tuple {
					copied[k] = existing
				}
				copied[name] = v
				next = append(next, copied)
			}
		}
		tuples = next
	}
	return tuples
}

// cloneAndSubstitute deep-copies tmpl, replacing ${{ matrix.<key> }}
// tokens with the concrete tuple value: exact-match string scalars
// substitute the raw typed value, embedded occurrences are
// string-interpolated.
func cloneAndSubstitute(tmpl map[string]interface{}, tuple map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(tmpl))
	for k, v := range tmpl {
		out[k] = substituteValue(v, tuple)
	}
	return out
}

func substituteValue(v interface{}, tuple map[string]interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return substituteString(val, tuple)
	case map[string]interface{}:
		return cloneAndSubstitute(val, tuple)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = substituteValue(item, tuple)
		}
		return out
	default:
		return v
	}
}

func substituteString(s string, tuple map[string]interface{}) interface{} {
	if token, ok := soleMatrixToken(s); ok {
		if value, ok := tuple[token]; ok {
			return value
		}
		return s
	}

	return matrixTokenPattern.ReplaceAllStringFunc(s, func(match string) string {
		key := extractToken(match)
		if value, ok := tuple[key]; ok {
			return fmt.Sprintf("%v", value)
		}
		return match
	})
}

// soleMatrixToken reports whether s is exactly one ${{ matrix.<key> }}
// token with no surrounding text, returning the axis key.
func soleMatrixToken(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "${{") || !strings.HasSuffix(trimmed, "}}") {
		return "", false
	}
	if strings.Count(trimmed, "${{") != 1 {
		return "", false
	}
	return extractToken(trimmed), true
}

func extractToken(token string) string {
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(token, "${{"), "}}"))
	return strings.TrimSpace(strings.TrimPrefix(inner, "matrix."))
}
