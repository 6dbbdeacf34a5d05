package pipeline

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes an axis from either an explicit list of
// values or a {range: [lo, hi]} mapping.
func (a *Axis) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var values []interface{}
		if err := value.Decode(&values); err != nil {
			return err
		}
		a.Values = values
		return nil
	case yaml.MappingNode:
		var wrapper struct {
			Range []int `yaml:"range"`
		}
		if err := value.Decode(&wrapper); err != nil {
			return err
		}
		if len(wrapper.Range) != 2 {
			return fmt.Errorf("pipeline: matrix range must be [lo, hi], got %v", wrapper.Range)
		}
		lo, hi := wrapper.Range[0], wrapper.Range[1]
		if lo > hi {
			return fmt.Errorf("pipeline: matrix range lo (%d) must be <= hi (%d)", lo, hi)
		}
		a.Range = &RangeBound{Lo: lo, Hi: hi}
		return nil
	default:
		return fmt.Errorf("pipeline: matrix axis must be a list or a range mapping")
	}
}

// values returns the axis's concrete element list, expanding a range
// into its inclusive integer sequence.
func (a Axis) values() []interface{} {
	if a.Range != nil {
		out := make([]interface{}, 0, a.Range.Hi-a.Range.Lo+1)
		for v := a.Range.Lo; v <= a.Range.Hi; v++ {
			out = append(out, v)
		}
		return out
	}
	return a.Values
}
