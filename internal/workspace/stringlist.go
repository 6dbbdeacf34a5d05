package workspace

import "gopkg.in/yaml.v3"

// StringList unmarshals either a bare scalar string or a YAML sequence
// of strings into a single []string.
type StringList []string

func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*s = []string{single}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		*s = nil
		return nil
	}
}
