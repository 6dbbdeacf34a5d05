// Package pipeline expands a declarative Pipeline Configuration
// document (defaults, matrices, stages, conditionals, a cron
// schedule) into a deterministic, stage-ordered list of concrete Work
// items. The expander is a pure transformation: it holds no state of
// its own, the pipelines manager service does.
package pipeline

// Configuration is the top-level Pipeline Configuration document.
type Configuration struct {
	Version  int                 `yaml:"version"`
	Name     string              `yaml:"name"`
	Defaults map[string]interface{} `yaml:"defaults,omitempty"`
	Matrix   Matrix              `yaml:"matrix,omitempty"`
	Schedule *Schedule           `yaml:"schedule,omitempty"`
	Pipeline map[string]*Step    `yaml:"pipeline"`
}

// Schedule registers a configuration with the pipelines manager for
// periodic firing.
type Schedule struct {
	Cronspec string `yaml:"cronspec"`
	// Count bounds the number of firings; 0 means unbounded.
	Count int `yaml:"count,omitempty"`
}

// Step is one entry in a Pipeline Configuration's step mapping.
type Step struct {
	Stage  int                    `yaml:"stage"`
	Work   map[string]interface{} `yaml:"work"`
	Matrix Matrix                 `yaml:"matrix,omitempty"`
	// If is an expression over the pipeline execution context, or one
	// of the reserved literals success/failure/always.
	If      string   `yaml:"if,omitempty"`
	RunsOn  string   `yaml:"runs_on,omitempty"`
	Services []string `yaml:"services,omitempty"`

	// name is the step's key in Configuration.Pipeline, set by Parse
	// so later stages can be labeled without re-threading the map.
	name string
}

// Name returns the step's key in its owning Configuration.
func (s *Step) Name() string { return s.name }

// Matrix is a parameter-space specification: axis name to either an
// explicit list of values or a {range: [lo, hi]} bound.
type Matrix map[string]Axis

// Axis is one matrix dimension. Exactly one of Values or Range is set.
type Axis struct {
	Values []interface{} `yaml:"-"`
	Range  *RangeBound   `yaml:"range,omitempty"`
}

// RangeBound is an inclusive integer range, lo <= hi.
type RangeBound struct {
	Lo int
	Hi int
}

// ExpandedStep is one concrete Work-bearing unit produced for a single
// step's matrix element.
type ExpandedStep struct {
	StepName string
	Stage    int
	If       string
	Work     map[string]interface{}
}
