// Package work defines the Work entity — the atomic unit of deferred
// computation dispatched by the runner — its lifecycle states, and the
// validator that normalizes and rejects malformed Work payloads.
package work

// Status is the externally-visible lifecycle state of a Work item.
type Status string

const (
	StatusCreated   Status = "created"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether s is a final state: the runner may not
// re-mutate a Work once it reaches one of these.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// ArchiveMode is one of the artifact disposition modes applied by the
// transfer daemon to a single artifact class.
type ArchiveMode string

const (
	ArchiveBypass ArchiveMode = "bypass"
	ArchiveCopy   ArchiveMode = "copy"
	ArchiveMove   ArchiveMode = "move"
	ArchiveDelete ArchiveMode = "delete"
	ArchiveUpload ArchiveMode = "upload"
)

// ArchiveConfig names the archival mode per artifact class. Results is
// a bool in the wire format (deposit-to-results-service on/off rather
// than a storage mode).
type ArchiveConfig struct {
	Results  bool        `json:"results"`
	Plots    ArchiveMode `json:"plots,omitempty"`
	Products ArchiveMode `json:"products,omitempty"`
}

// Config carries the Work's archival and notification settings.
type Config struct {
	Archive      ArchiveConfig `json:"archive"`
	Notification *Notification `json:"notification,omitempty"`
}

// Notification carries channel/recipient/template fields through
// without interpreting them; their semantics are left to the external
// notification service.
type Notification struct {
	Channel         string   `json:"channel,omitempty"`
	MemberIDs       []string `json:"member_ids,omitempty"`
	Template        string   `json:"template,omitempty"`
	IncludeResults  bool     `json:"include_results,omitempty"`
	IncludeProducts bool     `json:"include_products,omitempty"`
	IncludePlots    bool     `json:"include_plots,omitempty"`
	Reply           bool     `json:"reply,omitempty"`
}

// Work is the canonical unit of deferred computation.
type Work struct {
	ID       string `json:"id,omitempty"`
	Pipeline string `json:"pipeline"`
	Site     string `json:"site,omitempty"`
	User     string `json:"user,omitempty"`

	// Payload discriminant: exactly one of Function/Command is set.
	Function string   `json:"function,omitempty"`
	Command  []string `json:"command,omitempty"`

	Parameters map[string]interface{} `json:"parameters,omitempty"`

	Timeout  int `json:"timeout"`
	Retries  int `json:"retries"`
	Priority int `json:"priority"`
	Attempt  int `json:"attempt"`

	Event []int    `json:"event,omitempty"`
	Tags  []string `json:"tags,omitempty"`
	Group []string `json:"group,omitempty"`

	Results  map[string]interface{} `json:"results,omitempty"`
	Products []string               `json:"products,omitempty"`
	Plots    []string               `json:"plots,omitempty"`

	ConfigField Config `json:"config"`

	Creation float64 `json:"creation,omitempty"`
	Start    float64 `json:"start,omitempty"`
	Stop     float64 `json:"stop,omitempty"`

	Status Status `json:"status,omitempty"`
}

const (
	// DefaultTimeout is applied when Timeout is zero/unset.
	DefaultTimeout = 3600
	// MaxTimeout is the upper bound enforced by the validator.
	MaxTimeout = 86400
	// DefaultRetries is applied when Retries is unset (distinguished
	// from zero by the ingestion point passing work.UnsetRetries).
	DefaultRetries = 2
	// DefaultPriority is applied when Priority is zero/unset.
	DefaultPriority = 3
	// MinPriority and MaxPriority bound the priority field.
	MinPriority = 1
	MaxPriority = 5
)

// UnsetRetries is a sentinel an ingestion point may set on Retries to
// request the default rather than an explicit 0.
const UnsetRetries = -1

// New returns a Work with Retries defaulted to the unset sentinel, so
// that Validate fills in DefaultRetries rather than treating a zero
// value as an explicit "no retries". Callers deserializing a raw
// payload that distinguishes "retries absent" from "retries: 0" should
// set Retries explicitly after unmarshaling into a New()-initialized
// Work.
func New() *Work {
	return &Work{Retries: UnsetRetries}
}
