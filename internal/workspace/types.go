// Package workspace resolves a named environment into the service
// endpoints, allowed sites, archive storage policy, and logging sinks
// that every other component treats as process-wide ambient
// configuration, loaded once at startup and passed explicitly to
// constructors.
package workspace

// Document is the on-disk YAML shape of a workspace.
type Document struct {
	Workspace string   `yaml:"workspace"`
	Sites     []string `yaml:"sites"`
	HTTP      HTTP     `yaml:"http"`
	Archive   Archive  `yaml:"archive"`
	Config    Config   `yaml:"config"`
}

// HTTP carries the candidate base URL list per backend service. Each
// entry may be a single string or a list in YAML; BaseURLs normalizes
// both into a slice.
type HTTP struct {
	BaseURLs BaseURLs `yaml:"baseurls"`
}

// BaseURLs holds the per-service candidate endpoint lists.
type BaseURLs struct {
	Buckets   StringList `yaml:"buckets"`
	Results   StringList `yaml:"results"`
	Pipelines StringList `yaml:"pipelines"`
	Loki      StringList `yaml:"loki"`
	Products  StringList `yaml:"products"`
}

// Archive carries the per-site storage backend configuration.
type Archive struct {
	POSIX map[string]string   `yaml:"posix"`
	S3    map[string]S3Target `yaml:"s3"`
}

// S3Target names an object-store location for one site.
type S3Target struct {
	URL     string `yaml:"url"`
	Bucket  string `yaml:"bucket"`
	Subpath string `yaml:"subpath,omitempty"`
}

// Config carries the workspace document's config.archive section. It
// is loaded onto Workspace but not applied to Work items: the transfer
// daemon archives each item by that item's own config.archive only.
type Config struct {
	Archive ArchivePolicy `yaml:"archive"`
}

// ArchivePolicy is the workspace-level archive disposition read from
// config.archive.
type ArchivePolicy struct {
	Results     bool   `yaml:"results"`
	Plots       string `yaml:"plots,omitempty"`
	Products    string `yaml:"products,omitempty"`
	Permissions string `yaml:"permissions,omitempty"`
}

// Workspace is the resolved, validated runtime view of a Document.
type Workspace struct {
	Name  string
	Sites []string
	HTTP  HTTP
	Archive Archive
	Config  Config
}

// AllowedSites implements the site-checking contract consumed by
// internal/work's Validator.
func (w *Workspace) AllowedSites() []string { return w.Sites }

// POSIXRoot returns the archive root configured for site, or ("", false)
// if the site has no POSIX archive root.
func (w *Workspace) POSIXRoot(site string) (string, bool) {
	root, ok := w.Archive.POSIX[site]
	return root, ok
}

// S3Target returns the object-store target configured for site.
func (w *Workspace) S3Target(site string) (S3Target, bool) {
	target, ok := w.Archive.S3[site]
	return target, ok
}
