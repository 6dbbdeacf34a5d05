package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfigStore loads every Pipeline Configuration YAML file from a
// directory and resolves them by name, the way workspace.Resolve
// resolves a named workspace from a directory of YAML files. It is
// the ConfigProvider the audit daemon uses to check whether a running
// Work's step still exists in its pipeline's live configuration.
type ConfigStore struct {
	byName map[string]*Configuration
}

// LoadConfigStore reads every *.yml/*.yaml file directly under dir and
// indexes the resulting Configurations by their Name field. A file
// that fails to parse is skipped with its error collected, rather than
// aborting the whole load — one malformed configuration shouldn't
// blind the audit daemon to every other pipeline.
func LoadConfigStore(dir string) (*ConfigStore, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("pipeline: read config dir %s: %w", dir, err)}
	}

	store := &ConfigStore{byName: make(map[string]*Configuration)}
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yml") && !strings.HasSuffix(name, ".yaml") {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("pipeline: read %s: %w", path, err))
			continue
		}
		cfg, err := Parse(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("pipeline: parse %s: %w", path, err))
			continue
		}
		store.byName[cfg.Name] = cfg
	}
	return store, errs
}

// Lookup implements audit.ConfigProvider.
func (s *ConfigStore) Lookup(pipelineName string) (*Configuration, bool) {
	cfg, ok := s.byName[pipelineName]
	return cfg, ok
}
