package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, filename, name string) {
	t.Helper()
	doc := []byte(`
version: 1
name: ` + name + `
pipeline:
  step1:
    stage: 1
    work:
      function: tests.add
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), doc, 0o644))
}

func TestLoadConfigStoreIndexesByName(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "alpha.yml", "alpha")
	writeConfigFile(t, dir, "beta.yaml", "beta")

	store, errs := LoadConfigStore(dir)
	require.Empty(t, errs)

	cfg, ok := store.Lookup("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha", cfg.Name)

	cfg, ok = store.Lookup("beta")
	require.True(t, ok)
	assert.Equal(t, "beta", cfg.Name)

	_, ok = store.Lookup("missing")
	assert.False(t, ok)
}

func TestLoadConfigStoreSkipsNonYAMLAndCollectsParseErrors(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "good.yml", "good")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("not: [valid"), 0o644))

	store, errs := LoadConfigStore(dir)
	require.Len(t, errs, 1)

	_, ok := store.Lookup("good")
	assert.True(t, ok)
}
