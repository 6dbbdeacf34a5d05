package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `
workspace: lab1
sites: [site-a, site-b]
http:
  baseurls:
    buckets: http://bucket.internal
    results: [http://results-a.internal, http://results-b.internal]
    pipelines: http://pipelines.internal
archive:
  posix:
    site-a: /archive/site-a
  s3:
    site-b:
      url: https://s3.internal
      bucket: lab-archive
      subpath: site-b
config:
  archive:
    results: true
    plots: copy
    products: move
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolveLoadsValidDocumentByPath(t *testing.T) {
	path := writeTemp(t, "lab1.yml", validDoc)
	ws, err := Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, "lab1", ws.Name)
	assert.ElementsMatch(t, []string{"site-a", "site-b"}, ws.Sites)
	assert.Equal(t, []string{"http://bucket.internal"}, []string(ws.HTTP.BaseURLs.Buckets))
	assert.Equal(t, []string{"http://results-a.internal", "http://results-b.internal"}, []string(ws.HTTP.BaseURLs.Results))

	root, ok := ws.POSIXRoot("site-a")
	require.True(t, ok)
	assert.Equal(t, "/archive/site-a", root)

	target, ok := ws.S3Target("site-b")
	require.True(t, ok)
	assert.Equal(t, "lab-archive", target.Bucket)
}

func TestResolveRejectsMissingWorkspaceName(t *testing.T) {
	path := writeTemp(t, "bad.yml", `
sites: [site-a]
http:
  baseurls:
    buckets: http://bucket.internal
`)
	_, err := Resolve(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestResolveRejectsMissingBucketURL(t *testing.T) {
	path := writeTemp(t, "bad2.yml", `
workspace: lab1
sites: [site-a]
`)
	_, err := Resolve(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buckets")
}

func TestResolveFailsOnAbsentActiveWorkspace(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := Resolve("")
	require.Error(t, err)
}

func TestAllowedSitesMatchesWorkspaceSites(t *testing.T) {
	path := writeTemp(t, "lab1.yml", validDoc)
	ws, err := Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, ws.Sites, ws.AllowedSites())
}
