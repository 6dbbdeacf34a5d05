package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandMatrixCardinalityIsProductOfAxes(t *testing.T) {
	doc := []byte(`
version: 1
name: demo
pipeline:
  step1:
    stage: 1
    work:
      function: tests.run
      parameters:
        job_id: "${{ matrix.job_id }}"
        site: "${{ matrix.site }}"
    matrix:
      job_id: [1, 2]
      site: [a, b]
`)
	cfg, err := Parse(doc)
	require.NoError(t, err)

	expanded, err := Expand(cfg)
	require.NoError(t, err)
	require.Len(t, expanded, 4)

	seen := map[string]bool{}
	for _, e := range expanded {
		params := e.Work["parameters"].(map[string]interface{})
		key := toString(params["job_id"]) + "/" + toString(params["site"])
		assert.False(t, seen[key], "duplicate tuple %s", key)
		seen[key] = true
	}
	assert.Len(t, seen, 4)
}

func TestExpandSubstitutesSoleTokenPreservingType(t *testing.T) {
	doc := []byte(`
version: 1
name: demo
pipeline:
  step1:
    stage: 1
    work:
      function: tests.run
      parameters:
        job_id: "${{ matrix.job_id }}"
    matrix:
      job_id:
        range: [1, 1]
`)
	cfg, err := Parse(doc)
	require.NoError(t, err)

	expanded, err := Expand(cfg)
	require.NoError(t, err)
	require.Len(t, expanded, 1)

	params := expanded[0].Work["parameters"].(map[string]interface{})
	assert.Equal(t, 1, params["job_id"])
}

func TestExpandInterpolatesEmbeddedToken(t *testing.T) {
	doc := []byte(`
version: 1
name: demo
pipeline:
  step1:
    stage: 1
    work:
      function: tests.run
      parameters:
        label: "job-${{ matrix.job_id }}"
    matrix:
      job_id: [7]
`)
	cfg, err := Parse(doc)
	require.NoError(t, err)

	expanded, err := Expand(cfg)
	require.NoError(t, err)
	require.Len(t, expanded, 1)

	params := expanded[0].Work["parameters"].(map[string]interface{})
	assert.Equal(t, "job-7", params["label"])
}

func TestExpandLayersDefaultsUnderStepWork(t *testing.T) {
	doc := []byte(`
version: 1
name: demo
defaults:
  timeout: 120
pipeline:
  step1:
    stage: 1
    work:
      function: tests.run
      timeout: 60
`)
	cfg, err := Parse(doc)
	require.NoError(t, err)

	expanded, err := Expand(cfg)
	require.NoError(t, err)
	require.Len(t, expanded, 1)
	assert.Equal(t, 60, expanded[0].Work["timeout"])
}

func TestExpandGroupsStepsByAscendingStage(t *testing.T) {
	doc := []byte(`
version: 1
name: demo
pipeline:
  b:
    stage: 2
    work: {function: tests.b}
  a:
    stage: 1
    work: {function: tests.a}
`)
	cfg, err := Parse(doc)
	require.NoError(t, err)

	expanded, err := Expand(cfg)
	require.NoError(t, err)
	require.Len(t, expanded, 2)
	assert.Equal(t, 1, expanded[0].Stage)
	assert.Equal(t, 2, expanded[1].Stage)
}

func TestExpandStampsStepNameIntoGroup(t *testing.T) {
	doc := []byte(`
version: 1
name: demo
pipeline:
  step1:
    stage: 1
    work: {function: tests.run}
`)
	cfg, err := Parse(doc)
	require.NoError(t, err)

	expanded, err := Expand(cfg)
	require.NoError(t, err)
	require.Len(t, expanded, 1)
	assert.Equal(t, []interface{}{"step1"}, expanded[0].Work["group"])
}

func toString(v interface{}) string {
	return fmt.Sprintf("%v", v)
}
