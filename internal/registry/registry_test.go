package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeParametersExplicitWinsOverDefaults(t *testing.T) {
	merged := MergeParameters(
		map[string]interface{}{"a": 1, "b": 2},
		map[string]interface{}{"b": 3},
	)
	assert.Equal(t, 1, merged["a"])
	assert.Equal(t, 3, merged["b"])
}

func TestMergeParametersNilDropsDefault(t *testing.T) {
	merged := MergeParameters(
		map[string]interface{}{"a": 1},
		map[string]interface{}{"a": nil},
	)
	_, exists := merged["a"]
	assert.False(t, exists)
}

func TestInvokeDispatchesToKwargsFunc(t *testing.T) {
	r := New()
	r.Register("tests.add", Entry{
		ArgSource: ArgKwargs,
		Kwargs: func(ctx context.Context, params map[string]interface{}) (Result, error) {
			a := params["a"].(int)
			b := params["b"].(int)
			return Result{Results: map[string]interface{}{"sum": a + b}}, nil
		},
	})

	result, err := r.Invoke(context.Background(), "tests.add", map[string]interface{}{"a": 1, "b": 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Results["sum"])
}

func TestInvokeMergesDefaultsForKwargsFunc(t *testing.T) {
	r := New()
	r.Register("tests.greet", Entry{
		ArgSource: ArgKwargs,
		Defaults:  map[string]interface{}{"greeting": "hello"},
		Kwargs: func(ctx context.Context, params map[string]interface{}) (Result, error) {
			return Result{Results: map[string]interface{}{"msg": params["greeting"]}}, nil
		},
	})

	result, err := r.Invoke(context.Background(), "tests.greet", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Results["msg"])
}

func TestInvokeDispatchesToWorkFunc(t *testing.T) {
	r := New()
	r.Register("tests.whole_work", Entry{
		ArgSource: ArgWork,
		Work: func(ctx context.Context, w map[string]interface{}) (Result, error) {
			return Result{Results: map[string]interface{}{"pipeline": w["pipeline"]}}, nil
		},
	})

	result, err := r.Invoke(context.Background(), "tests.whole_work", nil, map[string]interface{}{"pipeline": "demo"})
	require.NoError(t, err)
	assert.Equal(t, "demo", result.Results["pipeline"])
}

func TestInvokeFailsForUnknownName(t *testing.T) {
	r := New()
	_, err := r.Invoke(context.Background(), "missing.fn", nil, nil)
	assert.Error(t, err)
}
