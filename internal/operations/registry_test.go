package operations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinRegistry(t *testing.T) {
	reg := BuiltinRegistry()

	for _, typ := range []Type{TypeParsePRD, TypeAnalyzeComplexity, TypeExpandTask, TypeExpandAll} {
		cfg, ok := reg.Lookup(typ)
		require.True(t, ok, "missing config for %s", typ)
		assert.Equal(t, typ, cfg.Type)
		assert.NotEmpty(t, cfg.Title)
		assert.NotEmpty(t, cfg.Phases)
		assert.NotEmpty(t, cfg.ProgressHints)
	}

	_, ok := reg.Lookup(Type("nope"))
	assert.False(t, ok)
}

func TestStateClassification(t *testing.T) {
	assert.True(t, StatePreparing.Running())
	assert.True(t, StateProcessing.Running())
	assert.False(t, StateIdle.Running())
	assert.False(t, StateCompleted.Running())

	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.True(t, StateErrored.Terminal())
	assert.False(t, StateProcessing.Terminal())
	assert.False(t, StateIdle.Terminal())
}
