package pipeline

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DarrenZal/koi-node/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewLogger(io.Discard, logger.ErrorLevel)
}

func TestBlockSelfReferentialStopsForeignEcho(t *testing.T) {
	hctx := &Context{NodeRID: "orn:koi-net.node:me+abc"}
	obj := &Object{RID: "orn:koi-net.node:me+abc", SourceNode: "orn:koi-net.node:other+def"}

	err := BlockSelfReferential(testLogger())(context.Background(), hctx, obj)
	assert.ErrorIs(t, err, ErrStopChain)
}

func TestBlockSelfReferentialAllowsOwnSource(t *testing.T) {
	hctx := &Context{NodeRID: "orn:koi-net.node:me+abc"}
	obj := &Object{RID: "orn:koi-net.node:me+abc", SourceNode: "orn:koi-net.node:me+abc"}

	err := BlockSelfReferential(testLogger())(context.Background(), hctx, obj)
	assert.NoError(t, err)
}

func TestSetForgetFlag(t *testing.T) {
	obj := &Object{EventType: "FORGET"}
	require.NoError(t, SetForgetFlag(context.Background(), &Context{}, obj))
	assert.Equal(t, "FORGET", obj.NormalizedEventType)

	obj2 := &Object{EventType: "NEW"}
	require.NoError(t, SetForgetFlag(context.Background(), &Context{}, obj2))
	assert.Empty(t, obj2.NormalizedEventType)
}

func TestExtractEntityTypeStripsOntologyPrefix(t *testing.T) {
	obj := &Object{Contents: map[string]any{"name": "Jane Smith", "@type": "bkc:Person"}}
	require.NoError(t, ExtractEntityType(context.Background(), &Context{}, obj))
	assert.Equal(t, "Jane Smith", obj.EntityName)
	assert.Equal(t, "Person", obj.EntityType)
}

func TestExtractEntityTypeFallsBackToEntityTypeField(t *testing.T) {
	obj := &Object{Contents: map[string]any{"name": "Acme Corp", "entity_type": "Organization"}}
	require.NoError(t, ExtractEntityType(context.Background(), &Context{}, obj))
	assert.Equal(t, "Organization", obj.EntityType)
}

func TestConfidenceChanged(t *testing.T) {
	assert.False(t, confidenceChanged(0.85, 0.8505))
	assert.True(t, confidenceChanged(0.85, 0.95))
}

func TestPipelineProcessRunsPhasesInOrder(t *testing.T) {
	var order []string
	handlers := []Handler{
		{Phase: PhaseFinal, Name: "final", Fn: func(_ context.Context, _ *Context, _ *Object) error {
			order = append(order, "final")
			return nil
		}},
		{Phase: PhaseRID, Name: "rid", Fn: func(_ context.Context, _ *Context, _ *Object) error {
			order = append(order, "rid")
			return nil
		}},
		{Phase: PhaseBundle, Name: "bundle", Fn: func(_ context.Context, _ *Context, _ *Object) error {
			order = append(order, "bundle")
			return nil
		}},
	}
	p := New(&Context{}, handlers, testLogger())
	result, err := p.Process(context.Background(), &Object{RID: "r1"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, []string{"rid", "bundle", "final"}, order)
}

func TestPipelineProcessStopChainHaltsRemainingPhases(t *testing.T) {
	var ran []string
	handlers := []Handler{
		{Phase: PhaseRID, Name: "stopper", Fn: func(_ context.Context, _ *Context, _ *Object) error {
			ran = append(ran, "rid")
			return ErrStopChain
		}},
		{Phase: PhaseBundle, Name: "bundle", Fn: func(_ context.Context, _ *Context, _ *Object) error {
			ran = append(ran, "bundle")
			return nil
		}},
	}
	p := New(&Context{}, handlers, testLogger())
	result, err := p.Process(context.Background(), &Object{RID: "r1"})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, []string{"rid"}, ran)
}

func TestPipelineProcessPropagatesHandlerError(t *testing.T) {
	boom := errors.New("boom")
	handlers := []Handler{
		{Phase: PhaseRID, Name: "failer", Fn: func(_ context.Context, _ *Context, _ *Object) error {
			return boom
		}},
	}
	p := New(&Context{}, handlers, testLogger())
	result, err := p.Process(context.Background(), &Object{RID: "r1"})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, result)
}

func TestHandlerFilterByEntityType(t *testing.T) {
	h := Handler{EntityTypes: EntityTypeSet("Person", "Organization")}
	assert.True(t, h.matches(&Object{EntityType: "Person"}))
	assert.False(t, h.matches(&Object{EntityType: "Location"}))
}

func TestHandlerFilterByEventType(t *testing.T) {
	h := Handler{EventTypes: EntityTypeSet("NEW", "UPDATE")}
	assert.True(t, h.matches(&Object{EventType: "NEW"}))
	assert.False(t, h.matches(&Object{EventType: "FORGET"}))
}
