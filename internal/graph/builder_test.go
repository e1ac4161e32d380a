package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/wxorca/internal/state"
)

func noop(id string) Node {
	return NodeFunc(id, "", func(ctx context.Context, st *state.Handle) (Signal, error) {
		return Continue, nil
	})
}

func toEnd(*state.ConversationState) string { return END }

func TestCompileErrors(t *testing.T) {
	cases := []struct {
		name   string
		build  func() *Builder
		reason string
	}{
		{
			name:   "missing entry point",
			build:  func() *Builder { return NewBuilder("g").AddNode(noop("a")) },
			reason: "entry point not set",
		},
		{
			name:   "unknown entry point",
			build:  func() *Builder { return NewBuilder("g").AddNode(noop("a")).SetEntryPoint("b") },
			reason: "entry point references unknown node",
		},
		{
			name: "duplicate node",
			build: func() *Builder {
				return NewBuilder("g").AddNode(noop("a")).AddNode(noop("a")).SetEntryPoint("a")
			},
			reason: "duplicate node id",
		},
		{
			name: "dangling target",
			build: func() *Builder {
				return NewBuilder("g").AddNode(noop("a")).SetEntryPoint("a").AddEdge("a", "ghost")
			},
			reason: `edge references unknown target node "ghost"`,
		},
		{
			name: "dangling source",
			build: func() *Builder {
				return NewBuilder("g").AddNode(noop("a")).SetEntryPoint("a").AddEdge("ghost", "a")
			},
			reason: "edge references unknown source node",
		},
		{
			name: "two unconditional edges",
			build: func() *Builder {
				return NewBuilder("g").AddNode(noop("a")).AddNode(noop("b")).SetEntryPoint("a").
					AddEdge("a", "b").AddEdge("a", END)
			},
			reason: "multiple unconditional edges from the same node",
		},
		{
			name: "conditional then unconditional",
			build: func() *Builder {
				return NewBuilder("g").AddNode(noop("a")).AddNode(noop("b")).SetEntryPoint("a").
					AddConditionalEdge("a", toEnd).AddEdge("a", "b")
			},
			reason: "node has both conditional and unconditional edges",
		},
		{
			name: "unconditional then conditional",
			build: func() *Builder {
				return NewBuilder("g").AddNode(noop("a")).AddNode(noop("b")).SetEntryPoint("a").
					AddEdge("a", "b").AddConditionalEdge("a", toEnd)
			},
			reason: "node has both conditional and unconditional edges",
		},
		{
			name: "two conditional edges",
			build: func() *Builder {
				return NewBuilder("g").AddNode(noop("a")).SetEntryPoint("a").
					AddConditionalEdge("a", toEnd).AddConditionalEdge("a", toEnd)
			},
			reason: "multiple conditional edges from the same node",
		},
		{
			name: "undeclared branch target",
			build: func() *Builder {
				return NewBuilder("g").AddNode(noop("a")).SetEntryPoint("a").
					AddConditionalEdge("a", toEnd, "ghost", END)
			},
			reason: `conditional edge references unknown target node "ghost"`,
		},
		{
			name:   "reserved id",
			build:  func() *Builder { return NewBuilder("g").AddNode(noop(END)) },
			reason: "node id is reserved",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, err := tc.build().Compile()
			require.Error(t, err)
			assert.Nil(t, g)
			assert.True(t, errors.Is(err, ErrBuild))

			var be *BuildError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tc.reason, be.Reason)
		})
	}
}

func TestCompileValidGraph(t *testing.T) {
	g, err := NewBuilder("demo").
		AddNode(noop("analyze")).
		AddNode(noop("respond")).
		AddNode(noop("execute_tools")).
		SetEntryPoint("analyze").
		AddEdge("analyze", "respond").
		AddConditionalEdge("respond", toEnd, "execute_tools", END).
		AddEdge("execute_tools", "respond").
		Compile()
	require.NoError(t, err)

	assert.Equal(t, "demo", g.Name())
	assert.Equal(t, "analyze", g.Entry())
	assert.Equal(t, []string{"analyze", "respond", "execute_tools"}, g.Nodes())
	assert.Equal(t, map[string]string{"analyze": "respond", "execute_tools": "respond"}, g.Edges())
	assert.Equal(t, []string{"respond"}, g.ConditionalSources())

	n, ok := g.Node("respond")
	require.True(t, ok)
	assert.Equal(t, "respond", n.ID())
}
