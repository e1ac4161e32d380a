package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/wwwzy/wxorca/internal/state"
)

// 任意拓扑（含环）的图都必须在 MaxIterations 次节点执行内结束。
func TestRunAlwaysTerminates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "nodes")
		limit := rapid.IntRange(1, 30).Draw(t, "max_iterations")

		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("n%d", i)
		}
		targets := append([]string{END}, ids...)

		b := NewBuilder("random")
		for i, id := range ids {
			sig := Continue
			if rapid.Bool().Draw(t, fmt.Sprintf("finish_%d", i)) {
				sig = Finish
			}
			b.AddNode(NodeFunc(id, "", func(ctx context.Context, h *state.Handle) (Signal, error) {
				return sig, nil
			}))

			if rapid.Bool().Draw(t, fmt.Sprintf("conditional_%d", i)) {
				seq := rapid.SliceOfN(rapid.SampledFrom(targets), 1, 5).Draw(t, fmt.Sprintf("routes_%d", i))
				b.AddConditionalEdge(id, func(s *state.ConversationState) string {
					return seq[s.Iteration%len(seq)]
				})
			} else if rapid.Bool().Draw(t, fmt.Sprintf("has_edge_%d", i)) {
				b.AddEdge(id, rapid.SampledFrom(targets).Draw(t, fmt.Sprintf("edge_%d", i)))
			}
		}
		b.SetEntryPoint(ids[0])

		g, err := b.Compile()
		if err != nil {
			t.Fatalf("compile: %v", err)
		}

		final, err := NewRunner(Config{MaxIterations: limit}).Run(context.Background(), g, state.NewConversationState(""))
		if final == nil {
			t.Fatalf("no final state, err=%v", err)
		}
		if final.Iteration > limit {
			t.Fatalf("executed %d nodes, limit %d", final.Iteration, limit)
		}
		if err != nil {
			if !errors.Is(err, ErrRunExhausted) {
				t.Fatalf("unexpected error: %v", err)
			}
			if final.Iteration != limit {
				t.Fatalf("exhausted after %d nodes, limit %d", final.Iteration, limit)
			}
		}
	})
}
