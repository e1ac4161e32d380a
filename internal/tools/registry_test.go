package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/wxorca/internal/state"
	"github.com/wwwzy/wxorca/internal/storage"
)

type fakeTool struct {
	name   string
	params map[string]*schema.ParameterInfo
	run    func(ctx context.Context, args string) (string, error)
}

func (f *fakeTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	info := &schema.ToolInfo{Name: f.name, Desc: "fake"}
	if f.params != nil {
		info.ParamsOneOf = schema.NewParamsOneOfByParams(f.params)
	}
	return info, nil
}

func (f *fakeTool) InvokableRun(ctx context.Context, args string, _ ...tool.Option) (string, error) {
	return f.run(ctx, args)
}

func echoTool(name string) *fakeTool {
	return &fakeTool{name: name, run: func(_ context.Context, args string) (string, error) { return args, nil }}
}

type recordingObserver struct {
	mu    sync.Mutex
	calls map[string]int
	fails int
}

func (o *recordingObserver) ObserveTool(name string, _ time.Duration, failed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = map[string]int{}
	}
	o.calls[name]++
	if failed {
		o.fails++
	}
}

func errorOf(t *testing.T, content string) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(content), &body))
	return body["error"]
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry(Config{})
	res := r.Execute(context.Background(), state.ToolCall{ID: "c1", Name: "nope", Arguments: json.RawMessage(`{}`)})

	assert.Equal(t, "c1", res.CallID)
	assert.Equal(t, "nope", res.Name)
	assert.True(t, res.Failed)
	assert.Equal(t, "tool not found: nope", errorOf(t, res.Content))
}

func TestRegistryRegisterDuplicate(t *testing.T) {
	r := NewRegistry(Config{})
	require.NoError(t, r.Register(echoTool("echo")))
	err := r.Register(echoTool("echo"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
	assert.Equal(t, []string{"echo"}, r.Names())
}

func TestRegistryValidatesArguments(t *testing.T) {
	r, err := NewBuiltinRegistry(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{FetchExamplesName, SearchDocsName, ValidateConfigName}, r.Names())
	require.Len(t, r.Infos(), 3)

	cases := []struct {
		name string
		call state.ToolCall
	}{
		{"missing required", state.ToolCall{ID: "a", Name: SearchDocsName, Arguments: json.RawMessage(`{"limit": 2}`)}},
		{"wrong type", state.ToolCall{ID: "b", Name: SearchDocsName, Arguments: json.RawMessage(`{"query": 42}`)}},
		{"enum", state.ToolCall{ID: "c", Name: ValidateConfigName, Arguments: json.RawMessage(`{"config_type": "bogus", "config": {}}`)}},
		{"not json", state.ToolCall{ID: "d", Name: FetchExamplesName, Arguments: json.RawMessage(`not json`)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := r.Execute(context.Background(), tc.call)
			assert.True(t, res.Failed)
			assert.Contains(t, errorOf(t, res.Content), "invalid arguments")
		})
	}
}

func TestRegistryNormalizesEmptyArguments(t *testing.T) {
	r := NewRegistry(Config{})
	require.NoError(t, r.Register(echoTool("echo")))

	for _, raw := range []string{"", "{", "null"} {
		res := r.Execute(context.Background(), state.ToolCall{ID: "x", Name: "echo", Arguments: json.RawMessage(raw)})
		assert.False(t, res.Failed, raw)
		assert.Equal(t, "{}", res.Content, raw)
	}
}

func TestRegistryTimeoutAndPanic(t *testing.T) {
	obs := &recordingObserver{}
	r := NewRegistry(Config{Timeout: 20 * time.Millisecond}, WithObserver(obs))
	require.NoError(t, r.Register(&fakeTool{name: "slow", run: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}))
	require.NoError(t, r.Register(&fakeTool{name: "boom", run: func(context.Context, string) (string, error) {
		panic("kaboom")
	}}))

	res := r.Execute(context.Background(), state.ToolCall{ID: "1", Name: "slow"})
	assert.True(t, res.Failed)
	assert.Contains(t, errorOf(t, res.Content), "timed out")

	res = r.Execute(context.Background(), state.ToolCall{ID: "2", Name: "boom"})
	assert.True(t, res.Failed)
	assert.Contains(t, errorOf(t, res.Content), "kaboom")

	assert.Equal(t, 2, obs.fails)
	assert.Equal(t, map[string]int{"slow": 1, "boom": 1}, obs.calls)
}

func TestRegistryExecuteAllKeepsOrder(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		r := NewRegistry(Config{Parallel: parallel, MaxParallel: 3})
		delays := map[string]time.Duration{"a": 30 * time.Millisecond, "b": 0, "c": 10 * time.Millisecond}
		for name, d := range delays {
			name, d := name, d
			require.NoError(t, r.Register(&fakeTool{name: name, run: func(context.Context, string) (string, error) {
				time.Sleep(d)
				return name, nil
			}}))
		}

		calls := []state.ToolCall{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}, {ID: "3", Name: "missing"}, {ID: "4", Name: "c"}}
		results := r.ExecuteAll(context.Background(), calls)
		require.Len(t, results, 4)
		for i, c := range calls {
			assert.Equal(t, c.ID, results[i].CallID)
		}
		assert.Equal(t, "a", results[0].Content)
		assert.Equal(t, "b", results[1].Content)
		assert.True(t, results[2].Failed)
		assert.Equal(t, "c", results[3].Content)
	}
}

func TestRegistryAuditsCalls(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.Config{Path: filepath.Join(t.TempDir(), "audit.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	r, err := NewBuiltinRegistry(Config{}, nil, WithAudit(store))
	require.NoError(t, err)
	require.NoError(t, r.Register(&fakeTool{name: "broken", run: func(context.Context, string) (string, error) {
		return "", assert.AnError
	}}))

	runCtx := WithSessionID(WithTraceID(ctx, "trace-9"), "sess-9")
	ok := r.Execute(runCtx, state.ToolCall{ID: "1", Name: SearchDocsName, Arguments: json.RawMessage(`{"query":"skills"}`)})
	require.False(t, ok.Failed)
	bad := r.Execute(runCtx, state.ToolCall{ID: "2", Name: "broken", Arguments: json.RawMessage(`{}`)})
	require.True(t, bad.Failed)

	recs, err := store.QueryAuditRecords(ctx, storage.AuditQuery{TraceID: "trace-9"})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, SearchDocsName, recs[0].Action)
	assert.Equal(t, "sess-9", recs[0].SessionID)
	assert.Equal(t, storage.AuditStatusSuccess, recs[0].Status)
	assert.Contains(t, recs[0].ResultJSON, "Creating Custom Skills")
	assert.False(t, recs[0].FinishedAt.IsZero())

	assert.Equal(t, "broken", recs[1].Action)
	assert.Equal(t, storage.AuditStatusFailed, recs[1].Status)
	assert.Equal(t, assert.AnError.Error(), recs[1].ErrorMessage)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab...(truncated)", truncate("abc", 2))

	// 截断点落在多字节字符中间时回退到字符边界
	long := "a" + strings.Repeat("错", 1000)
	out := truncate(long, auditTruncateLimit)
	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasSuffix(out, "...(truncated)"))
	assert.LessOrEqual(t, len(strings.TrimSuffix(out, "...(truncated)")), auditTruncateLimit)
	assert.Equal(t, "a...(truncated)", truncate("a错", 2))
}
