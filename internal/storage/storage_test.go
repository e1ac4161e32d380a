package storage

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wwwzy/wxorca/internal/state"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "wxorca.db")
	s, err := Open(ctx, Config{
		Path:      dbPath,
		EnableWAL: true,
	})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConversationSaveLoadUpsert(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	st := state.NewConversationStateWithSession("sess-1", state.UsageAssistant)
	st.AddSystemMessage("system")
	st.AddUserMessage("How do I create a skill?")
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}

	st.AddAssistantMessage("Here is how.")
	st.MarkComplete()
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("save again: %v", err)
	}

	n, err := s.CountConversations(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected upsert to keep 1 row, got %d", n)
	}

	got, err := s.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.AgentType != state.UsageAssistant {
		t.Fatalf("unexpected agent type: %s", got.AgentType)
	}
	if len(got.Messages) != 3 || !got.IsComplete {
		t.Fatalf("unexpected state: messages=%d complete=%v", len(got.Messages), got.IsComplete)
	}
	if got.Messages[2].Content != "Here is how." {
		t.Fatalf("unexpected last message: %q", got.Messages[2].Content)
	}

	list, err := s.ListConversations(ctx, ConversationQuery{Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].MessageCount != 3 || list[0].StateJSON != "" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestConversationNotFound(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteConversation(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestConversationListAndPrune(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	base := time.Now().Add(-48 * time.Hour).UTC()
	for i, id := range []string{"old", "mid", "new"} {
		st := state.NewConversationStateWithSession(id, state.Troubleshoot)
		st.UpdatedAt = base.Add(time.Duration(i) * 24 * time.Hour)
		if err := s.Save(ctx, st); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	other := state.NewConversationStateWithSession("docs", state.DocsHelper)
	if err := s.Save(ctx, other); err != nil {
		t.Fatalf("save docs: %v", err)
	}

	list, err := s.ListConversations(ctx, ConversationQuery{AgentType: string(state.Troubleshoot)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].SessionID != "new" || list[2].SessionID != "old" {
		t.Fatalf("unexpected order: %+v", list)
	}

	deleted, err := s.DeleteConversationsBeforeLimited(ctx, base.Add(30*time.Hour), 10)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}
	if _, err := s.Load(ctx, "new"); err != nil {
		t.Fatalf("expected newest conversation to survive: %v", err)
	}

	if err := s.DeleteConversation(ctx, "new"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	n, _ := s.CountConversations(ctx)
	if n != 1 {
		t.Fatalf("expected 1 conversation left, got %d", n)
	}
}

func TestFeedbackRating(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	for _, r := range []int{5, 4, 3} {
		if err := s.SubmitFeedback(ctx, &Feedback{SessionID: "sess-1", AgentType: "admin_setup", Rating: r}); err != nil {
			t.Fatalf("submit %d: %v", r, err)
		}
	}
	if err := s.SubmitFeedback(ctx, &Feedback{SessionID: "sess-1", AgentType: "admin_setup", Rating: 6}); err == nil {
		t.Fatalf("expected rating 6 to be rejected")
	}
	if err := s.SubmitFeedback(ctx, &Feedback{SessionID: "sess-1", AgentType: "admin_setup", Rating: 0}); err == nil {
		t.Fatalf("expected rating 0 to be rejected")
	}

	fbs, err := s.SessionFeedback(ctx, "sess-1")
	if err != nil {
		t.Fatalf("session feedback: %v", err)
	}
	if len(fbs) != 3 || fbs[0].Rating != 5 {
		t.Fatalf("unexpected feedback: %+v", fbs)
	}

	sum, err := s.AgentRating(ctx, "admin_setup")
	if err != nil {
		t.Fatalf("rating: %v", err)
	}
	if sum.Count != 3 || sum.Average != 4 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	empty, err := s.AgentRating(ctx, "docs_helper")
	if err != nil {
		t.Fatalf("empty rating: %v", err)
	}
	if empty.Count != 0 || empty.Average != 0 {
		t.Fatalf("unexpected empty summary: %+v", empty)
	}
}

func TestDocsSearch(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	docs := []WxoDoc{
		{Title: "Admin Setup Guide", URL: "https://example.com/admin", Content: "Initial setup and user management.", Category: "admin", Relevance: 0.92},
		{Title: "Security Best Practices", URL: "https://example.com/security", Content: "Access control and data protection.", Category: "admin", Relevance: 0.75},
		{Title: "Creating Custom Skills", URL: "https://example.com/skills", Content: "Skills are reusable automation components.", Category: "user", Relevance: 0.88},
		{Title: "100% Coverage", URL: "https://example.com/pct", Content: "Literal percent.", Category: "user", Relevance: 0.1},
	}
	n, err := s.SeedDocs(ctx, docs)
	if err != nil || n != 4 {
		t.Fatalf("seed: n=%d err=%v", n, err)
	}
	// 重复导入按 URL 覆盖
	if _, err := s.SeedDocs(ctx, []WxoDoc{{Title: "Admin Setup Guide", URL: "https://example.com/admin", Content: "Updated.", Category: "admin", Relevance: 0.92}}); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	total, _ := s.CountDocs(ctx)
	if total != 4 {
		t.Fatalf("expected 4 docs after reseed, got %d", total)
	}

	got, err := s.SearchDocs(ctx, DocQuery{Query: "SETUP protection", Category: "admin"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 || got[0].Title != "Admin Setup Guide" || got[1].Title != "Security Best Practices" {
		t.Fatalf("unexpected results: %+v", got)
	}

	got, err = s.SearchDocs(ctx, DocQuery{Query: "skills", Limit: 1})
	if err != nil {
		t.Fatalf("search skills: %v", err)
	}
	if len(got) != 1 || got[0].Category != "user" {
		t.Fatalf("unexpected skills result: %+v", got)
	}

	// % 按字面匹配，而不是通配符
	got, err = s.SearchDocs(ctx, DocQuery{Query: "%"})
	if err != nil {
		t.Fatalf("search percent: %v", err)
	}
	if len(got) != 1 || got[0].Title != "100% Coverage" {
		t.Fatalf("unexpected percent result: %+v", got)
	}

	cats, err := s.DocCategories(ctx)
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(cats) != 2 || cats[0] != "admin" || cats[1] != "user" {
		t.Fatalf("unexpected categories: %v", cats)
	}
}

func TestAuditInsertQueryUpdate(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	rec := AuditRecord{
		TraceID:   "trace-1",
		SessionID: "sess-1",
		Action:    "search_wxo_docs",
		Status:    AuditStatusRunning,
		StartedAt: time.Now().Add(-1 * time.Second).UTC(),
	}
	if err := s.InsertAuditRecord(ctx, &rec); err != nil {
		t.Fatalf("insert audit: %v", err)
	}
	if rec.ID == 0 {
		t.Fatalf("expected audit id to be set")
	}

	got, err := s.QueryAuditRecords(ctx, AuditQuery{TraceID: "trace-1", Limit: 10})
	if err != nil {
		t.Fatalf("query audit: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(got))
	}
	if got[0].Status != AuditStatusRunning {
		t.Fatalf("unexpected status: %s", got[0].Status)
	}

	status := AuditStatusSuccess
	result := `{"ok":true}`
	finished := time.Now().UTC()
	if err := s.UpdateAuditRecord(ctx, rec.ID, AuditUpdate{
		Status:     &status,
		ResultJSON: &result,
		FinishedAt: &finished,
	}); err != nil {
		t.Fatalf("update audit: %v", err)
	}

	got2, err := s.QueryAuditRecords(ctx, AuditQuery{SessionID: "sess-1", Limit: 10})
	if err != nil {
		t.Fatalf("query audit after update: %v", err)
	}
	if len(got2) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(got2))
	}
	if got2[0].Status != AuditStatusSuccess || got2[0].ResultJSON != result {
		t.Fatalf("unexpected updated record: status=%s result=%s", got2[0].Status, got2[0].ResultJSON)
	}

	if err := s.UpdateAuditRecord(ctx, 9999, AuditUpdate{Status: &status}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing audit record, got %v", err)
	}
}

func TestAuditRetention(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).UTC()
	for i := 0; i < 6; i++ {
		rec := AuditRecord{
			Action:    "fetch_wxo_examples",
			Status:    AuditStatusSuccess,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.InsertAuditRecord(ctx, &rec); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	deleted, err := s.DeleteAuditRecordsBeforeLimited(ctx, base.Add(90*time.Second), 1)
	if err != nil {
		t.Fatalf("delete before: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected limited delete of 1, got %d", deleted)
	}
	deleted, err = s.DeleteAuditRecordsBeforeLimited(ctx, base.Add(90*time.Second), 10)
	if err != nil || deleted != 1 {
		t.Fatalf("expected second batch to delete 1, got %d err=%v", deleted, err)
	}

	deleted, err = s.DeleteAuditRecordsBeyondLimited(ctx, 2, 10)
	if err != nil {
		t.Fatalf("keep latest: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}

	n, err := s.CountAuditRecords(ctx, AuditQuery{Action: "fetch_wxo_examples"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 records left, got %d", n)
	}

	latest, err := s.QueryAuditRecords(ctx, AuditQuery{Desc: true, Limit: 1})
	if err != nil {
		t.Fatalf("query latest: %v", err)
	}
	if len(latest) != 1 || latest[0].CreatedAt.Sub(base.Add(5*time.Minute)).Abs() > time.Millisecond {
		t.Fatalf("unexpected latest record: %+v", latest)
	}
}

func TestStorageNotInitialized(t *testing.T) {
	var s *Storage
	ctx := context.Background()
	if err := s.Save(ctx, state.NewConversationState(state.DocsHelper)); err == nil {
		t.Fatalf("expected error from nil storage")
	}
	if _, err := s.SearchDocs(ctx, DocQuery{}); err == nil {
		t.Fatalf("expected error from nil storage")
	}
}

func TestDSNFromConfig(t *testing.T) {
	dsn, err := dsnFromConfig(Config{Path: "chat.db", EnableWAL: true, BusyTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	if !strings.HasPrefix(dsn, "file:chat.db?") {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	q, err := url.ParseQuery(dsn[strings.Index(dsn, "?")+1:])
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	want := map[string]bool{"busy_timeout(2000)": true, "foreign_keys(1)": true, "journal_mode(WAL)": true}
	if len(q["_pragma"]) != len(want) {
		t.Fatalf("pragmas = %v", q["_pragma"])
	}
	for _, p := range q["_pragma"] {
		if !want[p] {
			t.Fatalf("unexpected pragma %q", p)
		}
	}

	// 内存库不开 WAL，默认库名为 wxorca
	dsn, err = dsnFromConfig(Config{InMemory: true, EnableWAL: true})
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	if !strings.HasPrefix(dsn, "file:wxorca?") || strings.Contains(dsn, "journal_mode") {
		t.Fatalf("unexpected memory dsn %q", dsn)
	}
	if !strings.Contains(dsn, "mode=memory") || !strings.Contains(dsn, "cache=shared") {
		t.Fatalf("memory dsn missing shared cache: %q", dsn)
	}

	if _, err := dsnFromConfig(Config{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestOpenInMemory(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{InMemory: true, MemoryName: t.Name()})
	if err != nil {
		t.Fatalf("open in memory: %v", err)
	}
	defer s.Close()

	if n, err := s.CountConversations(ctx); err != nil || n != 0 {
		t.Fatalf("count = %d, %v", n, err)
	}
}
