package tools

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/wwwzy/wxorca/internal/storage"
)

const (
	auditTruncateLimit = 2048
)

// AuditStore 是审计记录的落盘接口，由 storage.Storage 实现
type AuditStore interface {
	InsertAuditRecord(ctx context.Context, rec *storage.AuditRecord) error
	UpdateAuditRecord(ctx context.Context, id uint64, up storage.AuditUpdate) error
}

// AuditedTool 在工具执行前后写审计记录：先插入 running，结束后更新为 success/failed。
// 审计写入失败只记日志，不影响工具本身的执行结果。
type AuditedTool struct {
	impl  tool.InvokableTool
	store AuditStore
}

func NewAuditedTool(t tool.InvokableTool, store AuditStore) tool.InvokableTool {
	if store == nil || t == nil {
		return t
	}
	if _, ok := t.(*AuditedTool); ok {
		return t
	}
	return &AuditedTool{impl: t, store: store}
}

func (t *AuditedTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return t.impl.Info(ctx)
}

func (t *AuditedTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	// 1. 动作名取工具名
	action := "unknown"
	if info, err := t.impl.Info(ctx); err == nil && info != nil {
		action = info.Name
	}

	// 2. 插入初始记录
	record := &storage.AuditRecord{
		TraceID:    GetTraceID(ctx),
		SessionID:  GetSessionID(ctx),
		Action:     action,
		ParamsJSON: truncate(argumentsInJSON, auditTruncateLimit),
		Status:     storage.AuditStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	if err := t.store.InsertAuditRecord(ctx, record); err != nil {
		log.Warn().Err(err).Str("tool", action).Msg("insert audit record failed")
	}

	// 3. 执行
	result, runErr := t.impl.InvokableRun(ctx, argumentsInJSON, opts...)

	// 4. 回写结果；插入失败时没有 ID，跳过
	if record.ID == 0 {
		return result, runErr
	}
	finishedAt := time.Now().UTC()
	status := storage.AuditStatusSuccess
	up := storage.AuditUpdate{Status: &status, FinishedAt: &finishedAt}
	if runErr != nil {
		status = storage.AuditStatusFailed
		e := truncate(runErr.Error(), auditTruncateLimit)
		up.ErrorMessage = &e
	} else {
		r := truncate(result, auditTruncateLimit)
		up.ResultJSON = &r
	}
	// ctx 可能已因超时取消，回写不应随之丢失
	if err := t.store.UpdateAuditRecord(context.WithoutCancel(ctx), record.ID, up); err != nil {
		log.Warn().Err(err).Str("tool", action).Uint64("audit_id", record.ID).Msg("update audit record failed")
	}

	return result, runErr
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// 退到字符边界，避免写入半个 UTF-8 字符
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "...(truncated)"
}
