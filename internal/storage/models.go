package storage

import "time"

// Conversation 持久化一个会话的完整状态。
//
// 状态整体序列化为 JSON 存放在 StateJSON 中；其余列是冗余的摘要字段，
// 便于列表展示与按时间清理，不需要反序列化整段状态。
type Conversation struct {
	// ID 为自增主键（内部使用）。
	ID uint64 `gorm:"primaryKey"`
	// SessionID 为会话唯一标识，Save 时按它做 upsert。
	SessionID string `gorm:"size:64;not null;uniqueIndex"`
	// AgentType 为会话绑定的助手类型。
	AgentType string `gorm:"size:32;not null;index"`
	// StateJSON 为序列化后的 ConversationState。
	StateJSON string `gorm:"type:text;not null"`
	// MessageCount/IsComplete 为冗余摘要。
	MessageCount int       `gorm:"not null"`
	IsComplete   bool      `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime"`
	// UpdatedAt 为最近一次保存时间；列表与清理都按它排序/过滤。
	UpdatedAt time.Time `gorm:"not null;index"`
}

// Feedback 是用户对一个会话的评分。
type Feedback struct {
	ID        uint64 `gorm:"primaryKey"`
	SessionID string `gorm:"size:64;not null;index"`
	// AgentType 冗余存放，便于按助手类型统计平均分。
	AgentType string `gorm:"size:32;not null;index"`
	// Rating 取值 1~5。
	Rating    int       `gorm:"not null"`
	Comment   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"`
}

const (
	AuditStatusRunning = "running"
	AuditStatusSuccess = "success"
	AuditStatusFailed  = "failed"
)

// AuditRecord 记录一次工具调用及其结果，用于审计与追溯。
//
// 复杂入参/输出统一以 JSON 字符串存放，并在写入前截断。
type AuditRecord struct {
	// ID 为自增主键（内部使用）。
	ID uint64 `gorm:"primaryKey"`
	// TraceID 串联一轮对话内的全部工具调用。
	TraceID string `gorm:"size:64;index"`
	// SessionID 为调用所属的会话（可选）。
	SessionID string `gorm:"size:64;index"`
	// Action 为工具名，例如 search_wxo_docs。
	Action string `gorm:"size:128;not null;index"`
	// ParamsJSON 存放工具入参。
	ParamsJSON string `gorm:"type:text"`
	// ResultJSON 存放工具输出（截断后）。
	ResultJSON string `gorm:"type:text"`
	// Status 为 running/success/failed。
	Status string `gorm:"size:32;not null;index"`
	// ErrorMessage 存放失败时的错误信息。
	ErrorMessage string `gorm:"type:text"`
	// StartedAt/FinishedAt 表示调用起止时间，耗时 = FinishedAt-StartedAt。
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time `gorm:"index"`
	// CreatedAt 为记录写入数据库的时间，默认自动填充。
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"`
}

// WxoDoc 是文档检索语料中的一篇文档。
type WxoDoc struct {
	ID    uint64 `gorm:"primaryKey"`
	Title string `gorm:"size:255;not null"`
	// URL 唯一，重复导入时按它覆盖。
	URL       string    `gorm:"size:512;not null;uniqueIndex"`
	Content   string    `gorm:"type:text;not null"`
	Category  string    `gorm:"size:64;not null;index"`
	Relevance float64   `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}
