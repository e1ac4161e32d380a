package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wwwzy/wxorca/internal/state"
)

// ConversationStore 是会话状态的持久化接口。
// Load 在会话不存在时返回可用 errors.Is(err, ErrNotFound) 判断的错误。
type ConversationStore interface {
	Load(ctx context.Context, sessionID string) (*state.ConversationState, error)
	Save(ctx context.Context, st *state.ConversationState) error
}

var (
	_ ConversationStore = (*Storage)(nil)
	_ ConversationStore = (*RedisConversationStore)(nil)
)

// Save 按 SessionID upsert 会话状态
func (s *Storage) Save(ctx context.Context, st *state.ConversationState) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	row, err := conversationRow(st)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"agent_type", "state_json", "message_count", "is_complete", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (s *Storage) Load(ctx context.Context, sessionID string) (*state.ConversationState, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	var row Conversation
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newNotFoundError("conversation", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return decodeState([]byte(row.StateJSON))
}

func (s *Storage) DeleteConversation(ctx context.Context, sessionID string) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	res := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&Conversation{})
	if res.Error != nil {
		return fmt.Errorf("delete conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return newNotFoundError("conversation", sessionID)
	}
	return nil
}

type ConversationQuery struct {
	// AgentType 精确匹配助手类型（可选）。
	AgentType string
	// Limit 限制返回条数；<=0 使用默认值。
	Limit int
}

// ListConversations 按最近更新时间倒序列出会话摘要；StateJSON 不会被加载。
func (s *Storage) ListConversations(ctx context.Context, q ConversationQuery) ([]Conversation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	db := s.db.WithContext(ctx).Model(&Conversation{}).
		Select("id", "session_id", "agent_type", "message_count", "is_complete", "created_at", "updated_at")
	if q.AgentType != "" {
		db = db.Where("agent_type = ?", q.AgentType)
	}
	var out []Conversation
	if err := db.Order("updated_at DESC").Order("id DESC").Limit(normalizeLimit(q.Limit)).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

func (s *Storage) CountConversations(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&Conversation{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}

// DeleteConversationsBeforeLimited 删除 UpdatedAt 早于 before 的会话，单次至多 limit 条。
func (s *Storage) DeleteConversationsBeforeLimited(ctx context.Context, before time.Time, limit int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	return s.deleteByIDs(ctx, &Conversation{}, "conversations", limit, func(db *gorm.DB) *gorm.DB {
		return db.Where("updated_at < ?", before)
	})
}

func conversationRow(st *state.ConversationState) (*Conversation, error) {
	if st == nil {
		return nil, errors.New("conversation state is nil")
	}
	if st.SessionID == "" {
		return nil, errors.New("session id is required")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal conversation state: %w", err)
	}
	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return &Conversation{
		SessionID:    st.SessionID,
		AgentType:    string(st.AgentType),
		StateJSON:    string(data),
		MessageCount: len(st.Messages),
		IsComplete:   st.IsComplete,
		UpdatedAt:    updated.UTC(),
	}, nil
}

func decodeState(data []byte) (*state.ConversationState, error) {
	var st state.ConversationState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode conversation state: %w", err)
	}
	return &st, nil
}
