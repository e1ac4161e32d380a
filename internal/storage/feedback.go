package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	MinRating = 1
	MaxRating = 5
)

// SubmitFeedback 写入一条评分，Rating 必须在 1~5 之间。
func (s *Storage) SubmitFeedback(ctx context.Context, fb *Feedback) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if fb == nil {
		return errors.New("feedback is nil")
	}
	if fb.SessionID == "" {
		return errors.New("session id is required")
	}
	if fb.Rating < MinRating || fb.Rating > MaxRating {
		return fmt.Errorf("rating must be between %d and %d, got %d", MinRating, MaxRating, fb.Rating)
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(fb).Error; err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// SessionFeedback 按时间顺序返回会话的全部评分
func (s *Storage) SessionFeedback(ctx context.Context, sessionID string) ([]Feedback, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	var out []Feedback
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	return out, nil
}

type RatingSummary struct {
	AgentType string  `json:"agent_type"`
	Count     int64   `json:"count"`
	Average   float64 `json:"average"`
}

// AgentRating 统计某类助手的评分条数与平均分，没有评分时 Average 为 0。
func (s *Storage) AgentRating(ctx context.Context, agentType string) (RatingSummary, error) {
	out := RatingSummary{AgentType: agentType}
	if s == nil || s.db == nil {
		return out, errors.New("storage not initialized")
	}
	var row struct {
		Count   int64
		Average float64
	}
	if err := s.db.WithContext(ctx).Model(&Feedback{}).
		Select("COUNT(*) AS count, COALESCE(AVG(rating), 0) AS average").
		Where("agent_type = ?", agentType).
		Scan(&row).Error; err != nil {
		return out, fmt.Errorf("aggregate feedback: %w", err)
	}
	out.Count = row.Count
	out.Average = row.Average
	return out, nil
}
