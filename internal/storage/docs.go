package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm/clause"
)

const defaultDocsLimit = 5

type DocQuery struct {
	// Query 整句或其中任一单词出现在标题/正文中即命中；为空时不过滤。
	Query string
	// Category 精确匹配分类（可选）。
	Category string
	// Limit 限制返回条数；<=0 使用 5。
	Limit int
}

// AddDoc 按 URL upsert 一篇文档
func (s *Storage) AddDoc(ctx context.Context, doc *WxoDoc) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if doc == nil {
		return errors.New("doc is nil")
	}
	if doc.URL == "" || doc.Title == "" {
		return errors.New("doc title and url are required")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "content", "category", "relevance", "updated_at"}),
	}).Create(doc).Error
	if err != nil {
		return fmt.Errorf("add doc: %w", err)
	}
	return nil
}

// SeedDocs 批量导入文档，返回写入条数
func (s *Storage) SeedDocs(ctx context.Context, docs []WxoDoc) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	for i := range docs {
		if err := s.AddDoc(ctx, &docs[i]); err != nil {
			return i, err
		}
	}
	return len(docs), nil
}

// SearchDocs 按分类与关键字检索，结果按 Relevance 倒序。
func (s *Storage) SearchDocs(ctx context.Context, q DocQuery) ([]WxoDoc, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}

	db := s.db.WithContext(ctx).Model(&WxoDoc{})
	if q.Category != "" {
		db = db.Where("category = ?", q.Category)
	}
	if query := strings.TrimSpace(q.Query); query != "" {
		const match = `title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\'`
		p := likePattern(query)
		cond := s.db.Where(match, p, p)
		for _, w := range strings.Fields(query) {
			wp := likePattern(w)
			cond = cond.Or(match, wp, wp)
		}
		db = db.Where(cond)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultDocsLimit
	}

	var out []WxoDoc
	if err := db.Order("relevance DESC").Order("id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("search docs: %w", err)
	}
	return out, nil
}

// DocCategories 返回已有的文档分类（已排序）
func (s *Storage) DocCategories(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	var out []string
	if err := s.db.WithContext(ctx).Model(&WxoDoc{}).Distinct("category").Order("category ASC").Pluck("category", &out).Error; err != nil {
		return nil, fmt.Errorf("query doc categories: %w", err)
	}
	return out, nil
}

func (s *Storage) CountDocs(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&WxoDoc{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count docs: %w", err)
	}
	return n, nil
}
