package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

const (
	defaultLimit = 200
	maxLimit     = 5000

	defaultDeleteLimit = 500
	maxDeleteLimit     = 900
)

// ErrNotFound 表示目标记录不存在，调用方用 errors.Is 判断。
var ErrNotFound = errors.New("not found")

type notFoundError struct {
	Entity string
	Key    string
}

func (e notFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

func (e notFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func newNotFoundError(entity, key string) error {
	return notFoundError{Entity: entity, Key: key}
}

func normalizeLimit(v int) int {
	if v <= 0 {
		return defaultLimit
	}
	if v > maxLimit {
		return maxLimit
	}
	return v
}

func normalizeDeleteLimit(v int) int {
	if v <= 0 {
		return defaultDeleteLimit
	}
	if v > maxDeleteLimit {
		return maxDeleteLimit
	}
	return v
}

// deleteByIDs 先按条件选出至多 limit 个 ID 再删除，避免单条 DELETE 长时间持有写锁。
// scope 只负责追加 Where 条件。
func (s *Storage) deleteByIDs(ctx context.Context, model any, what string, limit int, scope func(*gorm.DB) *gorm.DB) (int64, error) {
	limit = normalizeDeleteLimit(limit)

	var ids []uint64
	db := scope(s.db.WithContext(ctx).Model(model).Select("id"))
	if err := db.Order("id ASC").Limit(limit).Find(&ids).Error; err != nil {
		return 0, fmt.Errorf("select %s ids: %w", what, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(model)
	if res.Error != nil {
		return 0, fmt.Errorf("delete %s: %w", what, res.Error)
	}
	return res.RowsAffected, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern 生成子串匹配用的 LIKE 模式，配合 ESCAPE '\' 使用
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
