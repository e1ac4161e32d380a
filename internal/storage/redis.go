package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wwwzy/wxorca/internal/state"
)

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	// TTL 为会话过期时间；<=0 表示不过期。每次保存都会刷新。
	TTL time.Duration `mapstructure:"ttl"`
}

// RedisConversationStore 把会话状态存放在 Redis 中：
// 状态 JSON 存于 <prefix>conv:data:<session>，
// 有序集合 <prefix>conv:index 以更新时间为分值索引全部会话。
type RedisConversationStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedisConversationStore(ctx context.Context, cfg RedisConfig) (*RedisConversationStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisConversationStoreWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisConversationStoreWithClient 复用已有客户端，不做连通性检查。
func NewRedisConversationStoreWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisConversationStore {
	if keyPrefix == "" {
		keyPrefix = "wxorca:"
	}
	return &RedisConversationStore{
		client:    client,
		keyPrefix: keyPrefix + "conv:",
		ttl:       ttl,
	}
}

func (s *RedisConversationStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisConversationStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("redis store not initialized")
	}
	return s.client.Ping(ctx).Err()
}

func (s *RedisConversationStore) dataKey(sessionID string) string {
	return s.keyPrefix + "data:" + sessionID
}

func (s *RedisConversationStore) indexKey() string {
	return s.keyPrefix + "index"
}

func (s *RedisConversationStore) Save(ctx context.Context, st *state.ConversationState) error {
	if s == nil || s.client == nil {
		return errors.New("redis store not initialized")
	}
	if st == nil {
		return errors.New("conversation state is nil")
	}
	if st.SessionID == "" {
		return errors.New("session id is required")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal conversation state: %w", err)
	}

	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.dataKey(st.SessionID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(updated.UnixNano()), Member: st.SessionID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (s *RedisConversationStore) Load(ctx context.Context, sessionID string) (*state.ConversationState, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("redis store not initialized")
	}
	data, err := s.client.Get(ctx, s.dataKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		// 数据已过期时顺带清理索引
		_ = s.client.ZRem(ctx, s.indexKey(), sessionID).Err()
		return nil, newNotFoundError("conversation", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return decodeState(data)
}

func (s *RedisConversationStore) Delete(ctx context.Context, sessionID string) error {
	if s == nil || s.client == nil {
		return errors.New("redis store not initialized")
	}
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.dataKey(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if del.Val() == 0 {
		return newNotFoundError("conversation", sessionID)
	}
	return nil
}

// List 按最近保存时间倒序返回会话 ID；已过期的会话会被跳过并移出索引。
func (s *RedisConversationStore) List(ctx context.Context, limit int) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("redis store not initialized")
	}
	limit = normalizeLimit(limit)

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	out := make([]string, 0, min(limit, len(ids)))
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		n, err := s.client.Exists(ctx, s.dataKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("list conversations: %w", err)
		}
		if n == 0 {
			_ = s.client.ZRem(ctx, s.indexKey(), id).Err()
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
