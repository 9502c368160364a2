//go:generate go run go.uber.org/mock/mockgen -source=cache.go -destination=../mocks/mock_cache.go -package=mocks
package database

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"batchchat/logger"
	"batchchat/models"
)

var ErrCacheMiss = errors.New("cache miss")

// HistoryCache 快取歷史訊息分頁
// 每個批次有一個版本號，新訊息寫入後遞增，舊版本的分頁自然失效
type HistoryCache interface {
	GetPage(ctx context.Context, key string) (*models.HistoryPage, error)
	SetPage(ctx context.Context, key string, page models.HistoryPage, ttl time.Duration) error
	Version(ctx context.Context, batchID string) (int64, error)
	BumpVersion(ctx context.Context, batchID string) error
	PageKey(batchID string, version int64, q models.HistoryQuery) string
}

// RedisHistoryCache 以 Redis 實作 HistoryCache
type RedisHistoryCache struct {
	client *redis.Client
	prefix string
}

// NewRedisHistoryCache 連線到 Redis 並確認可用
func NewRedisHistoryCache(ctx context.Context, addr, password string, db int, prefix string) (*RedisHistoryCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisHistoryCache{client: client, prefix: prefix}, nil
}

func (c *RedisHistoryCache) versionKey(batchID string) string {
	return fmt.Sprintf("%s:ver:%s", c.prefix, hex.EncodeToString([]byte(batchID)))
}

func (c *RedisHistoryCache) PageKey(batchID string, version int64, q models.HistoryQuery) string {
	before := q.Before
	if before == "" {
		before = "start"
	}
	return fmt.Sprintf("%s:page:%s:v%d:%s:%d", c.prefix, hex.EncodeToString([]byte(batchID)), version, before, q.Limit)
}

func (c *RedisHistoryCache) GetPage(ctx context.Context, key string) (*models.HistoryPage, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("get from redis: %w", err)
	}

	var page models.HistoryPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("unmarshal cached page: %w", err)
	}
	return &page, nil
}

func (c *RedisHistoryCache) SetPage(ctx context.Context, key string, page models.HistoryPage, ttl time.Duration) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("marshal page: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set in redis: %w", err)
	}
	return nil
}

func (c *RedisHistoryCache) Version(ctx context.Context, batchID string) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey(batchID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *RedisHistoryCache) BumpVersion(ctx context.Context, batchID string) error {
	return c.client.Incr(ctx, c.versionKey(batchID)).Err()
}

func (c *RedisHistoryCache) Close() error {
	return c.client.Close()
}

// CachedStore 在 MessageStore 外層加上歷史分頁快取
// 快取錯誤只記錄，不影響讀寫結果
type CachedStore struct {
	store MessageStore
	cache HistoryCache
	ttl   time.Duration
	sf    singleflight.Group
	now   func() time.Time

	// 版本號遞增失敗的批次，在期限前一律略過快取直接讀 store
	mu     sync.Mutex
	bypass map[string]time.Time
}

const (
	bumpTimeout   = 2 * time.Second
	flightTimeout = 5 * time.Second
)

func NewCachedStore(store MessageStore, cache HistoryCache, ttl time.Duration) *CachedStore {
	return &CachedStore{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		now:    time.Now,
		bypass: make(map[string]time.Time),
	}
}

// Append 寫入成功後才遞增版本號，讓之後的歷史查詢一定看得到這則訊息
// 遞增不沿用呼叫端的 deadline：store 可能已經用掉大部分時間，但訊息已經寫入了
// 遞增失敗時舊版本的分頁還在 Redis 裡，因此在 TTL 內這個批次的查詢都不經過快取
func (s *CachedStore) Append(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	saved, err := s.store.Append(ctx, msg)
	if err != nil {
		return saved, err
	}

	bumpCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bumpTimeout)
	defer cancel()
	if err := s.cache.BumpVersion(bumpCtx, saved.BatchID); err != nil {
		s.skipCacheFor(saved.BatchID)
		l := logger.Ctx(ctx)
		l.Warn().Err(err).Str(logger.FieldBatchID, saved.BatchID).Msg("history cache version bump failed, bypassing cache")
	}
	return saved, nil
}

func (s *CachedStore) skipCacheFor(batchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bypass[batchID] = s.now().Add(s.ttl)
}

func (s *CachedStore) cacheSkipped(batchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.bypass[batchID]
	if !ok {
		return false
	}
	if s.now().Before(until) {
		return true
	}
	delete(s.bypass, batchID) // 舊版本的分頁都已過期
	return false
}

func (s *CachedStore) ListByBatch(ctx context.Context, batchID string, q models.HistoryQuery) (models.HistoryPage, error) {
	q = q.Normalize()
	if s.cacheSkipped(batchID) {
		return s.store.ListByBatch(ctx, batchID, q)
	}

	version, err := s.cache.Version(ctx, batchID)
	if err != nil {
		l := logger.Ctx(ctx)
		l.Warn().Err(err).Str(logger.FieldBatchID, batchID).Msg("history cache version read failed")
		return s.store.ListByBatch(ctx, batchID, q)
	}

	// 共用同一次查詢的請求不能因為第一個請求被取消而一起失敗
	key := s.cache.PageKey(batchID, version, q)
	ch := s.sf.DoChan(key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()
		return s.fetchWithCache(flightCtx, key, batchID, q)
	})

	select {
	case <-ctx.Done():
		return models.HistoryPage{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.HistoryPage{}, res.Err
		}
		return res.Val.(models.HistoryPage), nil
	}
}

func (s *CachedStore) fetchWithCache(ctx context.Context, key, batchID string, q models.HistoryQuery) (models.HistoryPage, error) {
	cached, err := s.cache.GetPage(ctx, key)
	if err == nil {
		return *cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		l := logger.Ctx(ctx)
		l.Warn().Err(err).Msg("history cache get failed")
	}

	page, err := s.store.ListByBatch(ctx, batchID, q)
	if err != nil {
		return models.HistoryPage{}, err
	}

	if err := s.cache.SetPage(ctx, key, page, s.ttl); err != nil {
		l := logger.Ctx(ctx)
		l.Warn().Err(err).Msg("history cache set failed")
	}
	return page, nil
}
