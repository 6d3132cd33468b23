package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/azhengyongqin/analysis-hub/internal/model"
)

// ErrResultNotFound 结果不存在
var ErrResultNotFound = errors.New("result not found")

// ResultStore 分析结果存储，completed_cached 的来源
type ResultStore interface {
	Put(ctx context.Context, r model.Result) error
	Get(ctx context.Context, datasetID string, t model.AnalysisType, targetID string) (model.Result, error)
	// CacheStatus analysis_type -> 是否已有结果
	CacheStatus(ctx context.Context, datasetID string) (map[string]bool, error)
	// Clear 删除数据集的全部结果，返回删除数量
	Clear(ctx context.Context, datasetID string) (int, error)
}

func resultMember(t model.AnalysisType, targetID string) string {
	if targetID == "" {
		return string(t)
	}
	return string(t) + ":" + targetID
}

func cacheStatusFrom(members []string) map[string]bool {
	out := make(map[string]bool, len(model.AnalysisTypes))
	for _, t := range model.AnalysisTypes {
		out[string(t)] = false
	}
	for _, m := range members {
		t, _, _ := strings.Cut(m, ":")
		out[t] = true
	}
	return out
}

// RedisResultStore 结果以 zstd 压缩后写入 Redis，每个数据集维护一个成员索引
type RedisResultStore struct {
	cache *RedisCache
	ttl   time.Duration

	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewRedisResultStore(c *RedisCache, ttl time.Duration) (*RedisResultStore, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &RedisResultStore{cache: c, ttl: ttl, enc: enc, dec: dec}, nil
}

// storedResult Redis 中的存储格式
type storedResult struct {
	TaskID    string    `json:"task_id"`
	Data      []byte    `json:"data"` // zstd(JSON)
	CreatedAt time.Time `json:"created_at"`
}

func resultKey(datasetID string, t model.AnalysisType, targetID string) string {
	return CacheKey("result", datasetID, resultMember(t, targetID))
}

func indexKey(datasetID string) string {
	return CacheKey("results", datasetID)
}

func memberKey(datasetID string) func(string) string {
	return func(m string) string {
		t, target, _ := strings.Cut(m, ":")
		return resultKey(datasetID, model.AnalysisType(t), target)
	}
}

func (s *RedisResultStore) Put(ctx context.Context, r model.Result) error {
	stored := storedResult{
		TaskID:    r.TaskID,
		Data:      s.enc.EncodeAll(r.Data, nil),
		CreatedAt: r.CreatedAt,
	}
	key := resultKey(r.DatasetID, r.AnalysisType, r.TargetID)
	if err := s.cache.putIndexed(ctx, key, indexKey(r.DatasetID), resultMember(r.AnalysisType, r.TargetID), stored, s.ttl); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

func (s *RedisResultStore) Get(ctx context.Context, datasetID string, t model.AnalysisType, targetID string) (model.Result, error) {
	var stored storedResult
	if err := s.cache.get(ctx, resultKey(datasetID, t, targetID), &stored); err != nil {
		if errors.Is(err, errCacheMiss) {
			return model.Result{}, ErrResultNotFound
		}
		return model.Result{}, err
	}
	data, err := s.dec.DecodeAll(stored.Data, nil)
	if err != nil {
		return model.Result{}, fmt.Errorf("decompress result: %w", err)
	}
	return model.Result{
		DatasetID:    datasetID,
		AnalysisType: t,
		TargetID:     targetID,
		TaskID:       stored.TaskID,
		Data:         json.RawMessage(data),
		CreatedAt:    stored.CreatedAt,
	}, nil
}

func (s *RedisResultStore) CacheStatus(ctx context.Context, datasetID string) (map[string]bool, error) {
	live, err := s.cache.liveMembers(ctx, indexKey(datasetID), memberKey(datasetID))
	if err != nil {
		return nil, err
	}
	return cacheStatusFrom(live), nil
}

func (s *RedisResultStore) Clear(ctx context.Context, datasetID string) (int, error) {
	return s.cache.dropIndexed(ctx, indexKey(datasetID), memberKey(datasetID))
}

// MemoryResultStore 进程内结果存储，用于未配置 Redis 结果缓存的场景与测试
type MemoryResultStore struct {
	mu    sync.RWMutex
	items map[string]map[string]model.Result // dataset_id -> member -> result
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{items: map[string]map[string]model.Result{}}
}

func (s *MemoryResultStore) Put(_ context.Context, r model.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.items[r.DatasetID]
	if !ok {
		m = map[string]model.Result{}
		s.items[r.DatasetID] = m
	}
	m[resultMember(r.AnalysisType, r.TargetID)] = r
	return nil
}

func (s *MemoryResultStore) Get(_ context.Context, datasetID string, t model.AnalysisType, targetID string) (model.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[datasetID][resultMember(t, targetID)]
	if !ok {
		return model.Result{}, ErrResultNotFound
	}
	return r, nil
}

func (s *MemoryResultStore) CacheStatus(_ context.Context, datasetID string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := make([]string, 0, len(s.items[datasetID]))
	for m := range s.items[datasetID] {
		members = append(members, m)
	}
	sort.Strings(members)
	return cacheStatusFrom(members), nil
}

func (s *MemoryResultStore) Clear(_ context.Context, datasetID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.items[datasetID])
	delete(s.items, datasetID)
	return n, nil
}
