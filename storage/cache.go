package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"challenge-api/domain"
)

type backend interface {
	Ping(ctx context.Context) error
	ListTasks(ctx context.Context) ([]domain.Task, error)
	AddTask(ctx context.Context, name string) (domain.Task, error)
	RenameTask(ctx context.Context, id int64, name string) error
	DeleteTask(ctx context.Context, id int64) error
	GetDay(ctx context.Context, day int) (domain.DayView, error)
	ToggleTask(ctx context.Context, day int, taskID int64, completed bool) error
	SetNotes(ctx context.Context, day int, notes string) error
	Summary(ctx context.Context) (domain.Summary, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

const (
	tasksCacheKey      = "challenge:tasks"
	summaryCacheKey    = "challenge:summary"
	statsCacheKey      = "challenge:stats"
	generationCacheKey = "challenge:generation"
)

// Cache wraps a backend with Redis-backed caching for the task list and the
// aggregate views. Every write evicts the cached entries it can affect and
// bumps a generation counter; a read only stores its result when the
// generation it observed before querying the backend is still current.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.base.Ping(ctx)
}

func (c *Cache) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	if c.load(ctx, tasksCacheKey, &tasks) {
		return tasks, nil
	}
	gen, ok := c.generation(ctx)
	tasks, err := c.base.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		c.store(ctx, tasksCacheKey, tasks, gen)
	}
	return tasks, nil
}

func (c *Cache) AddTask(ctx context.Context, name string) (domain.Task, error) {
	task, err := c.base.AddTask(ctx, name)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, tasksCacheKey, summaryCacheKey, statsCacheKey)
	return task, nil
}

func (c *Cache) RenameTask(ctx context.Context, id int64, name string) error {
	if err := c.base.RenameTask(ctx, id, name); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, id int64) error {
	if err := c.base.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey, summaryCacheKey, statsCacheKey)
	return nil
}

// GetDay is not cached; it changes with every toggle on that day.
func (c *Cache) GetDay(ctx context.Context, day int) (domain.DayView, error) {
	return c.base.GetDay(ctx, day)
}

func (c *Cache) ToggleTask(ctx context.Context, day int, taskID int64, completed bool) error {
	if err := c.base.ToggleTask(ctx, day, taskID, completed); err != nil {
		return err
	}
	c.evict(ctx, summaryCacheKey, statsCacheKey)
	return nil
}

func (c *Cache) SetNotes(ctx context.Context, day int, notes string) error {
	return c.base.SetNotes(ctx, day, notes)
}

func (c *Cache) Summary(ctx context.Context) (domain.Summary, error) {
	var summary domain.Summary
	if c.load(ctx, summaryCacheKey, &summary) {
		return summary, nil
	}
	gen, ok := c.generation(ctx)
	summary, err := c.base.Summary(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		c.store(ctx, summaryCacheKey, summary, gen)
	}
	return summary, nil
}

func (c *Cache) Stats(ctx context.Context) (domain.Stats, error) {
	var stats domain.Stats
	if c.load(ctx, statsCacheKey, &stats) {
		return stats, nil
	}
	gen, ok := c.generation(ctx)
	stats, err := c.base.Stats(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	if ok {
		c.store(ctx, statsCacheKey, stats, gen)
	}
	return stats, nil
}

func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

// generation returns the current write generation. ok is false when redis is
// unavailable, in which case the caller must not store.
func (c *Cache) generation(ctx context.Context) (gen int64, ok bool) {
	if c.redis == nil {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, generationCacheKey).Int64()
	if err != nil && err != redis.Nil {
		return 0, false
	}
	return gen, true
}

// store saves value under key unless a write bumped the generation after gen
// was read.
func (c *Cache) store(ctx context.Context, key string, value any, gen int64) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(value)
	if err != nil {
		return
	}
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, generationCacheKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, generationCacheKey)
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.Incr(ctx, generationCacheKey)
		return nil
	})
}
