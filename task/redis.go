package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps each task as a JSON value under prefix+id.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store on rdb. A positive ttl expires terminal
// tasks in Redis itself, in addition to Prune.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "scriptgen:task:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func (s *RedisStore) Insert(ctx context.Context, t *Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, s.key(t.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	if !ok {
		return fmt.Errorf("insert %s: %w", t.ID, ErrExists)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Task, error) {
	return s.get(ctx, s.rdb, s.key(id))
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c stringGetter, key string) (*Task, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", key, err)
	}
	return &t, nil
}

// Finish checks and replaces the value inside a WATCH transaction so a
// concurrent finish of the same task aborts instead of overwriting.
func (s *RedisStore) Finish(ctx context.Context, t *Task) error {
	if err := checkFinish(t); err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	key := s.key(t.ID)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := s.get(ctx, tx, key)
		if err != nil {
			return err
		}
		if cur.Status.Terminal() {
			return fmt.Errorf("finish %s: %w", t.ID, ErrTerminal)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("finish %s: %w", t.ID, ErrTerminal)
	}
	return err
}

func (s *RedisStore) List(ctx context.Context, filter Filter) ([]*Task, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Task
	for _, t := range all {
		if !filter.match(t) {
			continue
		}
		out = append(out, t)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *RedisStore) Prune(ctx context.Context, before time.Time) (int, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}
	var keys []string
	for _, t := range all {
		if t.Status.Terminal() && t.UpdatedAt.Before(before) {
			keys = append(keys, s.key(t.ID))
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("prune tasks: %w", err)
	}
	return int(n), nil
}

// scan loads every task under the prefix, oldest first.
func (s *RedisStore) scan(ctx context.Context) ([]*Task, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan tasks: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	tasks := make([]*Task, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue // expired between SCAN and MGET
		}
		var t Task
		if err := json.Unmarshal([]byte(str), &t); err != nil {
			return nil, fmt.Errorf("decode task %s: %w", keys[i], err)
		}
		tasks = append(tasks, &t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }
