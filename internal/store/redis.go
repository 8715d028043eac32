package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-redis/redis"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

const (
	DefaultRedisPrefix = "flotilla:"
	scanBatchSize      = 100
)

type RedisStore struct {
	db     redis.UniversalClient
	prefix string
}

func NewRedisStore(db redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{db: db, prefix: prefix}
}

func (r *RedisStore) key(key string) string {
	return r.prefix + key
}

func (r *RedisStore) CreateExclusive(key string, data []byte) error {
	created, err := r.db.SetNX(r.key(key), data, 0).Result()
	if err != nil {
		return fmt.Errorf("[RedisStore.CreateExclusive] error writing to database: %s", err)
	}
	if !created {
		return &flotillaerrors.ErrAlreadyExists{Type: "key", Value: key}
	}
	return nil
}

func (r *RedisStore) Read(key string) ([]byte, error) {
	data, err := r.db.Get(r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, &flotillaerrors.ErrNotFound{Type: "key", Value: key}
	} else if err != nil {
		return nil, fmt.Errorf("[RedisStore.Read] error reading from database: %s", err)
	}
	return data, nil
}

func (r *RedisStore) Write(key string, data []byte) error {
	if err := r.db.Set(r.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("[RedisStore.Write] error writing to database: %s", err)
	}
	return nil
}

func (r *RedisStore) Delete(key string) error {
	keys, err := r.scan(key)
	if err != nil {
		return fmt.Errorf("[RedisStore.Delete] error scanning database: %s", err)
	}
	keys = append(keys, r.key(key))
	for start := 0; start < len(keys); start += scanBatchSize {
		end := start + scanBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := r.db.Del(keys[start:end]...).Err(); err != nil {
			return fmt.Errorf("[RedisStore.Delete] error deleting from database: %s", err)
		}
	}
	return nil
}

func (r *RedisStore) Exists(key string) (bool, error) {
	n, err := r.db.Exists(r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("[RedisStore.Exists] error reading from database: %s", err)
	}
	if n > 0 {
		return true, nil
	}
	keys, err := r.scan(key)
	if err != nil {
		return false, fmt.Errorf("[RedisStore.Exists] error scanning database: %s", err)
	}
	return len(keys) > 0, nil
}

func (r *RedisStore) List(prefix string) ([]string, error) {
	keys, err := r.scan(prefix)
	if err != nil {
		return nil, fmt.Errorf("[RedisStore.List] error scanning database: %s", err)
	}
	result := make([]string, 0, len(keys))
	for _, k := range keys {
		result = append(result, strings.TrimPrefix(k, r.prefix))
	}
	sort.Strings(result)
	return result, nil
}

// scan returns the full redis keys strictly below key.
func (r *RedisStore) scan(key string) ([]string, error) {
	match := escapeGlob(r.key(strings.TrimSuffix(key, "/"))) + "/*"
	var keys []string
	iter := r.db.Scan(0, match, scanBatchSize).Iterator()
	for iter.Next() {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
