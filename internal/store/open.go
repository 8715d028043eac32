package store

import (
	"github.com/go-redis/redis"
	"github.com/spf13/afero"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
	"github.com/G-Research/flotilla/internal/lifecycle/configuration"
)

// Open returns the store described by config. Filesystem stores are rooted in fs. The returned
// function releases the store's connections.
func Open(config configuration.StoreConfig, fs afero.Fs) (Store, func() error, error) {
	switch config.Type {
	case configuration.StoreTypeRedis:
		db := redis.NewUniversalClient(config.Redis.AsUniversalOptions())
		prefix := config.Root
		if prefix == "" {
			prefix = DefaultRedisPrefix
		}
		return NewRedisStore(db, prefix), db.Close, nil
	case configuration.StoreTypeFilesystem:
		return NewFileStore(fs, config.Root), func() error { return nil }, nil
	default:
		return nil, nil, &flotillaerrors.ErrInvalidArgument{
			Name:    "store.type",
			Value:   config.Type,
			Message: "must be one of redis, filesystem",
		}
	}
}
