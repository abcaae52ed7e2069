package main

import (
	"encoding/base64"
	"fmt"

	"github.com/aretw0/stagecraft"
	"github.com/aretw0/stagecraft/internal/settings"
	"github.com/aretw0/stagecraft/pkg/adapters/file"
	"github.com/aretw0/stagecraft/pkg/adapters/redis"
	"github.com/aretw0/stagecraft/pkg/persistence/middleware"
	"github.com/aretw0/stagecraft/pkg/ports"
)

// taskStore picks Redis when an address is configured and the tasks directory otherwise,
// then applies the masking and encryption settings. The returned close func releases
// the Redis connection.
func taskStore(s *settings.Settings) (ports.TaskStore, []stagecraft.Option, func() error, error) {
	var (
		base    ports.TaskStore
		opts    []stagecraft.Option
		closeFn = func() error { return nil }
	)
	if s.Redis.Addr == "" {
		base = file.NewStore(s.TasksDir)
	} else {
		rs := redis.New(s.Redis.Addr, s.Redis.Password, s.Redis.DB,
			redis.WithPrefix(s.Redis.Prefix),
			redis.WithTTL(s.Redis.TTL.Duration),
		)
		base = rs
		closeFn = rs.Close
		opts = append(opts, stagecraft.WithLocker(redis.NewLocker(rs.Client(), s.Redis.Prefix)))
	}

	mws, err := storeMiddleware(s.Security)
	if err != nil {
		_ = closeFn()
		return nil, nil, nil, err
	}
	store := middleware.Chain(base, mws...)
	return store, append(opts, stagecraft.WithStore(store)), closeFn, nil
}

func storeMiddleware(sec settings.Security) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(sec.MaskPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(sec.MaskPatterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	if sec.EncryptionKey != "" {
		active, err := decodeKey(sec.EncryptionKey)
		if err != nil {
			return nil, err
		}
		cfg := middleware.EncryptionConfig{ActiveKey: active}
		for _, k := range sec.FallbackKeys {
			key, err := decodeKey(k)
			if err != nil {
				return nil, err
			}
			cfg.FallbackKeys = append(cfg.FallbackKeys, key)
		}
		enc, err := middleware.NewEncryptionMiddleware(cfg)
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return mws, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid base64: %w", err)
	}
	return key, nil
}
