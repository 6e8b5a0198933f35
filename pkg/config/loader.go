package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	dotenvOnce sync.Once
	cache      sync.Map // reflect.Type -> *entry
)

type entry struct {
	once  sync.Once
	value any
	err   error
}

// Load parses environment variables into a value of type T using its env
// struct tags. The first call loads .env from the working directory when it
// exists. Each type is parsed once; later calls return the cached value.
//
//	type PGConfig struct {
//		URL string `env:"AUDIT_PG_URL,required"`
//	}
//
//	cfg, err := config.Load[PGConfig]()
func Load[T any]() (T, error) {
	dotenvOnce.Do(func() { _ = godotenv.Load() })

	key := reflect.TypeFor[T]()
	if key.Kind() != reflect.Struct {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrNotStruct, key)
	}

	e, _ := cache.LoadOrStore(key, &entry{})
	en := e.(*entry)
	en.once.Do(func() {
		var v T
		if err := env.Parse(&v); err != nil {
			en.err = errors.Join(ErrParsingConfig, err)
			return
		}
		en.value = v
	})

	if en.err != nil {
		// Parsing is retried on the next call once the environment is fixed.
		cache.CompareAndDelete(key, en)
		var zero T
		return zero, en.err
	}
	return en.value.(T), nil
}

// MustLoad is Load that panics on error, for use during startup.
func MustLoad[T any]() T {
	v, err := Load[T]()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return v
}

// LoadEnv loads the given dotenv files, later files overriding earlier ones.
// Variables already set in the process environment are overridden too.
// The cache is reset so the next Load sees the new values.
func LoadEnv(paths ...string) error {
	if err := godotenv.Overload(paths...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	Reset()
	return nil
}

// Reset drops every cached configuration.
func Reset() {
	cache.Range(func(k, _ any) bool {
		cache.Delete(k)
		return true
	})
}
