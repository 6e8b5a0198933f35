package main

import (
	"time"

	"github.com/dmitrymomot/auditkit/pkg/logger"
)

// Backends the demo can store audit records in.
const (
	storageMemory     = "memory"
	storagePostgres   = "postgres"
	storageMongo      = "mongo"
	storageRedis      = "redis"
	storageOpenSearch = "opensearch"
)

type Config struct {
	Addr            string        `env:"AUDIT_DEMO_ADDR" envDefault:":8080"`
	Storage         string        `env:"AUDIT_STORAGE" envDefault:"memory"`
	ActorHeader     string        `env:"AUDIT_ACTOR_HEADER" envDefault:"X-User-ID"`
	Async           bool          `env:"AUDIT_ASYNC" envDefault:"false"`
	ReadTimeout     time.Duration `env:"AUDIT_DEMO_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"AUDIT_DEMO_WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"AUDIT_DEMO_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Log logger.Config
}
