package auditredis

import "time"

type Config struct {
	ConnectionURL  string        `env:"AUDIT_REDIS_URL,required" envDefault:"redis://localhost:6379/0"` // redis://:password@localhost:6379/0
	Prefix         string        `env:"AUDIT_REDIS_PREFIX" envDefault:"audit"`
	RetryAttempts  int           `env:"AUDIT_REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"AUDIT_REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"AUDIT_REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}
