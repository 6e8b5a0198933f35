package auditmongo

import "time"

// Config represents the MongoDB connection and the collection holding audit records.
type Config struct {
	URL             string        `env:"AUDIT_MONGO_URL,required"`
	Database        string        `env:"AUDIT_MONGO_DATABASE" envDefault:"audit"`
	Collection      string        `env:"AUDIT_MONGO_COLLECTION" envDefault:"audit_logs"`
	ConnectTimeout  time.Duration `env:"AUDIT_MONGO_CONNECT_TIMEOUT" envDefault:"10s"`
	MaxPoolSize     uint64        `env:"AUDIT_MONGO_MAX_POOL_SIZE" envDefault:"100"`
	MinPoolSize     uint64        `env:"AUDIT_MONGO_MIN_POOL_SIZE" envDefault:"1"`
	MaxConnIdleTime time.Duration `env:"AUDIT_MONGO_MAX_CONN_IDLE_TIME" envDefault:"300s"`
	RetryWrites     bool          `env:"AUDIT_MONGO_RETRY_WRITES" envDefault:"true"`
	RetryReads      bool          `env:"AUDIT_MONGO_RETRY_READS" envDefault:"true"`
	RetryAttempts   int           `env:"AUDIT_MONGO_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval   time.Duration `env:"AUDIT_MONGO_RETRY_INTERVAL" envDefault:"5s"`
}
