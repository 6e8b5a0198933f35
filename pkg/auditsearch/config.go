package auditsearch

// Config holds OpenSearch connection parameters and the index naming of audit logs.
type Config struct {
	Addresses    []string `env:"AUDIT_OPENSEARCH_ADDRESSES,required"`
	Username     string   `env:"AUDIT_OPENSEARCH_USERNAME"`
	Password     string   `env:"AUDIT_OPENSEARCH_PASSWORD"`
	MaxRetries   int      `env:"AUDIT_OPENSEARCH_MAX_RETRIES" envDefault:"3"`
	DisableRetry bool     `env:"AUDIT_OPENSEARCH_DISABLE_RETRY" envDefault:"false"`

	// IndexPrefix is joined with the log name: audit-audit_logs.
	IndexPrefix string `env:"AUDIT_OPENSEARCH_INDEX_PREFIX" envDefault:"audit"`
	// Refresh is passed to write requests. Use wait_for when reads must see
	// writes immediately.
	Refresh string `env:"AUDIT_OPENSEARCH_REFRESH" envDefault:"false"`
}
