package auditsearch

import "errors"

var (
	// ErrConnectionFailed indicates the OpenSearch client could not be created.
	ErrConnectionFailed = errors.New("auditsearch: opensearch connection failed")

	// ErrHealthcheckFailed indicates the cluster is unreachable or unhealthy.
	ErrHealthcheckFailed = errors.New("auditsearch: opensearch healthcheck failed")

	ErrIndex  = errors.New("auditsearch: failed to prepare index")
	ErrInsert = errors.New("auditsearch: failed to index audit record")
	ErrQuery  = errors.New("auditsearch: failed to search audit records")
)
