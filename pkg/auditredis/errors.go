package auditredis

import "errors"

var (
	ErrFailedToParseRedisConnString = errors.New("auditredis: failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("auditredis: redis did not become ready within the given time period")
	ErrHealthcheckFailed            = errors.New("auditredis: redis healthcheck failed")
	ErrInsert                       = errors.New("auditredis: failed to store audit record")
	ErrQuery                        = errors.New("auditredis: failed to query audit records")
	ErrDecode                       = errors.New("auditredis: failed to decode audit record")
)
