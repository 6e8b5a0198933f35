package auditmongo

import "errors"

var (
	ErrConnect           = errors.New("auditmongo: failed to connect to mongo")
	ErrHealthcheckFailed = errors.New("auditmongo: healthcheck failed")
	ErrIndex             = errors.New("auditmongo: failed to create indexes")
	ErrInsert            = errors.New("auditmongo: failed to insert audit record")
	ErrQuery             = errors.New("auditmongo: failed to query audit records")
)
