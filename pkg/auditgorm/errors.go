package auditgorm

import "errors"

var (
	ErrInsert = errors.New("auditgorm: failed to insert audit record")
	ErrQuery  = errors.New("auditgorm: failed to query audit records")
	ErrDecode = errors.New("auditgorm: failed to decode audit record")
	ErrReload = errors.New("auditgorm: failed to load persisted entity")
)
