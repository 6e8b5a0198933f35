package audit

import (
	"context"
	"log/slog"
	"time"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSwitch shares a global switch with the engine. By default every engine
// owns an enabled switch.
func WithSwitch(s *Switch) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.sw = s
		}
	}
}

func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator replaces the UUIDv7 record id generator.
func WithIDGenerator(gen func() (string, error)) EngineOption {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithMetadataFilter redacts sensitive metadata before records are stored.
func WithMetadataFilter(f *MetadataFilter) EngineOption {
	return func(e *Engine) {
		e.filter = f
	}
}

// WithDetachedStorage sets the storage used for create and destroy records,
// which are written after the entity has been committed. Defaults to the
// engine storage.
func WithDetachedStorage(s Storage) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.detached = s
		}
	}
}

// WithCaptureErrorHandler is called for every create or destroy record that
// could not be stored.
func WithCaptureErrorHandler(fn func(ctx context.Context, record Record, err error)) EngineOption {
	return func(e *Engine) {
		e.onCaptureError = fn
	}
}
