package logger

import "log/slog"

// Error returns an "error" attribute, or an empty one for a nil error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event is the audit event label: create, update, destroy or a custom one.
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Log is the audit log binding a record belongs to.
func Log(name string) slog.Attr {
	return slog.String("audit_log", name)
}

func ItemType(t string) slog.Attr {
	return slog.String("item_type", t)
}

func ItemID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("item_id", id)
}

func Whodunnit(who string) slog.Attr {
	if who == "" {
		return slog.Attr{}
	}
	return slog.String("whodunnit", who)
}

func RecordID(id string) slog.Attr {
	return slog.String("record_id", id)
}

// Backend names the storage adapter.
func Backend(name string) slog.Attr {
	return slog.String("backend", name)
}

func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}
