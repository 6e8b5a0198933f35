// Package logger builds log/slog loggers for auditkit services and provides
// attribute helpers with stable key names.
//
// New returns a *slog.Logger writing JSON or text. A ContextHandler wraps the
// encoder and adds attributes pulled from the context of every log call, for
// example the acting identity of an audited request:
//
//	log := logger.New(
//		logger.WithFormat(logger.FormatText),
//		logger.WithLevel(slog.LevelDebug),
//		logger.WithContextExtractors(auditctx.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "widget saved", logger.ItemType("Widget"), logger.ItemID("7"))
//
// Config reads LOG_LEVEL, LOG_FORMAT, LOG_SERVICE and LOG_SOURCE from the
// environment through package config.
package logger
