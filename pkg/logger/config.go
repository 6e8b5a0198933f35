package logger

import (
	"fmt"
	"log/slog"
	"strings"
)

// Config is the environment configuration of the logger.
type Config struct {
	Level   string `env:"LOG_LEVEL" envDefault:"info"`
	Format  string `env:"LOG_FORMAT" envDefault:"json"`
	Service string `env:"LOG_SERVICE" envDefault:"auditkit"`
	Source  bool   `env:"LOG_SOURCE" envDefault:"false"`
}

// Options converts the configuration into logger options.
func (c Config) Options() ([]Option, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	format := Format(strings.ToLower(c.Format))
	if format != FormatJSON && format != FormatText {
		return nil, fmt.Errorf("logger: unknown format %q", c.Format)
	}

	opts := []Option{WithLevel(level), WithFormat(format), WithService(c.Service)}
	if c.Source {
		opts = append(opts, WithSource())
	}
	return opts, nil
}
