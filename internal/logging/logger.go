package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a new structured logger
func NewLogger(serviceName, level string, development bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if development {
		config = zap.NewDevelopmentConfig()
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		config.Level = zap.NewAtomicLevelAt(lvl)
	}

	config.InitialFields = map[string]interface{}{
		"service": serviceName,
	}

	return config.Build()
}

// WithSite returns a logger with site_id field
func WithSite(logger *zap.Logger, siteID string) *zap.Logger {
	return logger.With(zap.String("site_id", siteID))
}

// MaskToken keeps the first characters of a device token for log correlation.
func MaskToken(token string) string {
	if len(token) <= 5 {
		return "***"
	}
	return token[:5] + "..."
}
