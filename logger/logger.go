package logger

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestIDKey is the key used to store the request ID in the gin context
const RequestIDKey = "request_id"

// New builds a JSON production logger or a colored development logger depending on env.
func New(env string) (*zap.Logger, error) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	log, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

// ForRequest returns base tagged with the request ID stored on c, if any.
func ForRequest(c *gin.Context, base *zap.Logger) *zap.Logger {
	if requestID, ok := c.Get(RequestIDKey); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return base.With(zap.String("request_id", id))
		}
	}
	return base
}
