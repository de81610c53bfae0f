package logger

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	fingerprintBytes   = 8
	errInvalidLevelFmt = "invalid log level %q: %w"

	FieldSession = "session"
	FieldReason  = "reason"
)

// New builds the process logger. development switches to a human-readable
// console encoder.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf(errInvalidLevelFmt, level, err)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = !development

	return cfg.Build()
}

// Fingerprint identifies a token in logs without revealing it.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:fingerprintBytes])
}

// Session is the zap field carrying a token's fingerprint.
func Session(token string) zap.Field {
	return zap.String(FieldSession, Fingerprint(token))
}
