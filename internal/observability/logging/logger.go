package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const redacted = "[redacted]"

// sensitiveKeys never reach log output with their values intact.
var sensitiveKeys = map[string]struct{}{
	"passcode":          {},
	"code":              {},
	"secure_token":      {},
	"token":             {},
	"vendor_token":      {},
	"approval_token":    {},
	"vp_token":          {},
	"procurement_token": {},
	"authorization":     {},
	"password":          {},
}

func NewJSONLogger(service, level string) *slog.Logger {
	return New(os.Stdout, service, level)
}

func New(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: redact,
	})
	return slog.New(handler).With("service", service)
}

func redact(_ []string, attr slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(attr.Key)]; ok && attr.Value.Kind() == slog.KindString {
		if attr.Value.String() == "" {
			return attr
		}
		return slog.String(attr.Key, redacted)
	}
	return attr
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
