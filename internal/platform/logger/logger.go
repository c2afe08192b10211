package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap sugared logger and scrubs key/value pairs before they are
// written. Participant and session identifiers are hashed, credentials are
// redacted, oversized strings (raw event payloads) are truncated.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

func New(mode string) (*Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(levelFromEnv())
	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zapLogger.Sugar()}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func levelFromEnv() zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))))
	if err != nil || os.Getenv("LOG_LEVEL") == "" {
		return zapcore.DebugLevel
	}
	return lvl
}

func (l *Logger) Sync() { _ = l.SugaredLogger.Sync() }

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, sanitizeKVs(keysAndValues)...)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, sanitizeKVs(keysAndValues)...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, sanitizeKVs(keysAndValues)...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, sanitizeKVs(keysAndValues)...)
}

func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Fatalw(msg, sanitizeKVs(keysAndValues)...)
}

func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(sanitizeKVs(keysAndValues)...)}
}

// redactor holds the scrubbing rules read once from the environment
// (LOG_REDACTION_ENABLED, LOG_HASH_SALT, LOG_MAX_VALUE_BYTES).
type redactor struct {
	enabled    bool
	salt       string
	maxValue   int
	redactKeys []string
	hashKeys   []string
}

var (
	activeOnce sync.Once
	active     redactor
)

func activeRedactor() redactor {
	activeOnce.Do(func() {
		active = redactor{
			enabled:    !isFalse(os.Getenv("LOG_REDACTION_ENABLED")),
			salt:       strings.TrimSpace(os.Getenv("LOG_HASH_SALT")),
			maxValue:   4096,
			redactKeys: []string{"token", "authorization", "password", "secret", "api_key", "apikey", "dsn"},
			hashKeys:   []string{"participant_id", "session_id"},
		}
		if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("LOG_MAX_VALUE_BYTES"))); err == nil && n > 0 {
			active.maxValue = n
		}
	})
	return active
}

func sanitizeKVs(kv []interface{}) []interface{} {
	r := activeRedactor()
	if len(kv) == 0 || !r.enabled {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		key := toString(kv[i])
		out = append(out, key, r.scrub(normKey(key), kv[i+1]))
	}
	if len(kv)%2 == 1 {
		out = append(out, kv[len(kv)-1])
	}
	return out
}

func (r redactor) scrub(key string, val interface{}) interface{} {
	switch {
	case key != "" && containsAny(key, r.redactKeys):
		return "[REDACTED]"
	case key != "" && containsAny(key, r.hashKeys):
		return r.hash(val)
	}
	switch v := val.(type) {
	case string:
		return r.truncate(v)
	case []byte:
		return r.truncate(string(v))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = r.scrub(normKey(k), inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, inner := range v {
			out[i] = r.scrub("", inner)
		}
		return out
	default:
		return val
	}
}

func (r redactor) truncate(s string) string {
	if r.maxValue <= 0 || len(s) <= r.maxValue {
		return s
	}
	return s[:r.maxValue] + fmt.Sprintf("...(%d bytes truncated)", len(s)-r.maxValue)
}

func (r redactor) hash(val interface{}) string {
	raw := toString(val)
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(r.salt + raw))
	return "hash:" + hex.EncodeToString(sum[:])[:12]
}

func normKey(k string) string { return strings.ToLower(strings.TrimSpace(k)) }

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func isFalse(raw string) bool {
	switch normKey(raw) {
	case "0", "false", "no", "off":
		return true
	}
	return false
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
