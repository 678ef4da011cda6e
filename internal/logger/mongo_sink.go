package logger

import (
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MongoLogSink routes the MongoDB driver's structured log messages into zap.
// It implements options.LogSink.
type MongoLogSink struct {
	Logger         *zap.Logger
	SensitiveWords []string
}

var _ options.LogSink = (*MongoLogSink)(nil)

// driver levels: 1 = info, 2 = debug
const mongoDebugLevel = 2

// NewMongoLogSink creates a sink writing to a child logger named "mongo".
func NewMongoLogSink(base *zap.Logger) *MongoLogSink {
	if base == nil {
		panic("Zap logger is not initialized before creating MongoLogSink")
	}
	return &MongoLogSink{
		Logger:         base.Named("mongo"),
		SensitiveWords: []string{"password", "pwd", "token", "secret", "apikey", "credential", "saslpayload"},
	}
}

// LoggerOptions returns driver logger options using this sink. Command
// monitoring is only enabled in debug mode since it logs every round trip.
func (s *MongoLogSink) LoggerOptions(debug bool) *options.LoggerOptions {
	opts := options.Logger().SetSink(s).
		SetComponentLevel(options.LogComponentTopology, options.LogLevelInfo).
		SetComponentLevel(options.LogComponentConnection, options.LogLevelInfo)
	if debug {
		opts.SetComponentLevel(options.LogComponentCommand, options.LogLevelDebug).
			SetComponentLevel(options.LogComponentServerSelection, options.LogLevelDebug)
	}
	return opts
}

// Info logs a driver message. Driver debug messages map to zap Debug.
func (s *MongoLogSink) Info(level int, message string, keysAndValues ...interface{}) {
	zl := zapcore.InfoLevel
	if level >= mongoDebugLevel {
		zl = zapcore.DebugLevel
	}
	if ce := s.Logger.Check(zl, message); ce != nil {
		ce.Write(s.fields(keysAndValues)...)
	}
}

// Error logs a driver error.
func (s *MongoLogSink) Error(err error, message string, keysAndValues ...interface{}) {
	fields := append(s.fields(keysAndValues), zap.Error(err))
	s.Logger.Error(message, fields...)
}

func (s *MongoLogSink) fields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		val := keysAndValues[i+1]
		if s.isSensitive(key) {
			fields = append(fields, zap.String(key, "***REDACTED***"))
			continue
		}
		if str, ok := val.(string); ok {
			fields = append(fields, zap.String(key, s.redact(str)))
			continue
		}
		fields = append(fields, zap.Any(key, val))
	}
	if len(keysAndValues)%2 == 1 {
		fields = append(fields, zap.Any("extra", keysAndValues[len(keysAndValues)-1]))
	}
	return fields
}

func (s *MongoLogSink) isSensitive(key string) bool {
	lk := strings.ToLower(key)
	for _, w := range s.SensitiveWords {
		if strings.Contains(lk, w) {
			return true
		}
	}
	return false
}

// redact masks "word: value" / "word=value" pairs, e.g. inside a serialized command.
func (s *MongoLogSink) redact(msg string) string {
	out := msg
	for _, word := range s.SensitiveWords {
		re := regexp.MustCompile(fmt.Sprintf(`(?i)("?%s"?\s*[:=]\s*)('.*?'|".*?"|[^\s,}]+)`, regexp.QuoteMeta(word)))
		out = re.ReplaceAllString(out, `${1}***REDACTED***`)
	}
	return out
}
