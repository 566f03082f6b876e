package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// QueryLogConfig tunes the database query logger.
type QueryLogConfig struct {
	Level         string
	SlowThreshold time.Duration
}

// QueryLogger sends gorm output through the request-scoped zap logger so ledger
// queries carry the same request_id and actor as the handler that issued them.
// Missing rows are never logged: the repositories report them as nil results.
type QueryLogger struct {
	level gormlogger.LogLevel
	slow  time.Duration
}

func NewQueryLogger(cfg QueryLogConfig) *QueryLogger {
	return &QueryLogger{
		level: parseQueryLevel(cfg.Level),
		slow:  cfg.SlowThreshold,
	}
}

func parseQueryLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent", "off":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func (l *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *QueryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *QueryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *QueryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *QueryLogger) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.level < min {
		return
	}
	if len(data) > 0 {
		msg = fmt.Sprintf(msg, data...)
	}
	if ce := FromContext(ctx).Check(level, msg); ce != nil {
		ce.Write(zap.String("component", "db"))
	}
}

func (l *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	var level zapcore.Level
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		level = zapcore.ErrorLevel
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		level = zapcore.WarnLevel
	case l.level >= gormlogger.Info:
		level = zapcore.DebugLevel
	default:
		return
	}

	ce := FromContext(ctx).Check(level, "db query")
	if ce == nil {
		return
	}
	sql, rows := fc()
	verb, table := statementShape(sql)
	fields := []zap.Field{
		zap.String("component", "db"),
		zap.String("statement", verb),
		zap.String("table", table),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.String("sql", strings.TrimSpace(sql)),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if level == zapcore.WarnLevel {
		fields = append(fields, zap.Bool("slow", true))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

// ParamsFilter keeps bound values (SKUs, actors, reasons) out of the logged SQL.
func (l *QueryLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

// statementShape reports the verb and first table a statement touches, e.g.
// ("UPDATE", "inventory_items"). Unknown parts come back as "other".
func statementShape(sql string) (verb, table string) {
	tokens := strings.Fields(sql)
	for i, token := range tokens {
		word := strings.ToUpper(strings.Trim(token, "();"))
		switch word {
		case "SELECT", "INSERT", "DELETE":
			if verb == "" {
				verb = word
			}
		case "UPDATE":
			if verb == "" {
				verb = word
				table = identifierAt(tokens, i+1)
			}
		case "FROM", "INTO":
			if table == "" {
				table = identifierAt(tokens, i+1)
			}
		}
		if verb != "" && table != "" {
			break
		}
	}
	if verb == "" {
		verb = "other"
	}
	if table == "" {
		table = "other"
	}
	return verb, table
}

func identifierAt(tokens []string, i int) string {
	if i >= len(tokens) {
		return ""
	}
	ident := strings.Trim(tokens[i], "`\"();")
	if strings.EqualFold(ident, "SELECT") {
		return ""
	}
	return ident
}

var _ gormlogger.Interface = (*QueryLogger)(nil)
