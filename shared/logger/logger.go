package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// OpsForwarder receives warn and error lines for the operations chat.
type OpsForwarder interface {
	SendOpsMessage(text string)
}

type Logger struct {
	ZapLogger   *zap.SugaredLogger
	atomicLevel zap.AtomicLevel
	forwarder   OpsForwarder
}

type Config struct {
	Level       string
	Environment string
	// Forwarder is optional; when set, Warn/Error/Fatal lines are mirrored to it.
	Forwarder OpsForwarder
}

func parseLevel(level string) (zapcore.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel, true
	case "info":
		return zap.InfoLevel, true
	case "warn", "warning":
		return zap.WarnLevel, true
	case "error":
		return zap.ErrorLevel, true
	case "fatal":
		return zap.FatalLevel, true
	}
	return zap.InfoLevel, false
}

func NewLogger(cfg Config) (*Logger, error) {
	logLevel, ok := parseLevel(cfg.Level)
	if !ok {
		fmt.Printf("WARN: Invalid log level '%s' specified, defaulting to INFO\n", cfg.Level)
	}

	atomicLevel := zap.NewAtomicLevelAt(logLevel)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.LevelKey = "severity"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if cfg.Environment == "production" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), atomicLevel)

	// AddCallerSkip(1) so caller shows function calling logger methods, not logger methods themselves
	zapLogger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	l := &Logger{
		ZapLogger:   zapLogger.Sugar(),
		atomicLevel: atomicLevel,
		forwarder:   cfg.Forwarder,
	}
	l.ZapLogger.Infof("Logger initialized. Level: %s, Ops forwarding: %t", logLevel.String(), cfg.Forwarder != nil)
	return l, nil
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{
		ZapLogger:   zap.NewNop().Sugar(),
		atomicLevel: zap.NewAtomicLevelAt(zap.FatalLevel),
	}
}

// SetForwarder attaches the ops forwarder once the Telegram transport is up.
func (l *Logger) SetForwarder(f OpsForwarder) {
	l.forwarder = f
}

// formatKeyValuesForTelegram renders key/value pairs as plain text for the ops chat.
func formatKeyValuesForTelegram(keysAndValues ...interface{}) string {
	if len(keysAndValues) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(" |")
	for i := 0; i < len(keysAndValues); i++ {
		switch v := keysAndValues[i].(type) {
		case zap.Field:
			sb.WriteString(fmt.Sprintf(" %s=%s", v.Key, fieldValue(v)))
		default:
			if i+1 >= len(keysAndValues) {
				sb.WriteString(fmt.Sprintf(" %v=INVALID_ARGS", v))
				continue
			}
			val := keysAndValues[i+1]
			if err, ok := val.(error); ok {
				val = err.Error()
			}
			sb.WriteString(fmt.Sprintf(" %v=%v", v, val))
			i++
		}
	}
	return sb.String()
}

func fieldValue(f zap.Field) string {
	switch f.Type {
	case zapcore.StringType:
		return f.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprintf("%d", f.Integer)
	case zapcore.BoolType:
		return fmt.Sprintf("%t", f.Integer == 1)
	case zapcore.DurationType:
		return time.Duration(f.Integer).String()
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok {
			return err.Error()
		}
	}
	if f.Interface != nil {
		return fmt.Sprintf("%v", f.Interface)
	}
	return f.String
}

func (l *Logger) forward(prefix, msg string, keysAndValues ...interface{}) {
	if l.forwarder == nil {
		return
	}
	l.forwarder.SendOpsMessage(prefix + msg + formatKeyValuesForTelegram(keysAndValues...))
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.ZapLogger.Debugw(msg, keysAndValues...)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.ZapLogger.Infow(msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.ZapLogger.Warnw(msg, keysAndValues...)
	l.forward("🟡 WARN: ", msg, keysAndValues...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.ZapLogger.Errorw(msg, keysAndValues...)
	l.forward("🔴 ERROR: ", msg, keysAndValues...)
}

func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.ZapLogger.Errorw(msg, keysAndValues...)
	if l.forwarder != nil {
		l.forward("💀 FATAL: ", msg, keysAndValues...)
		// Give Telegram a moment to send before exiting
		time.Sleep(1 * time.Second)
	}
	l.ZapLogger.Fatalw(msg, keysAndValues...)
}

// With returns a child logger carrying the given fields on every line.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		ZapLogger:   l.ZapLogger.With(keysAndValues...),
		atomicLevel: l.atomicLevel,
		forwarder:   l.forwarder,
	}
}

func (l *Logger) SetLevel(level string) {
	logLevel, ok := parseLevel(level)
	if !ok || logLevel == zap.FatalLevel {
		l.ZapLogger.Warnf("Invalid log level '%s' provided to SetLevel, level unchanged.", level)
		return
	}
	l.atomicLevel.SetLevel(logLevel)
	l.ZapLogger.Infof("Logger level changed to: %s", logLevel.String())
}
