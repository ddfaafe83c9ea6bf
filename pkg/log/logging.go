// pkg/log/logging.go
package log

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Standard log levels
const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	FatalLevel = zapcore.FatalLevel
)

// Component types
const (
	ComponentTransport    = "transport"
	ComponentRegistration = "registration"
	ComponentCalls        = "calls"
	ComponentDiagnostics  = "diagnostics"
	ComponentConfig       = "config"
	ComponentMetrics      = "metrics"
)

// Logger wraps zap.Logger to provide standardized logging
type Logger struct {
	*zap.Logger
}

// Config holds configuration for the logger
type Config struct {
	Development bool
	Level       zapcore.Level

	// File rotation; empty FilePath logs to stderr only.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewLogger creates a new Logger with the given configuration
func NewLogger(config Config) (*Logger, error) {
	var encoderCfg zapcore.EncoderConfig
	if config.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderCfg = zap.NewProductionEncoderConfig()
	}

	level := zap.NewAtomicLevelAt(config.Level)

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stderr), level),
	}

	if config.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
		}
		cores = append(cores,
			zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rotator), level))
	}

	return &Logger{Logger: zap.New(zapcore.NewTee(cores...))}, nil
}

// With creates a child logger with the given zap fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Component creates a child logger tagged with a component name.
func (l *Logger) Component(name string) *Logger {
	return l.With(zap.String("component", name))
}

// LogRegistrationChange logs a registration state transition.
func (l *Logger) LogRegistrationChange(registered bool, status int) {
	l.Info("Registration state changed",
		zap.String("component", ComponentRegistration),
		zap.Bool("registered", registered),
		zap.Int("sip_status", status))
}

// LogCallPlaced logs a successfully signaled outbound call.
func (l *Logger) LogCallPlaced(callID, to, from, status string) {
	l.Info("Outbound call placed",
		zap.String("component", ComponentCalls),
		zap.String("call_id", callID),
		zap.String("to", to),
		zap.String("from", from),
		zap.String("status", status))
}

// LogCallFailed logs a call rejected by the trunk.
func (l *Logger) LogCallFailed(callID string, status int, reason string) {
	l.Warn("Outbound call failed",
		zap.String("component", ComponentCalls),
		zap.String("call_id", callID),
		zap.Int("sip_status", status),
		zap.String("reason", reason))
}

// LogTransportFailure logs a network-level fault on the signaling path.
func (l *Logger) LogTransportFailure(addr string, elapsed time.Duration, err error) {
	l.Warn("SIP transport failure",
		zap.String("component", ComponentTransport),
		zap.String("addr", addr),
		zap.Duration("elapsed", elapsed),
		zap.Error(err))
}
