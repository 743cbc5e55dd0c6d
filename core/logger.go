package core

import "context"

// Logger is the minimal structured logging interface every execrt
// subsystem depends on. Router, WAL, contract engine, and recorder all
// take a Logger rather than reaching for a concrete implementation, so
// tests can substitute a NoOpLogger or a recording fake.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger extends Logger with a component tag that
// appears on every structured log line, letting operators filter logs
// by subsystem:
//
//	kubectl logs ... | jq 'select(.component == "execrt/router")'
//
// Component naming convention:
//   - "execrt/router"      - intent routing decisions
//   - "execrt/wal"         - write-ahead log writer/reader
//   - "execrt/contract"    - contract enforcement
//   - "execrt/recorder"    - execution record finalization
//   - "execrt/recovery"    - crash recovery scan and replay
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// NoOpLogger discards all log output. It is the zero-value default
// used in tests and anywhere a caller hasn't wired telemetry.ProductionLogger.
type NoOpLogger struct{}

var _ ComponentAwareLogger = NoOpLogger{}

func (NoOpLogger) Info(string, map[string]interface{})  {}
func (NoOpLogger) Error(string, map[string]interface{}) {}
func (NoOpLogger) Warn(string, map[string]interface{})  {}
func (NoOpLogger) Debug(string, map[string]interface{}) {}

func (NoOpLogger) InfoWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) ErrorWithContext(context.Context, string, map[string]interface{}) {}
func (NoOpLogger) WarnWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) DebugWithContext(context.Context, string, map[string]interface{}) {}

func (NoOpLogger) WithComponent(string) Logger { return NoOpLogger{} }
