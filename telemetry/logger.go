package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/gomind-labs/execrt/core"
)

// ProductionLogger is the execrt runtime's default core.ComponentAwareLogger:
// JSON in production (auto-detected via KUBERNETES_SERVICE_HOST), a
// human-readable line format for local development, rate-limited
// error output, and trace/span correlation pulled from context when a
// span is active.
//
// Configuration priority:
//  1. Explicit core.Config fields (highest)
//  2. Environment variables (EXECRT_LOG_LEVEL, EXECRT_LOG_FORMAT, EXECRT_DEBUG)
//  3. Auto-detection (Kubernetes environment -> JSON)
//  4. Defaults (lowest)
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	component   string
	format      string
	output      io.Writer
	mu          sync.RWMutex

	errorLimiter *RateLimiter
}

// NewProductionLogger builds a logger from a resolved core.LoggingConfig.
func NewProductionLogger(logging core.LoggingConfig, dev core.DevelopmentConfig, serviceName string) *ProductionLogger {
	level := logging.Level
	if level == "" {
		level = "info"
	}
	debug := dev.DebugLogging

	format := logging.Format
	if format == "" {
		format = "text"
		if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
			format = "json"
		}
	}

	return &ProductionLogger{
		level:        strings.ToUpper(level),
		debug:        debug,
		serviceName:  serviceName,
		component:    "execrt",
		format:       format,
		output:       os.Stdout,
		errorLimiter: NewRateLimiter(1 * time.Second),
	}
}

var _ core.ComponentAwareLogger = (*ProductionLogger)(nil)

// WithComponent returns a logger that tags every line with component,
// sharing the parent's level/format/output/rate-limiter.
func (p *ProductionLogger) WithComponent(component string) core.Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &ProductionLogger{
		level:        p.level,
		debug:        p.debug,
		serviceName:  p.serviceName,
		component:    component,
		format:       p.format,
		output:       p.output,
		errorLimiter: p.errorLimiter,
	}
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.log(context.Background(), "INFO", msg, fields)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.log(context.Background(), "WARN", msg, fields)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	if p.errorLimiter != nil && !p.errorLimiter.Allow() {
		return
	}
	p.log(context.Background(), "ERROR", msg, fields)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if !p.debug {
		return
	}
	p.log(context.Background(), "DEBUG", msg, fields)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log(ctx, "INFO", msg, fields)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.errorLimiter != nil && !p.errorLimiter.Allow() {
		return
	}
	p.log(ctx, "ERROR", msg, fields)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log(ctx, "WARN", msg, fields)
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if !p.debug {
		return
	}
	p.log(ctx, "DEBUG", msg, fields)
}

func (p *ProductionLogger) log(ctx context.Context, level, msg string, fields map[string]interface{}) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.shouldLog(level) {
		return
	}

	merged := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		merged[k] = v
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		merged["traceId"] = sc.TraceID().String()
		merged["spanId"] = sc.SpanID().String()
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if p.format == "json" {
		p.logJSON(timestamp, level, msg, merged)
	} else {
		p.logText(timestamp, level, msg, merged)
	}
}

func (p *ProductionLogger) logJSON(timestamp, level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level,
		"service":   p.serviceName,
		"component": p.component,
		"message":   msg,
	}
	for k, v := range fields {
		if k == "timestamp" || k == "level" || k == "service" || k == "component" || k == "message" {
			continue
		}
		entry[k] = v
	}
	if data, err := json.Marshal(entry); err == nil {
		fmt.Fprintln(p.output, string(data))
	}
}

func (p *ProductionLogger) logText(timestamp, level, msg string, fields map[string]interface{}) {
	var b strings.Builder
	if len(fields) > 0 {
		b.WriteString(" ")
		for _, k := range []string{"executionId", "intent", "agent", "error"} {
			if v, ok := fields[k]; ok {
				fmt.Fprintf(&b, "%s=%v ", k, v)
				delete(fields, k)
			}
		}
		for k, v := range fields {
			fmt.Fprintf(&b, "%s=%v ", k, v)
		}
	}
	fmt.Fprintf(p.output, "%s [%s] [%s:%s] %s%s\n",
		timestamp, level, p.serviceName, p.component, msg, b.String())
}

func (p *ProductionLogger) shouldLog(level string) bool {
	levels := map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}
	cur, ok1 := levels[p.level]
	msg, ok2 := levels[level]
	if !ok1 || !ok2 {
		return true
	}
	return msg >= cur
}

// SetOutput redirects log output, used by tests to capture lines.
func (p *ProductionLogger) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}
