package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// LoggingConfig controls ProductionLogger's output format and level.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"LOG_FORMAT" default:"json"`
	Output string `json:"output" env:"LOG_OUTPUT" default:"stdout"`
}

// DevelopmentConfig holds local-development logging overrides.
type DevelopmentConfig struct {
	Enabled      bool `json:"enabled" env:"DEV_MODE" default:"false"`
	DebugLogging bool `json:"debug_logging" env:"DEBUG" default:"false"`
}

// ProductionLogger is the Logger used by both the distributor and the
// analyzer binary: JSON structured output (suitable for aggregation in
// Kubernetes) or human-readable text for local development, selected by
// LoggingConfig.Format. The *WithContext variants enrich the log entry
// with the request/correlation ID carried on ctx, when present.
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	format      string
	output      io.Writer
}

// NewProductionLogger constructs a Logger from LoggingConfig and
// DevelopmentConfig for the named service ("distributor" or "analyzer").
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}

	return &ProductionLogger{
		level:       strings.ToLower(logging.Level),
		debug:       dev.DebugLogging || strings.ToLower(logging.Level) == "debug",
		serviceName: serviceName,
		format:      logging.Format,
		output:      output,
	}
}

func (p *ProductionLogger) WithComponent(component string) Logger {
	return &componentLogger{base: p, component: component}
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", "", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", "", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", "", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", "", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", "", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", "", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", "", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", "", msg, fields, ctx)
	}
}

func (p *ProductionLogger) logEvent(level, component, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)

	if p.format == "json" {
		logEntry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"message":   msg,
		}
		if component != "" {
			logEntry["component"] = component
		}
		if ctx != nil {
			if id := requestIDFromContext(ctx); id != "" {
				logEntry["request_id"] = id
			}
		}
		for k, v := range fields {
			logEntry[k] = v
		}
		if data, err := json.Marshal(logEntry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		return
	}

	traceInfo := ""
	if ctx != nil {
		if id := requestIDFromContext(ctx); id != "" {
			traceInfo = fmt.Sprintf("[req=%s] ", id)
		}
	}

	var fieldStr strings.Builder
	if len(fields) > 0 {
		fieldStr.WriteString(" ")
		for k, v := range fields {
			fieldStr.WriteString(fmt.Sprintf("%s=%v ", k, v))
		}
	}

	name := p.serviceName
	if component != "" {
		name = fmt.Sprintf("%s/%s", p.serviceName, component)
	}
	fmt.Fprintf(p.output, "%s [%s] [%s] %s%s%s\n", timestamp, level, name, traceInfo, msg, fieldStr.String())
}

// componentLogger decorates a ProductionLogger with a fixed component tag
// applied to every log line, e.g. "dispatcher" or "config_watcher".
type componentLogger struct {
	base      *ProductionLogger
	component string
}

func (c *componentLogger) Info(msg string, fields map[string]interface{}) {
	c.base.logEvent("INFO", c.component, msg, fields, nil)
}

func (c *componentLogger) Error(msg string, fields map[string]interface{}) {
	c.base.logEvent("ERROR", c.component, msg, fields, nil)
}

func (c *componentLogger) Warn(msg string, fields map[string]interface{}) {
	c.base.logEvent("WARN", c.component, msg, fields, nil)
}

func (c *componentLogger) Debug(msg string, fields map[string]interface{}) {
	if c.base.debug {
		c.base.logEvent("DEBUG", c.component, msg, fields, nil)
	}
}

func (c *componentLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	c.base.logEvent("INFO", c.component, msg, fields, ctx)
}

func (c *componentLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	c.base.logEvent("ERROR", c.component, msg, fields, ctx)
}

func (c *componentLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	c.base.logEvent("WARN", c.component, msg, fields, ctx)
}

func (c *componentLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if c.base.debug {
		c.base.logEvent("DEBUG", c.component, msg, fields, ctx)
	}
}

var _ ComponentAwareLogger = (*ProductionLogger)(nil)
