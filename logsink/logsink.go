// Package logsink defines the pluggable destination for analyzed log
// messages. The operator dashboard searches the sink by analyzer-name
// prefix, so every implementation must preserve the exact textual form
// "<analyzer_name>: <message> - I was analyzed!".
package logsink

import (
	"fmt"

	"github.com/arclight-systems/logdist/core"
)

// Sink receives one analyzed message at a time.
type Sink interface {
	// Emit records that analyzer accepted message.
	Emit(analyzer, message string)
}

// Format renders the required textual form. Exported so alternative Sink
// implementations can reuse it exactly.
func Format(analyzer, message string) string {
	return fmt.Sprintf("%s: %s - I was analyzed!", analyzer, message)
}

// LoggerSink emits through a core.Logger at Info level. This is the
// default sink used by the analyzer binary; a sink streaming to a
// central log collector can implement the same interface without
// touching the admission gate.
type LoggerSink struct {
	logger core.Logger
}

// NewLoggerSink constructs a LoggerSink writing through logger.
func NewLoggerSink(logger core.Logger) *LoggerSink {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &LoggerSink{logger: logger}
}

// Emit implements Sink.
func (s *LoggerSink) Emit(analyzer, message string) {
	s.logger.Info(Format(analyzer, message), map[string]interface{}{
		"analyzer": analyzer,
	})
}
