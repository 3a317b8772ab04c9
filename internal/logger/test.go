package logger

import (
	"fmt"
	"strings"
	"testing"

	"github.com/eclab/mason-sub011/types"
)

// TestLogger writes log records to testing.TB so they appear next to the
// failing assertion. The prefix distinguishes processes running as
// goroutines in one test.
type TestLogger struct {
	tb     testing.TB
	prefix string
}

// Compile-time assertion that TestLogger implements Logger.
var _ types.Logger = (*TestLogger)(nil)

// NewTest creates a test logger.
func NewTest(tb testing.TB) *TestLogger {
	return &TestLogger{tb: tb}
}

// ForRank returns a test logger that prefixes records with the rank.
func (l *TestLogger) ForRank(rank int) *TestLogger {
	return &TestLogger{tb: l.tb, prefix: fmt.Sprintf("[rank %d] ", rank)}
}

// Debug logs a debug-level message.
func (l *TestLogger) Debug(msg string, keysAndValues ...any) {
	l.tb.Logf("%sDEBUG: %s %s", l.prefix, msg, formatKeyValues(keysAndValues))
}

// Info logs an info-level message.
func (l *TestLogger) Info(msg string, keysAndValues ...any) {
	l.tb.Logf("%sINFO: %s %s", l.prefix, msg, formatKeyValues(keysAndValues))
}

// Warn logs a warning-level message.
func (l *TestLogger) Warn(msg string, keysAndValues ...any) {
	l.tb.Logf("%sWARN: %s %s", l.prefix, msg, formatKeyValues(keysAndValues))
}

// Error logs an error-level message.
func (l *TestLogger) Error(msg string, keysAndValues ...any) {
	l.tb.Logf("%sERROR: %s %s", l.prefix, msg, formatKeyValues(keysAndValues))
}

// Fatal logs the message and fails the test.
func (l *TestLogger) Fatal(msg string, keysAndValues ...any) {
	l.tb.Fatalf("%sFATAL: %s %s", l.prefix, msg, formatKeyValues(keysAndValues))
}

func formatKeyValues(keysAndValues []any) string {
	var b strings.Builder
	for i := 0; i < len(keysAndValues); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		if i+1 < len(keysAndValues) {
			fmt.Fprintf(&b, "%v=%v", keysAndValues[i], keysAndValues[i+1])
		} else {
			fmt.Fprintf(&b, "%v=<missing>", keysAndValues[i])
		}
	}

	return b.String()
}
