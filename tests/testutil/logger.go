package testutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systmms/gcpkit/internal/logging"
)

// TestLogger captures the output of a real logging.Logger for validation in
// tests.
//
// Example usage:
//
//	tl := NewTestLogger(t, true)
//	store := secretstore.New(fake, secretstore.WithLogger(tl.Logger()))
//	...
//	tl.AssertNotContains(t, "payload-value")
type TestLogger struct {
	mu     sync.Mutex
	buffer bytes.Buffer
	logger *logging.Logger
}

type lockedWriter struct{ l *TestLogger }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.l.mu.Lock()
	defer w.l.mu.Unlock()
	return w.l.buffer.Write(p)
}

// NewTestLogger creates a TestLogger. Color is always off so output can be
// matched on the plain level markers.
func NewTestLogger(t *testing.T, debug bool) *TestLogger {
	t.Helper()

	tl := &TestLogger{}
	tl.logger = logging.NewWithWriter(lockedWriter{tl}, debug, true)
	return tl
}

// Logger returns the logger to hand to the code under test.
func (l *TestLogger) Logger() *logging.Logger {
	return l.logger
}

// GetOutput returns everything logged so far.
func (l *TestLogger) GetOutput() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.buffer.String()
}

// Clear discards the captured output.
func (l *TestLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer.Reset()
}

// AssertContains asserts that the log output contains substr.
func (l *TestLogger) AssertContains(t *testing.T, substr string) {
	t.Helper()

	assert.Contains(t, l.GetOutput(), substr, "Expected log output to contain %q", substr)
}

// AssertNotContains asserts that the log output does NOT contain substr.
func (l *TestLogger) AssertNotContains(t *testing.T, substr string) {
	t.Helper()

	assert.NotContains(t, l.GetOutput(), substr, "Expected log output to NOT contain %q", substr)
}

// AssertLogCount asserts that a log level appears count times.
//
// Level markers:
//   - Info: "✓"
//   - Warn: "⚠"
//   - Error: "✗"
//   - Debug: "[DEBUG]"
func (l *TestLogger) AssertLogCount(t *testing.T, level string, count int) {
	t.Helper()

	var marker string
	switch level {
	case "info":
		marker = "✓ "
	case "warn":
		marker = "⚠ "
	case "error":
		marker = "✗ "
	case "debug":
		marker = "[DEBUG] "
	default:
		t.Fatalf("Unknown log level: %s", level)
	}

	actual := 0
	for _, line := range l.Lines() {
		if strings.HasPrefix(line, marker) {
			actual++
		}
	}
	assert.Equal(t, count, actual, "Expected %d %s log messages, got %d", count, level, actual)
}

// Lines returns the non-empty log lines.
func (l *TestLogger) Lines() []string {
	lines := strings.Split(l.GetOutput(), "\n")

	result := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
