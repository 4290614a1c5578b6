package testutil

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// AssertNoSecretLeak verifies that none of the secret values appear in output.
//
// Example usage:
//
//	AssertNoSecretLeak(t, out+logs.GetOutput(), []string{"s3cret", "n3w-s3cret"})
func AssertNoSecretLeak(t *testing.T, output string, secrets []string) {
	t.Helper()

	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		assert.NotContains(t, output, secret,
			"Secret %q should not appear in output", secret)
	}
}

// AssertFileContents verifies that a file exists, holds expected and is
// readable by its owner only.
func AssertFileContents(t *testing.T, path string, expected string) {
	t.Helper()

	info, err := os.Stat(path)
	if !assert.NoError(t, err, "File should exist: %s", path) {
		return
	}
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "File %s should have mode 0600", path)

	content, err := os.ReadFile(path)
	if !assert.NoError(t, err, "Failed to read file: %s", path) {
		return
	}
	assert.Equal(t, expected, string(content), "File contents mismatch: %s", path)
}

// AssertLinesContain verifies that each expected substring appears on some
// line of output, in order.
func AssertLinesContain(t *testing.T, output string, expectedLines []string) {
	t.Helper()

	lines := strings.Split(output, "\n")
	next := 0
	for _, expected := range expectedLines {
		found := false
		for next < len(lines) {
			line := lines[next]
			next++
			if strings.Contains(line, expected) {
				found = true
				break
			}
		}
		assert.True(t, found, "Expected output to contain line with %q (in order)\nOutput:\n%s", expected, output)
	}
}
