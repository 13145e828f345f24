// Package testing holds test helpers shared by the chunkguard packages.
package testing

import (
	"bytes"
	"log/slog"
	"testing"
)

// NewTestLogger returns a debug level logger that writes into the returned
// buffer. The captured output is written to the test log if the test fails.
func NewTestLogger(t testing.TB) (*slog.Logger, *bytes.Buffer) {
	t.Helper()

	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("captured log output:\n%s", buf.String())
		}
	})
	return logger, buf
}
