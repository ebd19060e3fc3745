package common

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// testWriter forwards every log line to t.Log so that output only shows up for
// failing tests, or with -v.
type testWriter struct {
	t testing.TB
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// NewTestLogger returns a logrus Logger writing through t at the given level.
func NewTestLogger(t testing.TB, level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.Out = &testWriter{t: t}
	logger.Level = level
	return logger
}

// NewTestEntry is a shorthand for NewTestLogger(t, level).WithField("prefix",
// prefix), which is what most components expect.
func NewTestEntry(t testing.TB, level logrus.Level, prefix string) *logrus.Entry {
	return NewTestLogger(t, level).WithField("prefix", prefix)
}
