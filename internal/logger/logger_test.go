package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLogger(t *testing.T) {
	Init(nil)
	if Logger() == nil {
		t.Fatal("Logger() returned nil before Init")
	}

	for _, verbose := range []bool{false, true} {
		l, err := New(verbose)
		if err != nil {
			t.Fatalf("New(%v) error = %v", verbose, err)
		}
		if got := l.Desugar().Core().Enabled(zapcore.DebugLevel); got != verbose {
			t.Fatalf("New(%v) debug enabled = %v", verbose, got)
		}
	}

	l, _ := New(false)
	Init(l)
	t.Cleanup(func() { Init(nil) })
	if Logger() != l {
		t.Fatal("Logger() did not return the logger passed to Init")
	}
}
