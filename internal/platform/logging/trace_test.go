package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseTraceparent(t *testing.T) {
	tests := []struct {
		header  string
		ok      bool
		traceID string
		spanID  string
		sampled bool
	}{
		{"00-3d23d071b5bfd6579171efce907685cb-08f067aa0ba902b7-01", true, "3d23d071b5bfd6579171efce907685cb", "08f067aa0ba902b7", true},
		{"00-3d23d071b5bfd6579171efce907685cb-08f067aa0ba902b7-00", true, "3d23d071b5bfd6579171efce907685cb", "08f067aa0ba902b7", false},
		{"", false, "", "", false},
		{"not-a-trace", false, "", "", false},
		{"00-short-08f067aa0ba902b7-01", false, "", "", false},
	}

	for _, tt := range tests {
		tc, ok := parseTraceparent(tt.header)
		if ok != tt.ok {
			t.Errorf("parseTraceparent(%q) ok = %v, want %v", tt.header, ok, tt.ok)
			continue
		}
		if tc.TraceID != tt.traceID || tc.SpanID != tt.spanID || tc.Sampled != tt.sampled {
			t.Errorf("parseTraceparent(%q) = %+v", tt.header, tc)
		}
	}
}

func TestLoggerWithTraceAddsFields(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	logger := loggerWithTrace(zap.New(core), "00-3d23d071b5bfd6579171efce907685cb-08f067aa0ba902b7-01", "req-1")

	logger.Info("hello")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := fieldMap(entries[0])
	if f, ok := fields["traceId"]; !ok || f.String != "3d23d071b5bfd6579171efce907685cb" {
		t.Fatalf("expected traceId field, got %+v", fields)
	}
	if f, ok := fields["spanId"]; !ok || f.String != "08f067aa0ba902b7" {
		t.Fatalf("expected spanId field, got %+v", fields)
	}
	if f, ok := fields["requestId"]; !ok || f.String != "req-1" {
		t.Fatalf("expected requestId field, got %+v", fields)
	}
}

func TestLoggerWithTraceNoFields(t *testing.T) {
	base := zap.NewNop()
	if got := loggerWithTrace(base, "", ""); got != base {
		t.Fatal("expected base logger when no fields apply")
	}
}

func TestLoggerWithTraceNilBase(t *testing.T) {
	if loggerWithTrace(nil, "", "req") == nil {
		t.Fatal("expected non-nil logger")
	}
}
