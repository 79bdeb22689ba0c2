package logger_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/molecula/nvdstore/logger"
)

func TestStandardLogger(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewStandardLogger(&buf)

	l.Infof("processing %d documents", 3)
	l.Debugf("should be suppressed")

	out := buf.String()
	if !strings.Contains(out, "INFO:  processing 3 documents") {
		t.Fatalf("unexpected log output: %q", out)
	}
	if strings.Contains(out, "suppressed") {
		t.Fatalf("debug output not suppressed: %q", out)
	}
}

func TestVerboseLogger(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewVerboseLogger(&buf)

	l.Debugf("flushing shard %d", 0)

	if !strings.Contains(buf.String(), "DEBUG: flushing shard 0") {
		t.Fatalf("unexpected log output: %q", buf.String())
	}
}

func TestWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewStandardLogger(&buf).WithPrefix("adapter: ")

	l.Warnf("lock conflict")

	if !strings.Contains(buf.String(), "adapter: ") {
		t.Fatalf("missing prefix: %q", buf.String())
	}
}

func TestBufferLogger(t *testing.T) {
	l := logger.NewBufferLogger()
	l.Warnf("type mismatch: %s", "string vs int")

	b, err := l.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "WARN:  type mismatch: string vs int") {
		t.Fatalf("unexpected buffer contents: %q", b)
	}
}
