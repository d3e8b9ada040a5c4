package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestConfigureWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	if err := ConfigureWriter(LevelWarn, &buf); err != nil {
		t.Fatalf("ConfigureWriter() error = %v", err)
	}

	slog.Debug("quiet")
	slog.Info("quiet")
	slog.Warn("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("output contains suppressed levels: %q", out)
	}
	if !strings.Contains(out, "loud") {
		t.Errorf("output missing warn line: %q", out)
	}
}

func TestInvalidLevel(t *testing.T) {
	if err := ConfigureWriter("shout", &bytes.Buffer{}); err == nil {
		t.Error("ConfigureWriter() = nil error for invalid level")
	}
}

func TestEmptyLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	if err := ConfigureWriter("", &buf); err != nil {
		t.Fatalf("ConfigureWriter() error = %v", err)
	}

	slog.Info("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("output missing info line: %q", buf.String())
	}
}
