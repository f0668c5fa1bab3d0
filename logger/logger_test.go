package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogLevelMapping(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  zapcore.Level
	}{
		{DebugLevel, zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{InfoLevel, zapcore.InfoLevel},
		{WarnLevel, zapcore.WarnLevel},
		{ErrorLevel, zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := tt.level.zapLevel(); got != tt.want {
			t.Errorf("LogLevel(%q).zapLevel() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestHelpersWriteToGlobalLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := ReplaceForTest(zap.New(core))
	defer restore()

	Info("key pressed", String("key", "1"), Int("windows", 1))
	Warn("fetch failed", ErrorField(errors.New("boom")))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Message != "key pressed" || entries[0].ContextMap()["key"] != "1" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Errorf("second entry level = %v", entries[1].Level)
	}
}

func TestHelpersAreNoopsWithoutLogger(t *testing.T) {
	restore := ReplaceForTest(nil)
	defer restore()

	Debug("ignored")
	Info("ignored")
	Error("ignored", Bool("x", true))
}
