package logger

import (
	"testing"

	"github.com/rogerio-castellano/fleet-maintenance/internal/config"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	log, err := New(config.LogConfig{Level: "warn", Encoding: "json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !log.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("error should be enabled at warn level")
	}

	if _, err := New(config.LogConfig{Level: "debug", Encoding: "console"}); err != nil {
		t.Fatalf("console logger: %v", err)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud", Encoding: "json"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}
