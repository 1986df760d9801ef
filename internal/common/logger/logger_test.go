package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARN":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestZapWrapper_FieldsAndErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core))

	scoped := log.WithFields(map[string]interface{}{"component": "workflow"})
	scoped.Info("stage approved", map[string]interface{}{
		"stage": "Printing",
		"error": errors.New("boom"),
	})

	entries := logs.All()
	assert.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "workflow", ctx["component"])
	assert.Equal(t, "Printing", ctx["stage"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestNew_FallsBackToNopOnBadOutput(t *testing.T) {
	l := New("info", "json", "/nonexistent-dir/for/sure/log.txt")
	assert.NotNil(t, l)
}

func TestNoOpLogger(t *testing.T) {
	log := NewNoOpLogger()
	log.WithError(errors.New("x")).With(map[string]interface{}{"a": 1}).Warn("ignored", nil)
}
