package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMapToZapFields(t *testing.T) {
	assert.Nil(t, mapToZapFields(nil))

	fields := mapToZapFields(map[string]interface{}{"error": errors.New("boom")})
	assert.Len(t, fields, 1)
	assert.Equal(t, zapcore.ErrorType, fields[0].Type)
	assert.Equal(t, "error", fields[0].Key)
}

func TestZapWrapper_WithFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core)).WithFields(map[string]interface{}{"component": "test"})

	log.Info("submission accepted", map[string]interface{}{"form": "contact"})

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, "test", ctx["component"])
		assert.Equal(t, "contact", ctx["form"])
		assert.Equal(t, "submission accepted", entries[0].Message)
	}
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	l := New("verbose", "json")
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestFromContext(t *testing.T) {
	fallback := NewNoOpLogger()
	assert.Equal(t, fallback, FromContext(context.Background(), fallback))

	scoped := NewTestLogger(t)
	ctx := ContextWithLogger(context.Background(), scoped)
	assert.Equal(t, scoped, FromContext(ctx, fallback))
}
