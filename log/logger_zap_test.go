package log_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	. "github.com/aptpod/mptcp-go/log"
)

func Test_zapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	testee := NewZap(zap.New(core))

	ctx := WithConnectionID(context.Background(), "conn-1")
	testee.Infof(ctx, "hello %s", "info")
	testee.Warnf(context.Background(), "hello %s", "warn")
	testee.Errorf(context.Background(), "hello %s", "error")
	testee.Debugf(WithTrackSubflowID(ctx, 3), "hello %s", "debug")

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, "hello info", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, map[string]interface{}{"conn": "conn-1"}, entries[0].ContextMap())
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Empty(t, entries[1].ContextMap())
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, map[string]interface{}{
		"conn":    "conn-1",
		"subflow": "3",
	}, entries[3].ContextMap())
}
