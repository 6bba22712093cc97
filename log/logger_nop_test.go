package log_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/aptpod/mptcp-go/log"
)

func Test_nopLogger(t *testing.T) {
	ctx := WithTrackConnectionID(context.Background())
	assert.NotEmpty(t, TrackConnectionID(ctx))
	assert.Empty(t, TrackSubflowID(ctx))

	testee := NewNop()
	assert.NotPanics(t, func() {
		testee.Infof(ctx, "subflow %d established", 1)
		testee.Debugf(WithTrackSubflowID(ctx, 1), "window %d", 0)
	})
}
