package log_test

import (
	"bytes"
	"context"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/aptpod/mptcp-go/log"
)

func Test_stdLogger(t *testing.T) {
	var buf bytes.Buffer
	testee := NewStdWith(log.New(&buf, "", log.Lshortfile))
	testee.Debugf(WithTrackSubflowID(context.Background(), 7), "window %d", 0)
	assert.Equal(t, "logger_std_test.go:18: DEBUG: subflow=7 window 0\n", buf.String())
}

func Example_stdLogger() {
	ctx := WithConnectionID(context.Background(), "conn-1")
	ctx = WithTrackSubflowID(ctx, 2)
	testee := NewStdWith(log.New(os.Stdout, "", 0))
	testee.Infof(ctx, "message %s", "info")
	testee.Warnf(context.Background(), "message %s", "warn")
	testee.Errorf(context.Background(), "message %d%%", 100)

	// Output:
	// INFO: conn=conn-1 subflow=2 message info
	// WARN: message warn
	// ERROR: message 100%
}
