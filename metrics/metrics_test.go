package metrics_test

import (
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	. "github.com/aptpod/mptcp-go/metrics"
)

func TestNop(t *testing.T) {
	p := NewNop()
	require.NoError(t, p.Start())
	defer p.Stop()
	assert.Equal(t, DefaultRTT, p.RTT())
	assert.Equal(t, DefaultRTTVar, p.RTTVar())
	assert.Equal(t, uint64(DefaultCWND), p.CongestionWindow())
	assert.Equal(t, uint64(0), p.BytesInFlight())
}

func TestEstimator(t *testing.T) {
	e := NewEstimator(0)
	assert.Equal(t, DefaultRTT, e.RTT())
	assert.Equal(t, DefaultRTTVar, e.RTTVar())
	assert.Equal(t, uint64(DefaultCWND), e.CongestionWindow())

	e.Observe(0)
	assert.Equal(t, DefaultRTT, e.RTT())

	e.Observe(80 * time.Millisecond)
	assert.Equal(t, 80*time.Millisecond, e.RTT())
	assert.Equal(t, 40*time.Millisecond, e.RTTVar())

	e.Observe(160 * time.Millisecond)
	assert.Equal(t, 90*time.Millisecond, e.RTT())
	assert.Equal(t, 50*time.Millisecond, e.RTTVar())

	e.SetCongestionWindow(60)
	assert.Equal(t, uint64(60), e.CongestionWindow())
}

func TestEstimator_BytesInFlight(t *testing.T) {
	e := NewEstimator(100)
	tests := []struct {
		name      string
		operation func()
		want      uint64
	}{
		{name: "success: initial state is zero", operation: func() {}, want: 0},
		{name: "success: add 1000 bytes", operation: func() { e.AddBytesInFlight(1000) }, want: 1000},
		{name: "success: subtract 300 bytes", operation: func() { e.SubBytesInFlight(300) }, want: 700},
		{name: "edge case: underflow protection", operation: func() { e.SubBytesInFlight(2000) }, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.operation()
			assert.Equal(t, tt.want, e.BytesInFlight())
		})
	}
}

func TestTCPInfoProvider_NotTCP(t *testing.T) {
	defer goleak.VerifyNone(t)
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	p := NewTCPInfoProvider(client, 100*time.Millisecond, clock.NewMock())
	require.NoError(t, p.Start())
	assert.Error(t, p.Start())

	assert.Equal(t, DefaultRTT, p.RTT())
	assert.Equal(t, DefaultRTTVar, p.RTTVar())
	assert.Equal(t, uint64(DefaultCWND), p.CongestionWindow())

	p.AddBytesInFlight(10)
	p.SubBytesInFlight(4)
	assert.Equal(t, uint64(6), p.BytesInFlight())

	p.Stop()
	p.Stop()
	assert.Error(t, p.Start())
}

func TestTCPInfoProvider_TCP(t *testing.T) {
	defer goleak.VerifyNone(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
		close(accepted)
	}()
	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	if c, ok := <-accepted; ok {
		defer c.Close()
	}

	mock := clock.NewMock()
	p := NewTCPInfoProvider(conn, time.Second, mock)
	require.NoError(t, p.Start())
	defer p.Stop()

	mock.Add(time.Second)
	assert.Positive(t, p.RTT())
	assert.Positive(t, p.RTTVar())
	assert.Positive(t, p.CongestionWindow())
}
