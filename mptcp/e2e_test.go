package mptcp_test

import (
	"bytes"
	"io"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/aptpod/mptcp-go/closing"
	"github.com/aptpod/mptcp-go/errors"
	. "github.com/aptpod/mptcp-go/mptcp"
	"github.com/aptpod/mptcp-go/option"
	"github.com/aptpod/mptcp-go/scheduler"
	"github.com/aptpod/mptcp-go/subflow"
	"github.com/aptpod/mptcp-go/transport/pipe"
)

var (
	clientAddr1 = netip.MustParseAddrPort("10.0.0.1:40000")
	clientAddr2 = netip.MustParseAddrPort("10.0.1.1:40001")
	serverAddr  = netip.MustParseAddrPort("192.0.2.1:443")
)

// dataSegmentは、経路上で観測したデータセグメントです。
type dataSegment struct {
	from    netip.AddrPort
	dataSeq uint64
	length  int
}

type tapRecorder struct {
	mu   sync.Mutex
	segs []dataSegment
}

func (r *tapRecorder) tap(from, to netip.AddrPort, seg *subflow.Segment) {
	if len(seg.Payload) == 0 || to != serverAddr {
		return
	}
	dss, ok := subflow.FindOption[*option.DSS](seg)
	if !ok || dss.Mapping == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segs = append(r.segs, dataSegment{from: from, dataSeq: dss.Mapping.DataSeq, length: len(seg.Payload)})
}

func (r *tapRecorder) segments() []dataSegment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dataSegment(nil), r.segs...)
}

type e2e struct {
	net      *pipe.Network
	listener *Listener
	client   *Conn
	server   *Conn
	events   *recorder
	tap      *tapRecorder
}

func newE2E(t *testing.T, cwnd uint64, listenerOpts []ListenerOption, opts ...ConnOption) *e2e {
	t.Helper()
	e := &e2e{events: newRecorder(), tap: &tapRecorder{}}
	e.net = pipe.NewNetwork(
		pipe.WithDefaultPath(pipe.PathConfig{CongestionWindow: cwnd, RTT: 10 * time.Millisecond}),
		pipe.WithTap(e.tap.tap),
	)
	t.Cleanup(e.net.Close)

	e.listener = NewListener(listenerOpts...)
	t.Cleanup(func() { _ = e.listener.Close() })
	require.NoError(t, e.net.Listen(serverAddr, e.listener))

	ctx := testContext(t)
	all := append([]ConnOption{WithConnKey(localKey)}, e.events.options()...)
	client, err := Dial(ctx, e.net, clientAddr1, serverAddr, append(all, opts...)...)
	require.NoError(t, err)
	e.client = client
	t.Cleanup(func() {
		client.Abort()
		<-client.Done()
	})

	server, err := e.listener.Accept(ctx)
	require.NoError(t, err)
	e.server = server
	t.Cleanup(func() {
		server.Abort()
		<-server.Done()
	})

	require.NoError(t, client.WaitEstablished(ctx))
	require.NoError(t, server.WaitEstablished(ctx))
	require.Eventually(t, func() bool {
		return client.FullyEstablished() && server.FullyEstablished()
	}, 5*time.Second, time.Millisecond)
	return e
}

func (e *e2e) join(t *testing.T, local netip.AddrPort) subflow.ID {
	t.Helper()
	id, err := e.client.ConnectNewSubflow(testContext(t), local, serverAddr)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return e.client.ActiveSubflows() == 2 && e.server.ActiveSubflows() == 2
	}, 5*time.Second, time.Millisecond)
	return id
}

func receiveN(t *testing.T, c *Conn, n int) []byte {
	t.Helper()
	ctx := testContext(t)
	var res []byte
	for len(res) < n {
		b, err := c.Receive(ctx, n-len(res))
		require.NoError(t, err)
		res = append(res, b...)
	}
	return res
}

func TestE2E_RoundRobinSplit(t *testing.T) {
	e := newE2E(t, 60, nil, WithConnScheduler(scheduler.NewRoundRobin()))
	e.join(t, clientAddr2)
	assert.Equal(t, uint64(120), e.client.ComputeTotalCWND())

	data := bytes.Repeat([]byte("0123456789"), 10)
	n, err := e.client.TrySend(data)
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	assert.Equal(t, data, receiveN(t, e.server, len(data)))

	segs := e.tap.segments()
	require.Len(t, segs, 2)
	got := map[uint64]int{}
	for _, s := range segs {
		got[s.dataSeq] = s.length
	}
	assert.Equal(t, map[uint64]int{localIDSN + 1: 60, localIDSN + 61: 40}, got)
	assert.NotEqual(t, segs[0].from, segs[1].from)

	require.Eventually(t, func() bool {
		return e.client.BytesInFlight() == 0
	}, 5*time.Second, time.Millisecond)
}

func TestE2E_Bidirectional(t *testing.T) {
	e := newE2E(t, 0, nil)
	e.join(t, clientAddr2)

	up := bytes.Repeat([]byte("u"), 64*1024)
	down := bytes.Repeat([]byte("d"), 32*1024)
	ctx := testContext(t)

	var eg errgroup.Group
	eg.Go(func() error {
		_, err := e.client.Send(ctx, up)
		return err
	})
	eg.Go(func() error {
		_, err := e.server.Send(ctx, down)
		return err
	})
	var gotUp, gotDown []byte
	eg.Go(func() error {
		for len(gotUp) < len(up) {
			b, err := e.server.Receive(ctx, 4096)
			if err != nil {
				return err
			}
			gotUp = append(gotUp, b...)
		}
		return nil
	})
	eg.Go(func() error {
		for len(gotDown) < len(down) {
			b, err := e.client.Receive(ctx, 4096)
			if err != nil {
				return err
			}
			gotDown = append(gotDown, b...)
		}
		return nil
	})
	require.NoError(t, eg.Wait())
	assert.Equal(t, up, gotUp)
	assert.Equal(t, down, gotDown)
}

func TestE2E_Abort(t *testing.T) {
	e := newE2E(t, 0, nil)

	e.client.Abort()
	<-e.client.Done()
	assert.Equal(t, closing.StateFastClosed, e.client.CloseState())
	assert.Empty(t, e.client.Subflows())

	_, err := e.server.Receive(testContext(t), 10)
	assert.ErrorIs(t, err, errors.ErrConnectionReset)
	<-e.server.Done()
	assert.Equal(t, closing.StateFastClosed, e.server.CloseState())
	assert.Equal(t, 0, e.listener.Len())
}

func TestE2E_GracefulClose(t *testing.T) {
	opt := WithConnTimeWait(20 * time.Millisecond)
	e := newE2E(t, 0, []ListenerOption{WithListenerConnOptions(opt)}, opt)
	ctx := testContext(t)

	_, err := e.client.Send(ctx, []byte("request"))
	require.NoError(t, err)
	require.NoError(t, e.client.Close(ctx))

	assert.Equal(t, []byte("request"), receiveN(t, e.server, 7))
	_, err = e.server.Receive(ctx, 10)
	assert.ErrorIs(t, err, io.EOF)

	_, err = e.server.Send(ctx, []byte("response"))
	require.NoError(t, err)
	require.NoError(t, e.server.Close(ctx))

	assert.Equal(t, []byte("response"), receiveN(t, e.client, 8))

	for _, c := range []*Conn{e.client, e.server} {
		select {
		case <-c.Done():
		case <-time.After(5 * time.Second):
			require.FailNow(t, "connection did not close")
		}
		assert.NoError(t, c.Err())
		assert.Equal(t, closing.StateClosed, c.CloseState())
	}
	_, err = e.client.Receive(ctx, 10)
	assert.ErrorIs(t, err, io.EOF)

	ev := receive(t, e.events.connClosed)
	assert.NoError(t, ev.Err)
}

func TestE2E_JoinRejected(t *testing.T) {
	filter := WithJoinFilter(func(r JoinRequest) bool {
		return r.Remote.Addr() != clientAddr2.Addr()
	})
	e := newE2E(t, 0, []ListenerOption{filter})
	receive(t, e.events.established)

	_, err := e.client.ConnectNewSubflow(testContext(t), clientAddr2, serverAddr)
	require.NoError(t, err)

	ev := receive(t, e.events.failed)
	assert.Equal(t, clientAddr2, ev.Local)
	assert.Equal(t, 1, e.client.ActiveSubflows())
	assert.Equal(t, 1, e.server.ActiveSubflows())
}

func TestE2E_MasterLost(t *testing.T) {
	e := newE2E(t, 0, nil)
	e.join(t, clientAddr2)

	require.Equal(t, 1, e.net.Break(clientAddr1.Addr()))
	require.Eventually(t, func() bool {
		return e.client.ActiveSubflows() == 1 && e.server.ActiveSubflows() == 1
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, closing.StateOpen, e.client.CloseState())

	data := bytes.Repeat([]byte("x"), 5000)
	_, err := e.client.Send(testContext(t), data)
	require.NoError(t, err)
	assert.Equal(t, data, receiveN(t, e.server, len(data)))

	for _, s := range e.tap.segments() {
		assert.Equal(t, clientAddr2, s.from)
	}
}

func TestE2E_AllSubflowsLost(t *testing.T) {
	opt := WithConnTimeWait(20 * time.Millisecond)
	e := newE2E(t, 0, []ListenerOption{WithListenerConnOptions(opt)}, opt)

	e.net.Break(clientAddr1.Addr())
	for _, c := range []*Conn{e.client, e.server} {
		select {
		case <-c.Done():
		case <-time.After(5 * time.Second):
			require.FailNow(t, "connection did not terminate")
		}
		assert.ErrorIs(t, c.Err(), errors.ErrConnectionReset)
	}
}

func TestListener_UnknownToken(t *testing.T) {
	e := newE2E(t, 0, nil)
	n := pipe.NewNetwork()
	t.Cleanup(n.Close)
	require.NoError(t, n.Listen(serverAddr, e.listener))

	// どのコネクションにも属さないトークンのMP_JOINは拒否される
	h := &stateRecorder{closed: make(chan struct{})}
	_, err := n.Dial(testContext(t), subflow.DialRequest{
		Local:      clientAddr2,
		Remote:     serverAddr,
		SynOptions: []option.Option{&option.Join{Mode: option.JoinSyn, Token: 0xdeadbeef, Nonce: 1}},
	}, h)
	require.NoError(t, err)
	select {
	case <-h.closed:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "join was not rejected")
	}
	assert.Equal(t, 1, e.server.ActiveSubflows())
}

func TestListener_Close(t *testing.T) {
	l := NewListener()
	require.NoError(t, l.Close())
	_, err := l.Accept(testContext(t))
	assert.ErrorIs(t, err, ErrListenerClosed)
	assert.ErrorIs(t, err, errors.ErrConnectionClosed)
}

type stateRecorder struct {
	once   sync.Once
	closed chan struct{}
}

func (r *stateRecorder) HandleSegment(subflow.Transport, *subflow.Segment) {}

func (r *stateRecorder) HandleStateChange(_ subflow.Transport, _, to subflow.State) {
	if to == subflow.StateClosed {
		r.once.Do(func() { close(r.closed) })
	}
}
