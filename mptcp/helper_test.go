package mptcp_test

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aptpod/mptcp-go/auth"
	. "github.com/aptpod/mptcp-go/mptcp"
	"github.com/aptpod/mptcp-go/option"
	"github.com/aptpod/mptcp-go/subflow"
	"github.com/aptpod/mptcp-go/subflow/subflowmock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	localKey uint64 = 0x0102030405060708
	peerKey  uint64 = 0x1112131415161718
)

var (
	localAddr  = netip.MustParseAddrPort("10.0.0.1:40000")
	localAddr2 = netip.MustParseAddrPort("10.0.1.1:40001")
	remoteAddr = netip.MustParseAddrPort("192.0.2.1:443")

	localIDSN = auth.IDSN(localKey)
	peerIDSN  = auth.IDSN(peerKey)
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// mockPathは、送信したセグメントを記録するTransportです。
type mockPath struct {
	tr *subflowmock.MockTransport

	mu    sync.Mutex
	state subflow.State
	nxt   uint32
	sent  []*subflow.Segment
	reset bool
}

func newMockPath(ctrl *gomock.Controller, local, remote netip.AddrPort, cwnd uint64) *mockPath {
	p := &mockPath{
		tr:    subflowmock.NewMockTransport(ctrl),
		state: subflow.StateSynSent,
		nxt:   1,
	}
	p.tr.EXPECT().Send(gomock.Any()).DoAndReturn(func(seg *subflow.Segment) (int, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		seg.Seq = p.nxt
		p.nxt += uint32(len(seg.Payload))
		p.sent = append(p.sent, seg)
		return len(seg.Payload), nil
	}).AnyTimes()
	p.tr.EXPECT().State().DoAndReturn(p.State).AnyTimes()
	p.tr.EXPECT().NextSeq().DoAndReturn(func() uint32 {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.nxt
	}).AnyTimes()
	p.tr.EXPECT().Close().DoAndReturn(func() error {
		p.setState(subflow.StateFinWait1)
		return nil
	}).AnyTimes()
	p.tr.EXPECT().Reset().Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.state = subflow.StateClosed
		p.reset = true
	}).AnyTimes()
	p.tr.EXPECT().RTT().Return(10 * time.Millisecond).AnyTimes()
	p.tr.EXPECT().RTTVar().Return(5 * time.Millisecond).AnyTimes()
	p.tr.EXPECT().CongestionWindow().Return(cwnd).AnyTimes()
	p.tr.EXPECT().BytesInFlight().Return(uint64(0)).AnyTimes()
	p.tr.EXPECT().LocalAddr().Return(local).AnyTimes()
	p.tr.EXPECT().RemoteAddr().Return(remote).AnyTimes()
	return p
}

func (p *mockPath) State() subflow.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *mockPath) setState(st subflow.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = st
}

func (p *mockPath) wasReset() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reset
}

func (p *mockPath) segments() []*subflow.Segment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*subflow.Segment(nil), p.sent...)
}

func (p *mockPath) last() *subflow.Segment {
	segs := p.segments()
	if len(segs) == 0 {
		return nil
	}
	return segs[len(segs)-1]
}

// findSentは、送信済みのセグメントからT型のオプションを全て取り出します。
func findSent[T option.Option](p *mockPath) []T {
	var res []T
	for _, seg := range p.segments() {
		if o, ok := subflow.FindOption[T](seg); ok {
			res = append(res, o)
		}
	}
	return res
}

// recorderは、イベントハンドラの呼び出しを記録します。
type recorder struct {
	established chan *SubflowEstablishedEvent
	failed      chan *SubflowFailedEvent
	closed      chan *SubflowClosedEvent
	fully       chan *FullyEstablishedEvent
	connClosed  chan *ClosedEvent
	addrAdded   chan *AddressAddedEvent
	addrRemoved chan *AddressRemovedEvent
	infinite    chan *InfiniteMappingEvent
}

func newRecorder() *recorder {
	return &recorder{
		established: make(chan *SubflowEstablishedEvent, 16),
		failed:      make(chan *SubflowFailedEvent, 16),
		closed:      make(chan *SubflowClosedEvent, 16),
		fully:       make(chan *FullyEstablishedEvent, 16),
		connClosed:  make(chan *ClosedEvent, 16),
		addrAdded:   make(chan *AddressAddedEvent, 16),
		addrRemoved: make(chan *AddressRemovedEvent, 16),
		infinite:    make(chan *InfiniteMappingEvent, 16),
	}
}

func record[T any](c chan T) func(T) {
	return func(v T) {
		select {
		case c <- v:
		default:
		}
	}
}

func (r *recorder) options() []ConnOption {
	return []ConnOption{
		WithConnSubflowEstablishedEventHandler(SubflowEstablishedEventHandlerFunc(record(r.established))),
		WithConnSubflowFailedEventHandler(SubflowFailedEventHandlerFunc(record(r.failed))),
		WithConnSubflowClosedEventHandler(SubflowClosedEventHandlerFunc(record(r.closed))),
		WithConnFullyEstablishedEventHandler(FullyEstablishedEventHandlerFunc(record(r.fully))),
		WithConnClosedEventHandler(ClosedEventHandlerFunc(record(r.connClosed))),
		WithConnAddressAddedEventHandler(AddressAddedEventHandlerFunc(record(r.addrAdded))),
		WithConnAddressRemovedEventHandler(AddressRemovedEventHandlerFunc(record(r.addrRemoved))),
		WithConnInfiniteMappingEventHandler(InfiniteMappingEventHandlerFunc(record(r.infinite))),
	}
}

func receive[T any](t *testing.T, c <-chan T) T {
	t.Helper()
	select {
	case v := <-c:
		return v
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for event")
	}
	var zero T
	return zero
}

// mockConnは、モックのTransportで駆動する能動側のコネクションです。
type mockConn struct {
	conn   *Conn
	ctrl   *gomock.Controller
	clock  *clock.Mock
	dialer *subflowmock.MockDialer
	events *recorder

	master    *mockPath
	handler   subflow.Handler
	masterReq subflow.DialRequest
}

func dialMock(t *testing.T, cwnd uint64, opts ...ConnOption) *mockConn {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := &mockConn{
		ctrl:   ctrl,
		clock:  clock.NewMock(),
		dialer: subflowmock.NewMockDialer(ctrl),
		events: newRecorder(),
	}
	m.clock.Add(time.Hour)
	m.master = newMockPath(ctrl, localAddr, remoteAddr, cwnd)
	m.dialer.EXPECT().Dial(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req subflow.DialRequest, h subflow.Handler) (subflow.Transport, error) {
			m.masterReq = req
			m.handler = h
			return m.master.tr, nil
		})

	all := append([]ConnOption{WithConnKey(localKey), WithConnClock(m.clock)}, m.events.options()...)
	c, err := Dial(testContext(t), m.dialer, localAddr, remoteAddr, append(all, opts...)...)
	require.NoError(t, err)
	m.conn = c
	t.Cleanup(func() {
		c.Abort()
		<-c.Done()
	})
	return m
}

// establishは、マスターサブフローのSYN-ACKと状態変化を通知します。
func (m *mockConn) establish(t *testing.T, flags uint8) {
	t.Helper()
	m.handler.HandleSegment(m.master.tr, &subflow.Segment{
		Flags:   subflow.FlagSyn | subflow.FlagAck,
		Options: []option.Option{&option.Capable{Flags: option.CapableFlagHMACSHA1 | flags, SenderKey: peerKey}},
	})
	m.master.setState(subflow.StateEstablished)
	m.handler.HandleStateChange(m.master.tr, subflow.StateSynSent, subflow.StateEstablished)
	require.NoError(t, m.conn.WaitEstablished(testContext(t)))
}

// fullyEstablishは、マスターサブフローを確立し、ピアの最初のDSSを通知します。
func (m *mockConn) fullyEstablish(t *testing.T) {
	t.Helper()
	m.establish(t, 0)
	m.deliver(m.master, dataAck(localIDSN+1))
	require.True(t, m.conn.FullyEstablished())
}

// deliverは、ピアからのセグメントを通知します。
func (m *mockConn) deliver(p *mockPath, opts ...option.Option) {
	m.deliverData(p, 0, nil, opts...)
}

func (m *mockConn) deliverData(p *mockPath, seq uint32, payload []byte, opts ...option.Option) {
	m.deliverTo(m.handler, p, seq, payload, opts...)
}

func (m *mockConn) deliverTo(h subflow.Handler, p *mockPath, seq uint32, payload []byte, opts ...option.Option) {
	h.HandleSegment(p.tr, &subflow.Segment{
		Seq:     seq,
		Flags:   subflow.FlagAck,
		Window:  65535,
		Options: opts,
		Payload: payload,
	})
	// ループ上で処理されるまで待つ
	_ = m.conn.ActiveSubflows()
}

func dataAck(ack uint64) *option.DSS {
	return &option.DSS{DataAck: &ack, DataAck64: true}
}

func dataMapping(dsn uint64, ssn uint32, length uint16) *option.DSS {
	return &option.DSS{Mapping: &option.Mapping{DataSeq: dsn, DataSeq64: true, SubflowSeq: ssn, Length: length}}
}
