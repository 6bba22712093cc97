package websocket

import (
	"context"
	"net"
	"net/netip"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	gwebsocket "github.com/gorilla/websocket"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/event"
	"github.com/aptpod/mptcp-go/mapping"
	"github.com/aptpod/mptcp-go/metrics"
	"github.com/aptpod/mptcp-go/subflow"
)

var _ subflow.Transport = (*Transport)(nil)

// Transportは、WebSocketトランスポートです。 subflow.Transport を実装します。
//
// 受信したメッセージは読み込みのゴルーチンでデコードされ、イベントループ上で順番に処理されます。
type Transport struct {
	config Config
	conn   *conn
	loop   *event.Loop
	local  netip.AddrPort
	remote netip.AddrPort

	rtt      *metrics.Estimator
	provider metrics.Provider
	tcpInfo  *metrics.TCPInfoProvider

	// イベントループからのみ参照します。
	handler  subflow.Handler
	acceptor subflow.Acceptor

	// onClosedは、Closedへ遷移した時に1度だけ呼び出されます。
	onClosed func(*Transport)

	sendMu sync.Mutex

	mu     sync.Mutex
	state  subflow.State
	sndNxt uint32
	sndUna uint32
	rcvNxt uint32

	rxBytesCounter uint64
	txBytesCounter uint64

	stopped   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	done      chan struct{}
}

func newTransport(c *conn, config Config, st subflow.State) *Transport {
	t := &Transport{
		config:  config,
		conn:    c,
		loop:    event.NewLoop(config.Clock),
		local:   c.localAddr(),
		remote:  c.remoteAddr(),
		rtt:     metrics.NewEstimator(config.CongestionWindow),
		state:   st,
		sndNxt:  mapping.FirstSubflowSeq,
		sndUna:  mapping.FirstSubflowSeq,
		rcvNxt:  mapping.FirstSubflowSeq,
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
	t.provider = t.rtt
	c.onPong(func(sent time.Time) {
		t.rtt.Observe(t.config.Clock.Since(sent))
	})
	return t
}

// startは、メトリクスの収集と読み込みとPingのゴルーチンを開始します。handlerとacceptorは呼び出し前に設定します。
func (t *Transport) start() {
	if tcp, ok := t.conn.netConn().(*net.TCPConn); ok && runtime.GOOS == "linux" {
		p := metrics.NewTCPInfoProvider(tcp, t.config.MetricsInterval, t.config.Clock)
		if err := p.Start(); err == nil {
			t.tcpInfo = p
			t.provider = p
		}
	}
	t.loop.Start()
	t.wg.Add(2)
	go t.readLoop()
	go t.pingLoop()
	go func() {
		t.wg.Wait()
		<-t.loop.Done()
		if t.tcpInfo != nil {
			t.tcpInfo.Stop()
		}
		close(t.done)
	}()
}

func (t *Transport) LocalAddr() netip.AddrPort { return t.local }

func (t *Transport) RemoteAddr() netip.AddrPort { return t.remote }

func (t *Transport) State() subflow.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) NextSeq() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sndNxt
}

// RTTは、カーネルのTCP情報、またはPingの往復時間から推定したRTTを返します。
func (t *Transport) RTT() time.Duration { return t.provider.RTT() }

func (t *Transport) RTTVar() time.Duration { return t.provider.RTTVar() }

func (t *Transport) CongestionWindow() uint64 { return t.provider.CongestionWindow() }

// BytesInFlightは、ピアから確認応答を受け取っていないバイト数を返します。
func (t *Transport) BytesInFlight() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return uint64(t.sndNxt - t.sndUna)
}

// TxBytesCounterValueは、書き込んだ総バイト数を返却します。
func (t *Transport) TxBytesCounterValue() uint64 {
	return atomic.LoadUint64(&t.txBytesCounter)
}

// RxBytesCounterValueは、読み込んだ総バイト数を返却します。
func (t *Transport) RxBytesCounterValue() uint64 {
	return atomic.LoadUint64(&t.rxBytesCounter)
}

// Doneは、全てのゴルーチンが終了した時にクローズされるチャネルを返します。
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Sendは、セグメントを送信します。ペイロードを伴うセグメントはデータを送信できる状態でのみ送信できます。
func (t *Transport) Send(seg *subflow.Segment) (int, error) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.mu.Lock()
	st := t.state
	if st == subflow.StateClosed || (len(seg.Payload) > 0 && !st.CanSend()) {
		t.mu.Unlock()
		return 0, errors.Errorf("send in %v: %w", st, ErrNotConnected)
	}
	seg.Seq = t.sndNxt
	seg.Ack = t.rcvNxt
	t.sndNxt += uint32(len(seg.Payload))
	t.mu.Unlock()

	if err := t.write(kindData, seg); err != nil {
		return 0, err
	}
	return len(seg.Payload), nil
}

// Closeは、FINを送信します。ハンドシェイク中の場合はリセットします。
func (t *Transport) Close() error {
	t.mu.Lock()
	from := t.state
	var to subflow.State
	switch from {
	case subflow.StateEstablished:
		to = subflow.StateFinWait1
	case subflow.StateCloseWait:
		to = subflow.StateLastAck
	case subflow.StateSynSent, subflow.StateSynReceived, subflow.StateListen:
		t.mu.Unlock()
		t.Reset()
		return nil
	default:
		t.mu.Unlock()
		return nil
	}
	t.state = to
	t.mu.Unlock()

	t.notifyState(from, to)
	return t.transmit(kindFin, &subflow.Segment{Flags: subflow.FlagFin | subflow.FlagAck})
}

// Resetは、RSTを送信して即座にClosedへ遷移します。
func (t *Transport) Reset() {
	if t.State() == subflow.StateClosed {
		return
	}
	_ = t.transmit(kindRst, &subflow.Segment{Flags: subflow.FlagRst})
	t.setState(subflow.StateClosed)
}

// setStateは、状態を変更してハンドラへ通知します。既に同じ状態の場合はfalseを返します。
func (t *Transport) setState(to subflow.State) bool {
	t.mu.Lock()
	from := t.state
	if from == to {
		t.mu.Unlock()
		return false
	}
	t.state = to
	t.mu.Unlock()
	t.notifyState(from, to)
	return true
}

func (t *Transport) notifyState(from, to subflow.State) {
	t.loop.Post(func() {
		if t.handler != nil {
			t.handler.HandleStateChange(t, from, to)
		}
	})
	if to == subflow.StateClosed {
		t.teardown()
	}
}

// teardownは、WebSocketコネクションを閉じ、イベントループの停止を予約します。
func (t *Transport) teardown() {
	t.closeOnce.Do(func() {
		close(t.stopped)
		t.loop.Post(t.loop.Stop)
		if err := t.conn.close(gwebsocket.CloseNormalClosure); err != nil && !errors.Is(err, ErrTransportClosed) {
			t.config.Logger.Warnf(context.Background(), "websocket: close %v->%v: %v", t.local, t.remote, err)
		}
		if t.onClosed != nil {
			t.onClosed(t)
		}
	})
}

// transmitは、シーケンス番号を伴わないセグメントを送信します。
func (t *Transport) transmit(kind frameKind, seg *subflow.Segment) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	t.mu.Lock()
	seg.Seq = t.sndNxt
	seg.Ack = t.rcvNxt
	t.mu.Unlock()
	return t.write(kind, seg)
}

// writeは、メッセージを書き込みます。書き込みに失敗した経路は失われたものとして扱います。
func (t *Transport) write(kind frameKind, seg *subflow.Segment) error {
	n, err := t.conn.writeFrame(kind, seg)
	if err != nil {
		if kind != kindRst {
			t.setState(subflow.StateClosed)
		}
		return errors.Errorf("write %v frame: %w", kind, err)
	}
	atomic.AddUint64(&t.txBytesCounter, uint64(n))
	return nil
}

func (t *Transport) readLoop() {
	defer t.wg.Done()
	for {
		kind, seg, n, err := t.conn.readFrame()
		if err != nil {
			select {
			case <-t.stopped:
			default:
				t.config.Logger.Infof(context.Background(), "websocket: read %v->%v: %v", t.local, t.remote, err)
			}
			t.loop.Post(func() {
				t.setState(subflow.StateClosed)
			})
			return
		}
		atomic.AddUint64(&t.rxBytesCounter, uint64(n))
		t.loop.Post(func() {
			t.receive(kind, seg)
		})
	}
}

func (t *Transport) pingLoop() {
	defer t.wg.Done()
	ticker := t.config.Clock.Ticker(t.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := t.conn.ping(t.config.Clock.Now()); err != nil {
				return
			}
		case <-t.stopped:
			return
		}
	}
}

// receiveは、イベントループ上でメッセージを処理します。
func (t *Transport) receive(kind frameKind, seg *subflow.Segment) {
	if kind != kindSyn {
		t.updateAck(seg.Ack)
	}
	switch kind {
	case kindSyn:
		t.receiveSyn(seg)
	case kindSynAck:
		if t.State() != subflow.StateSynSent {
			return
		}
		if t.handler != nil {
			t.handler.HandleSegment(t, seg)
		}
		t.setState(subflow.StateEstablished)
		_ = t.transmit(kindAck, &subflow.Segment{Flags: subflow.FlagAck})
	case kindAck:
		if t.State() == subflow.StateSynReceived {
			t.setState(subflow.StateEstablished)
		}
	case kindData:
		t.mu.Lock()
		if t.state == subflow.StateClosed {
			t.mu.Unlock()
			return
		}
		t.rcvNxt += uint32(len(seg.Payload))
		t.mu.Unlock()
		if t.handler != nil {
			t.handler.HandleSegment(t, seg)
		}
		if len(seg.Payload) > 0 {
			_ = t.transmit(kindAck, &subflow.Segment{Flags: subflow.FlagAck})
		}
	case kindFin:
		t.receiveFin()
	case kindFinAck:
		switch t.State() {
		case subflow.StateFinWait1:
			t.setState(subflow.StateFinWait2)
		case subflow.StateClosing:
			t.setState(subflow.StateTimeWait)
			t.setState(subflow.StateClosed)
		case subflow.StateLastAck:
			t.setState(subflow.StateClosed)
		}
	case kindRst:
		t.setState(subflow.StateClosed)
	default:
		t.config.Logger.Warnf(context.Background(), "websocket: unknown frame kind %d from %v", kind, t.remote)
	}
}

// updateAckは、ピアの累積確認応答で未確認のバイト数を減らします。
func (t *Transport) updateAck(ack uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int32(ack-t.sndUna) > 0 && int32(t.sndNxt-ack) >= 0 {
		t.sndUna = ack
	}
}

func (t *Transport) receiveSyn(seg *subflow.Segment) {
	if t.State() != subflow.StateListen || t.acceptor == nil {
		return
	}
	opts, h, err := t.acceptor.AcceptSyn(t, seg)
	if err != nil {
		t.config.Logger.Infof(context.Background(), "websocket: syn from %v rejected: %v", t.remote, err)
		t.Reset()
		return
	}
	t.handler = h
	t.mu.Lock()
	t.state = subflow.StateSynReceived
	t.mu.Unlock()
	_ = t.transmit(kindSynAck, &subflow.Segment{Flags: subflow.FlagSyn | subflow.FlagAck, Options: opts})
}

func (t *Transport) receiveFin() {
	var next []subflow.State
	switch t.State() {
	case subflow.StateEstablished:
		next = []subflow.State{subflow.StateCloseWait}
	case subflow.StateFinWait1:
		next = []subflow.State{subflow.StateClosing}
	case subflow.StateFinWait2:
		next = []subflow.State{subflow.StateTimeWait, subflow.StateClosed}
	default:
		return
	}
	// Closedへ遷移するとコネクションが閉じられるため、先に応答する
	_ = t.transmit(kindFinAck, &subflow.Segment{Flags: subflow.FlagAck})
	for _, st := range next {
		t.setState(st)
	}
}
