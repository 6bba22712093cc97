package pipe

import (
	"context"
	"net/netip"
	"sync"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/event"
	"github.com/aptpod/mptcp-go/mapping"
	"github.com/aptpod/mptcp-go/metrics"
	"github.com/aptpod/mptcp-go/subflow"
)

var _ subflow.Transport = (*Endpoint)(nil)

type packetKind uint8

const (
	kindSyn packetKind = iota + 1
	kindSynAck
	kindAck
	kindData
	kindFin
	kindFinAck
	kindRst
)

// Endpointは、経路の片側です。subflow.Transport を実装します。
type Endpoint struct {
	*metrics.Estimator

	net   *Network
	loop  *event.Loop
	local netip.AddrPort
	// remoteは、ピアのアドレスです。
	remote netip.AddrPort
	peer   *Endpoint
	drop   bool

	// 配送ループからのみ参照します。
	handler  subflow.Handler
	acceptor subflow.Acceptor

	mu     sync.Mutex
	state  subflow.State
	sndNxt uint32
	rcvNxt uint32
}

func (n *Network) newEndpoint(local, remote netip.AddrPort, st subflow.State, path PathConfig) *Endpoint {
	e := &Endpoint{
		Estimator: metrics.NewEstimator(path.CongestionWindow),
		net:       n,
		loop:      event.NewLoop(n.config.Clock),
		local:     local,
		remote:    remote,
		drop:      path.Drop,
		state:     st,
		sndNxt:    mapping.FirstSubflowSeq,
		rcvNxt:    mapping.FirstSubflowSeq,
	}
	e.Observe(path.RTT)
	n.register(e)
	e.loop.Start()
	return e
}

func (e *Endpoint) LocalAddr() netip.AddrPort { return e.local }

func (e *Endpoint) RemoteAddr() netip.AddrPort { return e.remote }

func (e *Endpoint) State() subflow.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Endpoint) NextSeq() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sndNxt
}

// Sendは、セグメントを送信します。ペイロードを伴うセグメントはデータを送信できる状態でのみ送信できます。
func (e *Endpoint) Send(seg *subflow.Segment) (int, error) {
	e.mu.Lock()
	st := e.state
	if st == subflow.StateClosed || (len(seg.Payload) > 0 && !st.CanSend()) {
		e.mu.Unlock()
		return 0, errors.Errorf("send in %v: %w", st, ErrNotConnected)
	}
	seg.Seq = e.sndNxt
	seg.Ack = e.rcvNxt
	e.sndNxt += uint32(len(seg.Payload))
	e.mu.Unlock()

	n := len(seg.Payload)
	e.AddBytesInFlight(uint64(n))
	if err := e.transmit(kindData, seg, n); err != nil {
		e.SubBytesInFlight(uint64(n))
		return 0, err
	}
	return n, nil
}

// Closeは、FINを送信します。ハンドシェイク中の場合はリセットします。
func (e *Endpoint) Close() error {
	e.mu.Lock()
	from := e.state
	var to subflow.State
	switch from {
	case subflow.StateEstablished:
		to = subflow.StateFinWait1
	case subflow.StateCloseWait:
		to = subflow.StateLastAck
	case subflow.StateSynSent, subflow.StateSynReceived, subflow.StateListen:
		e.mu.Unlock()
		e.Reset()
		return nil
	default:
		e.mu.Unlock()
		return nil
	}
	e.state = to
	e.mu.Unlock()

	e.notifyState(from, to)
	return e.transmit(kindFin, &subflow.Segment{Flags: subflow.FlagFin | subflow.FlagAck}, 0)
}

// Resetは、RSTを送信して即座にClosedへ遷移します。
func (e *Endpoint) Reset() {
	if !e.setState(subflow.StateClosed) {
		return
	}
	_ = e.transmit(kindRst, &subflow.Segment{Flags: subflow.FlagRst}, 0)
}

// setStateは、状態を変更してハンドラへ通知します。既に同じ状態の場合はfalseを返します。
func (e *Endpoint) setState(to subflow.State) bool {
	e.mu.Lock()
	from := e.state
	if from == to {
		e.mu.Unlock()
		return false
	}
	e.state = to
	e.mu.Unlock()
	e.notifyState(from, to)
	return true
}

func (e *Endpoint) notifyState(from, to subflow.State) {
	e.loop.Post(func() {
		if e.handler != nil {
			e.handler.HandleStateChange(e, from, to)
		}
	})
	if to == subflow.StateClosed {
		e.net.unregister(e)
		e.loop.Post(e.loop.Stop)
	}
}

// transmitは、セグメントをバイナリへ変換してピアの配送ループへ投入します。
func (e *Endpoint) transmit(kind packetKind, seg *subflow.Segment, inflight int) error {
	b, err := seg.MarshalBinary()
	if err != nil {
		return errors.Errorf("marshal segment: %w", err)
	}
	if e.drop || e.peer == nil {
		return nil
	}
	peer := e.peer
	peer.loop.Post(func() {
		var rx subflow.Segment
		if err := rx.UnmarshalBinary(b); err != nil {
			e.net.config.Logger.Errorf(context.Background(), "pipe: unmarshal segment: %v", err)
			return
		}
		if tap := e.net.config.Tap; tap != nil && kind == kindData {
			tap(e.local, peer.local, &rx)
		}
		peer.receive(kind, &rx)
		if inflight > 0 {
			e.SubBytesInFlight(uint64(inflight))
		}
	})
	return nil
}

// receiveは、配送ループ上でパケットを処理します。
func (e *Endpoint) receive(kind packetKind, seg *subflow.Segment) {
	switch kind {
	case kindSyn:
		e.receiveSyn(seg)
	case kindSynAck:
		if e.State() != subflow.StateSynSent {
			return
		}
		if e.handler != nil {
			e.handler.HandleSegment(e, seg)
		}
		e.setState(subflow.StateEstablished)
		_ = e.transmit(kindAck, &subflow.Segment{Flags: subflow.FlagAck}, 0)
	case kindAck:
		if e.State() == subflow.StateSynReceived {
			e.setState(subflow.StateEstablished)
		}
	case kindData:
		e.mu.Lock()
		if e.state == subflow.StateClosed {
			e.mu.Unlock()
			return
		}
		e.rcvNxt += uint32(len(seg.Payload))
		e.mu.Unlock()
		if e.handler != nil {
			e.handler.HandleSegment(e, seg)
		}
	case kindFin:
		e.receiveFin()
	case kindFinAck:
		switch e.State() {
		case subflow.StateFinWait1:
			e.setState(subflow.StateFinWait2)
		case subflow.StateClosing:
			e.setState(subflow.StateTimeWait)
			e.setState(subflow.StateClosed)
		case subflow.StateLastAck:
			e.setState(subflow.StateClosed)
		}
	case kindRst:
		e.setState(subflow.StateClosed)
	}
}

func (e *Endpoint) receiveSyn(seg *subflow.Segment) {
	if e.State() != subflow.StateListen || e.acceptor == nil {
		return
	}
	opts, h, err := e.acceptor.AcceptSyn(e, seg)
	if err != nil {
		e.net.config.Logger.Infof(context.Background(), "pipe: syn from %v rejected: %v", e.remote, err)
		e.Reset()
		return
	}
	e.handler = h
	e.mu.Lock()
	e.state = subflow.StateSynReceived
	e.mu.Unlock()
	_ = e.transmit(kindSynAck, &subflow.Segment{Flags: subflow.FlagSyn | subflow.FlagAck, Options: opts}, 0)
}

func (e *Endpoint) receiveFin() {
	switch e.State() {
	case subflow.StateEstablished:
		e.setState(subflow.StateCloseWait)
	case subflow.StateFinWait1:
		e.setState(subflow.StateClosing)
	case subflow.StateFinWait2:
		e.setState(subflow.StateTimeWait)
		e.setState(subflow.StateClosed)
	default:
		return
	}
	_ = e.transmit(kindFinAck, &subflow.Segment{Flags: subflow.FlagAck}, 0)
}
