package mptcp

import (
	"time"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/mapping"
	"github.com/aptpod/mptcp-go/option"
	"github.com/aptpod/mptcp-go/subflow"
)

// inputは、1つのセグメントの処理中に蓄積する応答です。
type input struct {
	needAck bool
	echo    *option.DeltaOWD
	drop    bool
}

func (c *Conn) handleSegment(id subflow.ID, tr subflow.Transport, seg *subflow.Segment) {
	if c.terminated {
		return
	}
	s, err := c.registry.Get(id)
	if err != nil {
		return
	}
	c.attach(id, tr)
	if seg.Flags&subflow.FlagRst != 0 {
		return
	}
	if seg.Flags&subflow.FlagSyn != 0 {
		c.handleSynAck(s, seg)
		return
	}

	js := c.joins[id]
	if js != nil && !js.active && !js.verified {
		// 認証前のサブフローではMP_JOINの3番目のACK以外を受け付けない
		if join, ok := subflow.FindOption[*option.Join](seg); ok {
			c.handleJoinAck(s, js, join)
		}
		return
	}

	var in input
	for _, opt := range seg.Options {
		if !c.handleOption(s, seg, opt, &in) {
			return
		}
		if c.terminated {
			return
		}
	}
	if len(seg.Payload) > 0 && !in.drop && c.receiver != nil {
		c.receiver.AddData(uint32(id), seg.Seq, seg.Payload)
		in.needAck = true
	}
	c.afterInput(s, &in)
}

// handleOptionは、1つのオプションを処理します。サブフローをリセットした場合はfalseを返します。
func (c *Conn) handleOption(s *subflow.Subflow, seg *subflow.Segment, opt option.Option, in *input) bool {
	switch o := opt.(type) {
	case *option.Capable:
		if c.active || !s.Master {
			return true
		}
		if o.PeerKey != nil && *o.PeerKey != c.localKey {
			c.violation(s, "MP_CAPABLE echoed a wrong key", errors.ErrProtocolViolation)
			return false
		}
		in.needAck = true
	case *option.Join:
		c.violation(s, "unexpected MP_JOIN", errors.ErrProtocolViolation)
		return false
	case *option.DSS:
		return c.handleDSS(s, seg, o, in)
	case *option.AddAddr:
		c.handleAddAddr(o)
	case *option.RemoveAddr:
		return c.handleRemoveAddr(s, o)
	case *option.Prio:
		return c.handlePrio(s, o)
	case *option.Fail:
		c.handleFail(s, o)
	case *option.FastClose:
		if o.PeerKey != c.localKey {
			c.violation(s, "MP_FASTCLOSE with a wrong key", errors.ErrProtocolViolation)
			return false
		}
		c.logger.Infof(c.subflowCtx(s), "Received MP_FASTCLOSE")
		c.closing.PeerFastClose()
		c.teardown(errors.ErrConnectionReset)
		return false
	case *option.DeltaOWD:
		c.handleDeltaOWD(s, o, in)
	}
	return true
}

func (c *Conn) handleDSS(s *subflow.Subflow, seg *subflow.Segment, dss *option.DSS, in *input) bool {
	if !c.keysReady {
		c.violation(s, "DSS before keys are exchanged", errors.ErrProtocolViolation)
		return false
	}
	if !c.fullyEstablished {
		c.fullyEstablished = true
		c.logger.Infof(c.ctx, "Connection fully established")
		c.dispatch(func() { c.config.FullyEstablishedEventHandler.OnFullyEstablished(&FullyEstablishedEvent{}) })
	}

	if dss.DataAck != nil {
		ack := *dss.DataAck
		if !dss.DataAck64 {
			ack = mapping.ExpandSeq(uint32(ack), c.sender.Una())
		}
		// 遅い経路から届いた古いセグメントのウィンドウは採用しない
		fresh := ack >= c.sender.Una()
		retired, err := c.sender.Ack(ack)
		if err != nil {
			c.violation(s, "invalid DATA_ACK", err)
			return false
		}
		if fresh {
			c.peerWindow = uint64(seg.Window)
		}
		if len(retired) > 0 || c.sender.FinAcked() {
			c.notifier.Broadcast()
		}
		if c.sender.FinAcked() && !c.closing.LocalFinAcked() {
			c.closing.AckLocalFin()
		}
	}

	if dss.Mapping == nil {
		return true
	}
	m := c.receiver.FromOption(dss.Mapping)
	if !m.Infinite() && m.PayloadLen() > 0 && m.SubflowSeq == seg.Seq && m.PayloadLen() == len(seg.Payload) && c.checksum {
		if dss.Checksum == nil {
			c.violation(s, "DSS without checksum", errors.ErrProtocolViolation)
			return false
		}
		if !mapping.VerifyChecksum(m, seg.Payload, *dss.Checksum) {
			c.checksumFailed(s, m)
			in.drop = true
			return c.isRegistered(s)
		}
	}
	if err := c.receiver.AddMapping(uint32(s.ID()), m); err != nil {
		c.violation(s, "conflicting mapping", err)
		return false
	}
	if m.Infinite() {
		c.logger.Warnf(c.subflowCtx(s), "Peer fell back to infinite mapping at %d", m.DataSeq)
		ev := &InfiniteMappingEvent{SubflowID: s.ID()}
		c.dispatch(func() { c.config.InfiniteMappingEventHandler.OnInfiniteMapping(ev) })
	}
	if m.DataFin {
		in.needAck = true
	}
	return true
}

func (c *Conn) isRegistered(s *subflow.Subflow) bool {
	_, err := c.registry.Get(s.ID())
	return err == nil
}

// checksumFailedは、DSSチェックサムの不一致を処理します。
//
// 他にサブフローがあれば、MP_FAILを付けてこのサブフローのみをリセットし、データは他の経路で送り直させます。
// 唯一のサブフローであれば、MP_FAILでピアに無限マッピングへの移行を求めます。
func (c *Conn) checksumFailed(s *subflow.Subflow, m mapping.Mapping) {
	ctx := c.subflowCtx(s)
	fail := &option.Fail{DataSeq: m.DataSeq}
	if c.registry.Len() > 1 {
		c.logger.Warnf(ctx, "DSS checksum mismatch at %d, resetting subflow", m.DataSeq)
		c.sendOn(s, nil, fail)
		c.resetSubflow(s, errors.Errorf("dss checksum mismatch at %d: %w", m.DataSeq, errors.ErrProtocolViolation))
		return
	}
	c.logger.Warnf(ctx, "DSS checksum mismatch at %d, requesting fallback", m.DataSeq)
	c.sendOn(s, nil, c.dss(nil, nil), fail)
}

// handleFailは、ピアが検出したチェックサムの不一致を受けて無限マッピングへ移行します。
func (c *Conn) handleFail(s *subflow.Subflow, f *option.Fail) {
	if _, ok := c.sender.InfiniteMode(); ok {
		return
	}
	if c.registry.Len() > 1 {
		// ピアはこのサブフローをリセットし、データは他のサブフローで送り直される
		c.logger.Warnf(c.subflowCtx(s), "Received MP_FAIL at %d", f.DataSeq)
		return
	}
	tr := s.Transport()
	if tr == nil || !s.State().CanSend() {
		return
	}
	c.logger.Warnf(c.subflowCtx(s), "Received MP_FAIL at %d, falling back to infinite mapping", f.DataSeq)
	m := c.sender.Infinite(uint32(s.ID()), tr.NextSeq())
	c.sendOn(s, nil, c.dss(&m, nil))
	for _, other := range c.registry.All() {
		if other.ID() != s.ID() {
			c.resetSubflow(other, errors.Errorf("fallback to infinite mapping: %w", errors.ErrProtocolViolation))
		}
	}
	ev := &InfiniteMappingEvent{SubflowID: s.ID(), Local: true}
	c.dispatch(func() { c.config.InfiniteMappingEventHandler.OnInfiniteMapping(ev) })
	c.pump()
}

func (c *Conn) handleAddAddr(o *option.AddAddr) {
	addr := o.AddrPort()
	c.remoteAddrs.Set(o.AddrID, addr)
	c.logger.Infof(c.ctx, "Peer advertised address %d: %v", o.AddrID, addr)
	ev := &AddressAddedEvent{AddrID: o.AddrID, Addr: addr}
	c.dispatch(func() { c.config.AddressAddedEventHandler.OnAddressAdded(ev) })
}

// handleRemoveAddrは、ピアが取り消したアドレスを使っているサブフローを閉じます。
func (c *Conn) handleRemoveAddr(s *subflow.Subflow, o *option.RemoveAddr) bool {
	for _, id := range o.AddrIDs {
		addr, err := c.remoteAddrs.Remove(id)
		if err != nil {
			c.violation(s, "REMOVE_ADDR", err)
			return false
		}
		c.logger.Infof(c.ctx, "Peer removed address %d: %v", id, addr)
		ev := &AddressRemovedEvent{AddrID: id, Addr: addr}
		c.dispatch(func() { c.config.AddressRemovedEventHandler.OnAddressRemoved(ev) })

		for _, other := range c.registry.All() {
			if other.Remote.Addr() != addr.Addr() || (addr.Port() != 0 && other.Remote.Port() != addr.Port()) {
				continue
			}
			if other.ID() == s.ID() {
				continue
			}
			c.resetSubflow(other, errors.Errorf("address %d removed by peer: %w", id, errors.ErrConnectionClosed))
		}
	}
	return true
}

// handlePrioは、MP_PRIOでバックアップ指定を更新します。
//
// アドレスIDがない場合は受信したサブフロー、ある場合はそのアドレスへのサブフローが対象です。
func (c *Conn) handlePrio(s *subflow.Subflow, o *option.Prio) bool {
	targets := []*subflow.Subflow{s}
	if o.AddrID != nil {
		addr, err := c.remoteAddrs.Get(*o.AddrID)
		if err != nil {
			c.violation(s, "MP_PRIO", err)
			return false
		}
		targets = targets[:0]
		for _, other := range c.registry.All() {
			if other.Remote.Addr() == addr.Addr() {
				targets = append(targets, other)
			}
		}
	}
	for _, t := range targets {
		t.Backup = o.Backup
	}
	c.resetScheduler()
	return true
}

// handleDeltaOWDは、タイムスタンプから片方向遅延を計測し、ピアの計測値を反映します。
func (c *Conn) handleDeltaOWD(s *subflow.Subflow, o *option.DeltaOWD, in *input) {
	if o.Measured != nil {
		if d := time.Duration(*o.Measured) * time.Microsecond; d > 0 {
			s.OWD = d
		}
		return
	}
	measured := c.nowMicros() - int64(o.Timestamp)
	in.echo = &option.DeltaOWD{Timestamp: o.Timestamp, Measured: &measured}
}

func (c *Conn) nowMicros() int64 {
	return c.loop.Clock().Now().UnixMicro()
}

// afterInputは、セグメントの処理後にDATA_ACKの送信やクローズの進行を行います。
func (c *Conn) afterInput(s *subflow.Subflow, in *input) {
	if c.receiver != nil && c.receiver.FinReached() && !c.closing.RemoteFinReceived() {
		c.logger.Infof(c.ctx, "Received DATA_FIN")
		c.closing.RemoteFin()
	}
	if in.needAck || in.echo != nil {
		opts := []option.Option{c.dss(nil, nil)}
		if in.echo != nil {
			opts = append(opts, in.echo)
		}
		c.sendAck(s, opts...)
	}
	c.pump()
	c.notifier.Broadcast()
}
