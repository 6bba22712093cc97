package mptcp

import (
	"context"
	"net/netip"
	"time"

	"github.com/aptpod/mptcp-go/auth"
	"github.com/aptpod/mptcp-go/closing"
	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/log"
	"github.com/aptpod/mptcp-go/option"
	"github.com/aptpod/mptcp-go/subflow"
)

// SubflowInfoは、サブフローの状態のスナップショットです。
type SubflowInfo struct {
	SubflowEvent
	State         subflow.State
	Bucket        subflow.Bucket
	Backup        bool
	RTT           time.Duration
	OWD           time.Duration
	CWND          uint64
	BytesInFlight uint64
}

// subflowHandlerは、Transportからの通知をコネクションのループへ転送します。
type subflowHandler struct {
	c  *Conn
	id subflow.ID
}

func (c *Conn) handlerFor(id subflow.ID) subflow.Handler {
	return &subflowHandler{c: c, id: id}
}

func (h *subflowHandler) HandleSegment(tr subflow.Transport, seg *subflow.Segment) {
	h.c.loop.Post(func() {
		h.c.handleSegment(h.id, tr, seg)
	})
}

func (h *subflowHandler) HandleStateChange(tr subflow.Transport, from, to subflow.State) {
	h.c.loop.Post(func() {
		h.c.handleStateChange(h.id, tr, to)
	})
}

func (c *Conn) subflowCtx(s *subflow.Subflow) context.Context {
	return log.WithTrackSubflowID(c.ctx, uint32(s.ID()))
}

// attachは、Dialが返したTransportをサブフローへ関連付けます。
// 通知がDialの戻りより先に届いた場合は、通知側で関連付けます。
func (c *Conn) attach(id subflow.ID, tr subflow.Transport) {
	s, err := c.registry.Get(id)
	if err != nil {
		if c.terminated {
			tr.Reset()
		}
		return
	}
	if s.Transport() == nil {
		s.SetTransport(tr)
	}
}

func (c *Conn) handleStateChange(id subflow.ID, tr subflow.Transport, to subflow.State) {
	if c.terminated {
		return
	}
	s, err := c.registry.Get(id)
	if err != nil {
		return
	}
	c.attach(id, tr)
	s.SetState(to)
	ctx := c.subflowCtx(s)
	c.logger.Debugf(ctx, "Subflow state changed to %v", to)

	if to == subflow.StateEstablished {
		if !c.onHandshakeComplete(s) {
			return
		}
	}
	if js := c.joins[id]; js != nil && !js.verified && to.CanSend() {
		// MP_JOINの認証が終わるまでRestartingバケットに留める
		return
	}
	c.syncSubflow(s, nil)
}

// onHandshakeCompleteは、サブフローのTCPハンドシェイクが完了した時の処理を行います。
// サブフローをリセットした場合はfalseを返します。
func (c *Conn) onHandshakeComplete(s *subflow.Subflow) bool {
	js := c.joins[s.ID()]
	switch {
	case s.Master && c.active:
		if !c.keysReady {
			c.violation(s, "master established without MP_CAPABLE", errors.ErrProtocolViolation)
			return false
		}
		// 3番目のACKで両方のキーを返し、同時に最初のDSSを送る
		peer := c.peerKey
		c.sendOn(s, nil, c.capableOption(&peer), c.dss(nil, nil))
	case js != nil && js.active:
		if !js.verified {
			c.resetSubflow(s, errors.Errorf("join handshake without MP_JOIN: %w", errors.ErrAuthentication))
			return false
		}
		mac := auth.ComputeHMAC(c.localKey, c.peerKey, js.localNonce, js.peerNonce)
		c.sendOn(s, nil, &option.Join{Mode: option.JoinAck, HMAC: mac})
	}
	return true
}

// syncSubflowは、サブフローの状態に合わせてバケットを更新し、確立と終了を処理します。
func (c *Conn) syncSubflow(s *subflow.Subflow, cause error) {
	from := s.Bucket()
	moved, removed, err := c.registry.Sync(s.ID())
	if err != nil {
		c.logger.Errorf(c.subflowCtx(s), "Failed to sync subflow: %v", err)
		return
	}
	switch {
	case removed:
		c.subflowGone(s, from, cause)
	case moved && s.Bucket() == subflow.BucketEstablished:
		c.subflowEstablished(s)
	case moved:
		c.resetScheduler()
	}
}

func (c *Conn) subflowEstablished(s *subflow.Subflow) {
	c.logger.Infof(c.subflowCtx(s), "Subflow established %v -> %v", s.Local, s.Remote)
	c.closing.SubflowEstablished()
	c.resetScheduler()
	if s.Master {
		c.establishOnce.Do(func() { close(c.established) })
	}
	ev := &SubflowEstablishedEvent{SubflowEvent: newSubflowEvent(s)}
	c.dispatch(func() { c.config.SubflowEstablishedEventHandler.OnSubflowEstablished(ev) })
	c.pump()
	c.notifier.Broadcast()
}

// subflowGoneは、レジストリから削除されたサブフローの後始末を行います。
//
// 送信済みで未確認のバイトは残りのサブフローで送り直します。
func (c *Conn) subflowGone(s *subflow.Subflow, from subflow.Bucket, cause error) {
	ctx := c.subflowCtx(s)
	delete(c.joins, s.ID())
	if c.sender != nil {
		if n := c.sender.Requeue(uint32(s.ID())); n > 0 {
			c.logger.Debugf(ctx, "Requeued %d bytes for reinjection", n)
		}
	}
	if c.receiver != nil {
		c.receiver.RemoveSubflow(uint32(s.ID()))
	}
	c.resetScheduler()

	if from == subflow.BucketRestarting {
		c.logger.Warnf(ctx, "Subflow failed %v -> %v: %v", s.Local, s.Remote, cause)
		ev := &SubflowFailedEvent{SubflowEvent: newSubflowEvent(s), Err: cause}
		c.dispatch(func() { c.config.SubflowFailedEventHandler.OnSubflowFailed(ev) })
	} else {
		c.logger.Infof(ctx, "Subflow closed %v -> %v", s.Local, s.Remote)
		ev := &SubflowClosedEvent{SubflowEvent: newSubflowEvent(s), Err: cause}
		c.dispatch(func() { c.config.SubflowClosedEventHandler.OnSubflowClosed(ev) })
	}

	if c.registry.Len() == 0 && !c.fullyEstablished && c.closing.State() == closing.StateOpen {
		c.teardown(errors.Errorf("all subflows lost before fully established: %w", errors.ErrConnectionReset))
		return
	}
	if c.sender != nil {
		c.resendFin(s.ID())
	}
	c.closing.SubflowClosed()
	c.pump()
	c.notifier.Broadcast()
}

// resetSubflowは、サブフローをリセットしてレジストリから削除します。
func (c *Conn) resetSubflow(s *subflow.Subflow, cause error) {
	if _, err := c.registry.Get(s.ID()); err != nil {
		return
	}
	if tr := s.Transport(); tr != nil {
		tr.Reset()
	}
	s.SetState(subflow.StateClosed)
	c.syncSubflow(s, cause)
}

// violationは、サブフロー上でのプロトコル違反を記録し、そのサブフローのみをリセットします。
func (c *Conn) violation(s *subflow.Subflow, reason string, err error) {
	verr := &errors.ProtocolViolationError{SubflowID: uint32(s.ID()), Reason: reason, Err: err}
	c.logger.Warnf(c.subflowCtx(s), "Protocol violation: %v", verr)
	c.resetSubflow(s, verr)
}

// ConnectNewSubflowは、MP_JOINで新しいサブフローを開設します。
//
// コネクションが完全確立する前は errors.ErrNotFullyEstablished を返します。
// サブフローの確立はイベントハンドラで通知されます。
func (c *Conn) ConnectNewSubflow(ctx context.Context, local, remote netip.AddrPort) (subflow.ID, error) {
	if c.dialer == nil {
		return 0, errors.New("mptcp: no dialer configured")
	}
	var (
		id  subflow.ID
		req subflow.DialRequest
		err error
	)
	if xerr := c.exec(ctx, func() {
		switch {
		case c.terminated:
			err = c.closedErr()
			return
		case c.closing.State() != closing.StateOpen:
			err = errors.Errorf("connection is closing: %w", errors.ErrConnectionClosed)
			return
		case !c.fullyEstablished:
			err = errors.ErrNotFullyEstablished
			return
		}
		addrID, aerr := c.localAddrs.Allocate(local)
		if aerr != nil {
			err = aerr
			return
		}
		nonce, nerr := auth.GenerateNonce(c.config.Rand)
		if nerr != nil {
			err = nerr
			return
		}
		s := subflow.New(local, remote, addrID, false)
		id = c.registry.Add(s)
		c.joins[id] = &joinState{active: true, localNonce: nonce}
		req = subflow.DialRequest{
			Local:  local,
			Remote: remote,
			SynOptions: []option.Option{&option.Join{
				Mode:   option.JoinSyn,
				AddrID: addrID,
				Token:  c.peerToken,
				Nonce:  nonce,
			}},
		}
	}); xerr != nil {
		return 0, xerr
	}
	if err != nil {
		return 0, err
	}
	c.logger.Infof(c.ctx, "Joining new subflow %v -> %v", local, remote)

	tr, err := c.dialer.Dial(ctx, req, c.handlerFor(id))
	if err != nil {
		_ = c.exec(context.Background(), func() {
			if s, gerr := c.registry.Get(id); gerr == nil && !c.terminated {
				c.resetSubflow(s, err)
			}
		})
		return 0, errors.Errorf("dial subflow: %w", err)
	}
	c.loop.Post(func() {
		c.attach(id, tr)
	})
	return id, nil
}

// handleSynAckは、能動側で受信したSYN-ACKを処理します。
func (c *Conn) handleSynAck(s *subflow.Subflow, seg *subflow.Segment) {
	if s.Master {
		capable, ok := subflow.FindOption[*option.Capable](seg)
		if !ok {
			c.violation(s, "SYN-ACK without MP_CAPABLE", errors.ErrProtocolViolation)
			return
		}
		c.checksum = c.checksum || capable.ChecksumRequired()
		c.setPeerKey(capable.SenderKey)
		return
	}

	js := c.joins[s.ID()]
	join, ok := subflow.FindOption[*option.Join](seg)
	if js == nil || !ok || join.Mode != option.JoinSynAck {
		c.resetSubflow(s, errors.Errorf("SYN-ACK without MP_JOIN: %w", errors.ErrAuthentication))
		return
	}
	js.peerNonce = join.Nonce
	if err := auth.VerifyTruncated(join.TruncatedHMAC, c.localKey, c.peerKey, js.localNonce, js.peerNonce); err != nil {
		c.resetSubflow(s, err)
		return
	}
	js.verified = true
	s.Backup = join.Backup
	if _, err := c.remoteAddrs.Get(join.AddrID); err != nil {
		c.remoteAddrs.Set(join.AddrID, s.Remote)
	}
}

// handleJoinAckは、受動側で受信したMP_JOINの3番目のACKを検証します。
func (c *Conn) handleJoinAck(s *subflow.Subflow, js *joinState, join *option.Join) {
	if join.Mode != option.JoinAck {
		c.violation(s, "unexpected MP_JOIN", errors.ErrProtocolViolation)
		return
	}
	if err := auth.VerifyFull(join.HMAC, c.localKey, c.peerKey, js.localNonce, js.peerNonce); err != nil {
		c.resetSubflow(s, err)
		return
	}
	js.verified = true
	if s.State().CanSend() {
		c.syncSubflow(s, nil)
	}
}

// acceptJoinは、Listenerが受信したMP_JOINのSYNから受動側のサブフローを生成します。
func (c *Conn) acceptJoin(tr subflow.Transport, join *option.Join) ([]option.Option, subflow.Handler, error) {
	var (
		opts []option.Option
		h    subflow.Handler
		err  error
	)
	if xerr := c.loop.Do(context.Background(), func() {
		if c.terminated || c.closing.State() != closing.StateOpen {
			err = errors.ErrConnectionClosed
			return
		}
		if !c.keysReady {
			err = errors.ErrNotFullyEstablished
			return
		}
		nonce, nerr := auth.GenerateNonce(c.config.Rand)
		if nerr != nil {
			err = nerr
			return
		}
		s := subflow.New(tr.LocalAddr(), tr.RemoteAddr(), join.AddrID, false)
		s.Backup = join.Backup
		s.SetState(subflow.StateSynReceived)
		s.SetTransport(tr)
		id := c.registry.Add(s)
		c.joins[id] = &joinState{localNonce: nonce, peerNonce: join.Nonce}
		if _, gerr := c.remoteAddrs.Get(join.AddrID); gerr != nil {
			c.remoteAddrs.Set(join.AddrID, tr.RemoteAddr())
		}
		localID, _ := c.localAddrs.Lookup(tr.LocalAddr())
		mac := auth.ComputeHMAC(c.localKey, c.peerKey, nonce, join.Nonce)
		opts = []option.Option{&option.Join{
			Mode:          option.JoinSynAck,
			Backup:        join.Backup,
			AddrID:        localID,
			TruncatedHMAC: auth.Truncate(mac),
			Nonce:         nonce,
		}}
		h = c.handlerFor(id)
		c.logger.Infof(c.subflowCtx(s), "Accepted MP_JOIN from %v", tr.RemoteAddr())
	}); xerr != nil {
		return nil, nil, xerr
	}
	return opts, h, err
}

// SetBackupは、サブフローのバックアップ指定を変更し、MP_PRIOでピアへ通知します。
func (c *Conn) SetBackup(ctx context.Context, id subflow.ID, backup bool) error {
	var err error
	if xerr := c.exec(ctx, func() {
		if c.terminated {
			err = c.closedErr()
			return
		}
		s, gerr := c.registry.Get(id)
		if gerr != nil {
			err = gerr
			return
		}
		s.Backup = backup
		c.resetScheduler()
		c.sendOn(s, nil, &option.Prio{Backup: backup})
		c.pump()
	}); xerr != nil {
		return xerr
	}
	return err
}
