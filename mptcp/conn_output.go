package mptcp

import (
	"math"

	"github.com/aptpod/mptcp-go/mapping"
	"github.com/aptpod/mptcp-go/option"
	"github.com/aptpod/mptcp-go/scheduler"
	"github.com/aptpod/mptcp-go/subflow"
)

// dssは、現在のDATA_ACKと、mが指定された場合はそのマッピングを運ぶDSSを生成します。
func (c *Conn) dss(m *mapping.Mapping, payload []byte) *option.DSS {
	d := &option.DSS{}
	if c.receiver != nil {
		ack := c.receiver.Nxt()
		d.DataAck = &ack
		d.DataAck64 = true
	}
	if m != nil {
		d.Mapping = m.Option()
		if c.checksum && !m.Infinite() {
			sum := mapping.Checksum(*m, payload)
			d.Checksum = &sum
		}
	}
	return d
}

// sendOnは、サブフローでセグメントを送信します。送信に失敗した場合はfalseを返します。
func (c *Conn) sendOn(s *subflow.Subflow, payload []byte, opts ...option.Option) bool {
	tr := s.Transport()
	if tr == nil || tr.State() == subflow.StateClosed {
		return false
	}
	win := c.advertisedWindow()
	seg := &subflow.Segment{
		Flags:   subflow.FlagAck,
		Window:  uint32(min(win, math.MaxUint32)),
		Options: opts,
		Payload: payload,
	}
	if _, err := tr.Send(seg); err != nil {
		c.logger.Debugf(c.subflowCtx(s), "Failed to send segment: %v", err)
		return false
	}
	c.lastWindow = win
	return true
}

// sendAckは、DATA_ACKをsで送信します。sが送信できない状態であれば他のサブフローを使用します。
func (c *Conn) sendAck(s *subflow.Subflow, opts ...option.Option) {
	if c.sendOn(s, nil, opts...) {
		return
	}
	for _, other := range c.registry.All() {
		if other.ID() != s.ID() && c.sendOn(other, nil, opts...) {
			return
		}
	}
}

// windowUpdateは、アプリケーションの読み出しで受信ウィンドウが1セグメント分以上開いた場合にピアへ通知します。
func (c *Conn) windowUpdate() {
	mss := uint64(c.config.MaxSegmentSize)
	if c.lastWindow >= mss || c.advertisedWindow() < mss {
		return
	}
	for _, s := range c.registry.Established() {
		if c.sendOn(s, nil, c.dss(nil, nil)) {
			return
		}
	}
}

// sendWindowは、ピアの受信ウィンドウのうち、送信済みで未確認のバイトを除いた残りを返します。
func (c *Conn) sendWindow() uint64 {
	inflight := c.dataInFlight()
	if inflight >= c.peerWindow {
		return 0
	}
	return c.peerWindow - inflight
}

// dataInFlightは、データレベルで送信済みかつ未確認のバイト数を返します。
func (c *Conn) dataInFlight() uint64 {
	// DATA_FINの確認応答後はUnaがNxtを1つ超える
	if c.sender.Nxt() <= c.sender.Una() {
		return 0
	}
	return c.sender.Nxt() - c.sender.Una()
}

// pumpは、送信待ちのバイトをスケジューラが選んだサブフローへ割り当てて送信します。
//
// 全てのバイトが確認応答された後、クローズが要求されていればDATA_FINを送信します。
func (c *Conn) pump() {
	if c.terminated || !c.keysReady {
		return
	}
	for c.sender.Unsent() > 0 {
		window := min(c.sendWindow(), uint64(c.config.MaxSegmentSize))
		candidates := scheduler.Candidates(c.registry.Established())
		if id, ok := c.sender.InfiniteMode(); ok {
			candidates = onlySubflow(candidates, subflow.ID(id))
		}
		sel, ok := c.config.Scheduler.Select(uint64(c.sender.Unsent()), window, candidates)
		if !ok {
			break
		}
		s := sel.Subflow
		tr := s.Transport()
		m, payload, ok := c.sender.Allocate(uint32(s.ID()), tr.NextSeq(), int(sel.Size))
		if !ok {
			break
		}
		var dss *option.DSS
		if m.Infinite() {
			dss = c.dss(nil, nil)
		} else {
			dss = c.dss(&m, payload)
		}
		opts := []option.Option{dss}
		if c.config.MeasureOWD {
			opts = append(opts, &option.DeltaOWD{Timestamp: uint64(c.nowMicros())})
		}
		if !c.sendOn(s, payload, opts...) {
			// 割り当て済みのバイトはリセット時に再送待ちへ戻る
			c.resetSubflow(s, nil)
			if c.terminated {
				return
			}
		}
	}
	c.maybeSendFin()
}

func (c *Conn) resetScheduler() {
	if r, ok := c.config.Scheduler.(scheduler.Resetter); ok {
		r.Reset()
	}
}

func onlySubflow(list []*subflow.Subflow, id subflow.ID) []*subflow.Subflow {
	for _, s := range list {
		if s.ID() == id {
			return []*subflow.Subflow{s}
		}
	}
	return nil
}

// maybeSendFinは、クローズが要求され、全てのバイトが確認応答されていればDATA_FINを送信します。
func (c *Conn) maybeSendFin() {
	if c.terminated || !c.closeRequested || c.sender.FinSent() || c.sender.Buffered() > 0 {
		return
	}
	var target *subflow.Subflow
	for _, s := range c.registry.Established() {
		if s.State().CanSend() {
			target = s
			break
		}
	}
	if target == nil {
		return
	}
	m, ok := c.sender.Fin()
	if !ok {
		return
	}
	c.logger.Infof(c.ctx, "Sending DATA_FIN at %d", m.DataSeq)
	c.sendOn(target, nil, c.dss(&m, nil))
	c.finSubflow = target.ID()
	c.closing.LocalFin()
}

// resendFinは、DATA_FINを運んだサブフローが確認応答前に失われた場合に、残っているサブフローで送り直します。
func (c *Conn) resendFin(gone subflow.ID) {
	if c.terminated || !c.sender.FinSent() || c.sender.FinAcked() || gone != c.finSubflow {
		return
	}
	m := c.sender.FinMapping()
	for _, s := range append(c.registry.Established(), c.registry.Closing()...) {
		if c.sendOn(s, nil, c.dss(&m, nil)) {
			c.logger.Infof(c.subflowCtx(s), "Resent DATA_FIN at %d", m.DataSeq)
			c.finSubflow = s.ID()
			return
		}
	}
}
