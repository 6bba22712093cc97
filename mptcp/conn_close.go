package mptcp

import (
	"github.com/aptpod/mptcp-go/closing"
	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/option"
	"github.com/aptpod/mptcp-go/subflow"
)

// closingControllerは、クローズ状態機械からの指示をサブフローへ反映します。
type closingController struct {
	c *Conn
}

var _ closing.Controller = (*closingController)(nil)

func (cc *closingController) CloseSubflow(s *subflow.Subflow) {
	tr := s.Transport()
	if tr == nil {
		cc.c.resetSubflow(s, nil)
		return
	}
	if err := tr.Close(); err != nil {
		cc.c.logger.Warnf(cc.c.subflowCtx(s), "Failed to close subflow: %v", err)
		cc.c.resetSubflow(s, err)
	}
}

func (cc *closingController) ResetSubflow(s *subflow.Subflow) {
	cc.c.resetSubflow(s, nil)
}

func (cc *closingController) SendFastClose(s *subflow.Subflow) {
	cc.c.sendOn(s, nil, &option.FastClose{PeerKey: cc.c.peerKey})
}

func (cc *closingController) Expired(graceful bool) {
	if graceful {
		cc.c.logger.Infof(cc.c.ctx, "Connection closed")
		cc.c.teardown(nil)
		return
	}
	cc.c.logger.Warnf(cc.c.ctx, "No subflow was re-established")
	cc.c.teardown(errors.Errorf("all subflows lost: %w", errors.ErrConnectionReset))
}

// teardownは、コネクションを終了し、残っているサブフローを破棄してループを停止します。
// errがnilの場合はグレースフルな終了です。
func (c *Conn) teardown(err error) {
	if c.terminated {
		return
	}
	c.terminated = true
	c.err = err
	c.closing.Close()
	state := c.closing.State()

	for _, s := range c.registry.All() {
		if tr := s.Transport(); tr != nil {
			tr.Reset()
		}
		_ = c.registry.Remove(s.ID())
	}
	clear(c.joins)
	if c.listener != nil {
		c.listener.remove(c)
	}
	if err != nil {
		c.logger.Infof(c.ctx, "Connection terminated in %v: %v", state, err)
	}

	ev := &ClosedEvent{State: state, Err: err}
	c.dispatch(func() { c.config.ClosedEventHandler.OnClosed(ev) })
	c.dispatch(c.dispatcher.Stop)

	c.notifier.Broadcast()
	close(c.done)
	c.loop.Stop()
}
