package mptcp

import (
	"context"
	"sync"

	"github.com/aptpod/mptcp-go/auth"
	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/internal/ch"
	"github.com/aptpod/mptcp-go/option"
	"github.com/aptpod/mptcp-go/subflow"
)

// ErrListenerClosedは、クローズ済みのListenerを使用した場合のエラーです。
var ErrListenerClosed = errors.Errorf("listener closed: %w", errors.ErrConnectionClosed)

// Listenerは、受動側のコネクションを受け入れます。
//
// subflow.Acceptor を実装します。MP_CAPABLEのSYNから新しいコネクションを生成し、
// MP_JOINのSYNはトークンで既存のコネクションへ振り分けます。
type Listener struct {
	config ListenerConfig
	tokens *auth.TokenTable[*Conn]

	acceptCh chan *Conn

	mu       sync.Mutex
	closed   bool
	closedCh chan struct{}
}

var _ subflow.Acceptor = (*Listener)(nil)

// NewListenerは、Listenerを生成します。
func NewListener(opts ...ListenerOption) *Listener {
	config := defaultListenerConfig
	for _, opt := range opts {
		opt(&config)
	}
	config.validate()
	return &Listener{
		config:   config,
		tokens:   auth.NewTokenTable[*Conn](),
		acceptCh: make(chan *Conn, config.Backlog),
		closedCh: make(chan struct{}),
	}
}

// AcceptSynは、受信したSYNを検査し、SYN-ACKに付与するオプションを返します。
func (l *Listener) AcceptSyn(tr subflow.Transport, syn *subflow.Segment) ([]option.Option, subflow.Handler, error) {
	if capable, ok := subflow.FindOption[*option.Capable](syn); ok {
		return l.acceptCapable(tr, capable)
	}
	if join, ok := subflow.FindOption[*option.Join](syn); ok && join.Mode == option.JoinSyn {
		return l.acceptJoin(tr, join)
	}
	l.config.Logger.Warnf(context.Background(), "Rejected SYN from %v without MP_CAPABLE or MP_JOIN", tr.RemoteAddr())
	return nil, nil, errors.Errorf("SYN without MP_CAPABLE or MP_JOIN: %w", errors.ErrProtocolViolation)
}

func (l *Listener) acceptCapable(tr subflow.Transport, capable *option.Capable) ([]option.Option, subflow.Handler, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, nil, ErrListenerClosed
	}

	config := defaultConnConfig
	for _, opt := range l.config.ConnOptions {
		opt(&config)
	}
	c := newConn(config, l.config.Dialer, false)

	var (
		key uint64
		err error
	)
	if c.config.Key != nil {
		key = *c.config.Key
		_, err = l.tokens.Add(key, c)
	} else {
		key, _, err = l.tokens.Reserve(c.config.Rand, c)
	}
	if err != nil {
		return nil, nil, err
	}
	c.setLocalKey(key)
	c.checksum = c.checksum || capable.ChecksumRequired()
	c.setPeerKey(capable.SenderKey)
	c.listener = l

	master := subflow.New(tr.LocalAddr(), tr.RemoteAddr(), 0, true)
	master.SetState(subflow.StateSynReceived)
	master.SetTransport(tr)
	id := c.registry.Add(master)
	c.localAddrs.Set(0, tr.LocalAddr())
	c.remoteAddrs.Set(0, tr.RemoteAddr())

	select {
	case l.acceptCh <- c:
	default:
		l.tokens.Remove(c.localToken)
		return nil, nil, errors.Errorf("accept backlog full: %w", errors.ErrConnectionReset)
	}
	c.start()
	c.logger.Infof(c.ctx, "Accepted MP_CAPABLE from %v", tr.RemoteAddr())
	return []option.Option{c.capableOption(nil)}, c.handlerFor(id), nil
}

func (l *Listener) acceptJoin(tr subflow.Transport, join *option.Join) ([]option.Option, subflow.Handler, error) {
	c, err := l.tokens.Lookup(join.Token)
	if err != nil {
		l.config.Logger.Warnf(context.Background(), "Rejected MP_JOIN from %v: %v", tr.RemoteAddr(), err)
		return nil, nil, err
	}
	if f := l.config.JoinFilter; f != nil {
		req := JoinRequest{
			ConnID: c.ID(),
			Token:  join.Token,
			AddrID: join.AddrID,
			Backup: join.Backup,
			Local:  tr.LocalAddr(),
			Remote: tr.RemoteAddr(),
		}
		if !f(req) {
			c.logger.Infof(c.ctx, "MP_JOIN from %v rejected by filter", tr.RemoteAddr())
			return nil, nil, errors.Errorf("join rejected by filter: %w", errors.ErrAuthentication)
		}
	}
	return c.acceptJoin(tr, join)
}

// Acceptは、受け入れたコネクションを返します。
//
// コネクションはマスターサブフローのハンドシェイク中に返される場合があります。
// 確立を待つ場合は Conn.WaitEstablished を使用してください。
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	c, ok := ch.ReadOrDone(ctx, l.closedCh, l.acceptCh)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrListenerClosed
	}
	return c, nil
}

// Lenは、Listenerに登録されているコネクションの数を返します。
func (l *Listener) Len() int {
	return l.tokens.Len()
}

// Closeは、新しいコネクションの受け入れを停止し、まだAcceptされていないコネクションを中断します。
//
// Accept済みのコネクションは、引き続きMP_JOINを受け入れます。
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.closedCh)
	l.mu.Unlock()

	for {
		select {
		case c := <-l.acceptCh:
			c.Abort()
		default:
			return nil
		}
	}
}

func (l *Listener) remove(c *Conn) {
	l.tokens.Remove(c.localToken)
}
