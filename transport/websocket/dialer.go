package websocket

import (
	"context"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	gwebsocket "github.com/gorilla/websocket"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/internal/retry"
	"github.com/aptpod/mptcp-go/subflow"
)

var _ subflow.Dialer = (*Dialer)(nil)

// Dialerは、WebSocketコネクションを開いてサブフローを開設します。
type Dialer struct {
	config Config
}

// NewDialerは、Dialerを返却します。
func NewDialer(opts ...Option) *Dialer {
	var c Config
	for _, o := range opts {
		o(&c)
	}
	c.validate()
	return &Dialer{config: c}
}

// Dialは、req.Local から req.Remote へWebSocketコネクションを開き、SYNを送信したTransportを返します。
//
// req.Local のアドレスが指定されている場合は、そのアドレスへバインドして接続します。
func (d *Dialer) Dial(ctx context.Context, req subflow.DialRequest, h subflow.Handler) (subflow.Transport, error) {
	u := d.url(req)
	d.config.Logger.Infof(ctx, "Dial: starting %v", u)

	var (
		header http.Header
		err    error
	)
	if d.config.TokenSource != nil {
		tk, err := d.config.TokenSource.Token()
		if err != nil {
			return nil, errors.Errorf("failed retrieving token: %w", err)
		}
		header = http.Header{}
		header.Add(tokenHeader(tk), tk.Token)
	}

	netDialer := &net.Dialer{}
	if req.Local.Addr().IsValid() && !req.Local.Addr().IsUnspecified() {
		netDialer.LocalAddr = net.TCPAddrFromAddrPort(req.Local)
	}
	wd := &gwebsocket.Dialer{
		NetDialContext:    netDialer.DialContext,
		HandshakeTimeout:  d.config.DialTimeout,
		TLSClientConfig:   d.config.TLSConfig,
		EnableCompression: d.config.EnableCompression,
	}
	var wsconn *gwebsocket.Conn
	dial := func(attempt int) error {
		conn, resp, err := wd.DialContext(ctx, u, header)
		if err == nil {
			wsconn = conn
			return nil
		}
		if resp != nil {
			// サーバーが応答した場合は再試行しない
			dump, _ := httputil.DumpResponse(resp, true)
			return retry.Permanent(errors.Errorf("dial failed with error response[%s]: %w", dump, err))
		}
		d.config.Logger.Infof(ctx, "Dial: %v failed (attempt %d): %v", u, attempt+1, err)
		return errors.Errorf("dial %v: %w", u, err)
	}
	if d.config.DialRetry > 0 {
		b := retry.Backoff{MaxRetries: d.config.DialRetry, Clock: d.config.Clock}
		err = b.Do(ctx, dial)
	} else {
		err = dial(0)
	}
	if err != nil {
		return nil, err
	}
	c, err := newConn(wsconn, d.config)
	if err != nil {
		_ = wsconn.Close()
		return nil, err
	}

	t := newTransport(c, d.config, subflow.StateSynSent)
	t.handler = h
	t.start()
	if err := t.transmit(kindSyn, &subflow.Segment{Flags: subflow.FlagSyn, Options: req.SynOptions}); err != nil {
		t.Reset()
		return nil, err
	}
	d.config.Logger.Debugf(ctx, "Dial: %v->%v syn sent", t.LocalAddr(), t.RemoteAddr())
	return t, nil
}

func (d *Dialer) url(req subflow.DialRequest) string {
	scheme := "ws"
	if d.config.EnableTLS {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   req.Remote.String(),
		Path:   "/" + strings.TrimPrefix(d.config.Path, "/"),
	}
	return u.String()
}

func tokenHeader(tk *Token) string {
	if tk.Header == "" {
		return "Authorization"
	}
	return tk.Header
}
