package websocket

import (
	"context"
	"net/http"
	"sync"

	gwebsocket "github.com/gorilla/websocket"

	"github.com/aptpod/mptcp-go/subflow"
)

var _ http.Handler = (*Server)(nil)

// Serverは、WebSocketのアップグレード要求を受け付け、サブフローのSYNを subflow.Acceptor へ渡す http.Handler です。
type Server struct {
	config   Config
	acceptor subflow.Acceptor
	upgrader gwebsocket.Upgrader

	mu         sync.Mutex
	closed     bool
	transports map[*Transport]struct{}
}

// NewServerは、Serverを生成します。
//
// TokenSource が設定されている場合は、同じトークンを持たない要求を拒否します。
func NewServer(a subflow.Acceptor, opts ...Option) *Server {
	var c Config
	for _, o := range opts {
		o(&c)
	}
	c.validate()
	return &Server{
		config:   c,
		acceptor: a,
		upgrader: gwebsocket.Upgrader{
			HandshakeTimeout:  c.DialTimeout,
			EnableCompression: c.EnableCompression,
		},
		transports: make(map[*Transport]struct{}),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.authorize(r) {
		s.config.Logger.Warnf(ctx, "websocket: unauthorized request from %v", r.RemoteAddr)
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	wsconn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.config.Logger.Warnf(ctx, "websocket: upgrade %v: %v", r.RemoteAddr, err)
		return
	}
	c, err := newConn(wsconn, s.config)
	if err != nil {
		s.config.Logger.Errorf(ctx, "websocket: %v", err)
		_ = wsconn.Close()
		return
	}

	t := newTransport(c, s.config, subflow.StateListen)
	t.acceptor = s.acceptor
	t.onClosed = s.untrack
	if !s.track(t) {
		_ = c.close(gwebsocket.CloseGoingAway)
		return
	}
	t.start()
	s.config.Logger.Debugf(context.Background(), "websocket: accepted %v->%v", t.RemoteAddr(), t.LocalAddr())
}

func (s *Server) authorize(r *http.Request) bool {
	if s.config.TokenSource == nil {
		return true
	}
	tk, err := s.config.TokenSource.Token()
	if err != nil || tk == nil {
		return false
	}
	return r.Header.Get(tokenHeader(tk)) == tk.Token
}

func (s *Server) track(t *Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.transports[t] = struct{}{}
	return true
}

func (s *Server) untrack(t *Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transports, t)
}

// Lenは、受け付けたTransportのうちClosedでないものの数を返します。
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transports)
}

// Closeは、以降の要求を拒否し、受け付けた全てのTransportをリセットしてゴルーチンの終了を待ちます。
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	transports := make([]*Transport, 0, len(s.transports))
	for t := range s.transports {
		transports = append(transports, t)
	}
	s.mu.Unlock()

	for _, t := range transports {
		t.Reset()
	}
	for _, t := range transports {
		<-t.Done()
	}
	return nil
}
