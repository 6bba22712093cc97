// Package pipe は、同一プロセス内の2つのエンドポイントをつなぐサブフロートランスポートを提供します。
//
// 経路は損失のない信頼性のあるストリームとして振る舞います。セグメントはバイナリへ変換して配送され、
// 受信側のエンドポイントごとの配送ループでハンドラへ順番に通知されます。
package pipe

import (
	"context"
	"net/netip"
	"sync"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/subflow"
)

var (
	// ErrConnectionRefusedは、宛先にリスナーが存在しない場合のエラーです。
	ErrConnectionRefused = errors.New("connection refused")
	// ErrAddressInUseは、リッスン済みのアドレスを再度リッスンした場合のエラーです。
	ErrAddressInUse = errors.New("address already in use")
	// ErrNotConnectedは、データを送信できない状態で送信した場合のエラーです。
	ErrNotConnected = errors.New("not connected")
)

var _ subflow.Dialer = (*Network)(nil)

// Networkは、エンドポイント同士をアドレスで接続するインメモリのネットワークです。
type Network struct {
	config Config

	mu        sync.Mutex
	acceptors map[netip.AddrPort]subflow.Acceptor
	paths     map[netip.Addr]PathConfig
	endpoints map[*Endpoint]struct{}
}

// NewNetworkは、Networkを生成します。
func NewNetwork(opts ...Option) *Network {
	var c Config
	for _, o := range opts {
		o(&c)
	}
	c.validate()
	return &Network{
		config:    c,
		acceptors: make(map[netip.AddrPort]subflow.Acceptor),
		paths:     make(map[netip.Addr]PathConfig),
		endpoints: make(map[*Endpoint]struct{}),
	}
}

// Listenは、addr宛てのSYNをaで受け付けます。
func (n *Network) Listen(addr netip.AddrPort, a subflow.Acceptor) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.acceptors[addr]; ok {
		return errors.Errorf("%v: %w", addr, ErrAddressInUse)
	}
	n.acceptors[addr] = a
	return nil
}

// Unlistenは、addrでの受け付けを終了します。確立済みのエンドポイントには影響しません。
func (n *Network) Unlisten(addr netip.AddrPort) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.acceptors, addr)
}

// SetPathConfigは、ローカルアドレスlocalから開設する経路の特性を設定します。
//
// 設定は以降に開設する経路に適用されます。
func (n *Network) SetPathConfig(local netip.Addr, c PathConfig) {
	c.validate()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths[local] = c
}

func (n *Network) pathConfig(local netip.Addr) PathConfig {
	n.mu.Lock()
	defer n.mu.Unlock()
	if c, ok := n.paths[local]; ok {
		return c
	}
	return n.config.DefaultPath
}

// Dialは、SYNを送信したエンドポイントを返します。ハンドシェイクの結果はhへ通知されます。
func (n *Network) Dial(ctx context.Context, req subflow.DialRequest, h subflow.Handler) (subflow.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	a, ok := n.acceptors[req.Remote]
	n.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("dial %v->%v: %w", req.Local, req.Remote, ErrConnectionRefused)
	}

	path := n.pathConfig(req.Local.Addr())
	client := n.newEndpoint(req.Local, req.Remote, subflow.StateSynSent, path)
	server := n.newEndpoint(req.Remote, req.Local, subflow.StateListen, path)
	client.peer, server.peer = server, client
	client.handler = h
	server.acceptor = a

	syn := &subflow.Segment{Flags: subflow.FlagSyn, Options: req.SynOptions}
	if err := client.transmit(kindSyn, syn, 0); err != nil {
		client.Reset()
		return nil, err
	}
	n.config.Logger.Debugf(context.Background(), "pipe: dial %v->%v", req.Local, req.Remote)
	return client, nil
}

// Breakは、addrを端点とする全ての経路をリセットし、その数を返します。経路の喪失の再現に使用します。
func (n *Network) Break(addr netip.Addr) int {
	var targets []*Endpoint
	n.mu.Lock()
	for e := range n.endpoints {
		if e.local.Addr() == addr {
			targets = append(targets, e)
		}
	}
	n.mu.Unlock()
	for _, e := range targets {
		e.Reset()
	}
	return len(targets)
}

// Closeは、全てのエンドポイントをリセットし、配送ループの終了を待ちます。
func (n *Network) Close() {
	n.mu.Lock()
	endpoints := make([]*Endpoint, 0, len(n.endpoints))
	for e := range n.endpoints {
		endpoints = append(endpoints, e)
	}
	n.acceptors = make(map[netip.AddrPort]subflow.Acceptor)
	n.mu.Unlock()

	for _, e := range endpoints {
		e.Reset()
	}
	for _, e := range endpoints {
		<-e.loop.Done()
	}
}

func (n *Network) register(e *Endpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.endpoints[e] = struct{}{}
}

func (n *Network) unregister(e *Endpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.endpoints, e)
}
