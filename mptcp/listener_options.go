package mptcp

import (
	"net/netip"

	"github.com/aptpod/mptcp-go/log"
	"github.com/aptpod/mptcp-go/subflow"
)

const defaultBacklog = 16

var defaultListenerConfig = ListenerConfig{
	Logger:      log.NewNop(),
	ConnOptions: nil,
	Dialer:      nil,
	JoinFilter:  nil,
	Backlog:     defaultBacklog,
}

// JoinRequestは、MP_JOINによるサブフローの追加要求です。
type JoinRequest struct {
	// ConnIDは、追加先のコネクションのIDです。
	ConnID string
	// Tokenは、追加先のコネクションのローカルトークンです。
	Token  uint32
	AddrID uint8
	Backup bool
	Local  netip.AddrPort
	Remote netip.AddrPort
}

// JoinFilterは、MP_JOINを受け入れるかどうかを判定します。falseを返した場合、サブフローはリセットされます。
type JoinFilter func(req JoinRequest) bool

// ListenerConfigは、Listenerの設定です。
type ListenerConfig struct {
	// ロガー
	Logger log.Logger

	// 受け入れたコネクションに適用するオプション
	ConnOptions []ConnOption

	// 受け入れたコネクションが ConnectNewSubflow で使用するDialer
	Dialer subflow.Dialer

	// MP_JOINの受け入れ判定
	//
	// nilの場合は認証に成功した全てのMP_JOINを受け入れます。
	JoinFilter JoinFilter

	// Acceptされていないコネクションの上限
	Backlog int
}

func (c *ListenerConfig) validate() {
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	if c.Backlog <= 0 {
		c.Backlog = defaultBacklog
	}
}

// ListenerOptionは、Listenerのオプションです。
type ListenerOption func(*ListenerConfig)

// WithListenerLoggerは、ロガーを設定します。
func WithListenerLogger(l log.Logger) ListenerOption {
	return func(o *ListenerConfig) {
		o.Logger = l
	}
}

// WithListenerConnOptionsは、受け入れたコネクションに適用するオプションを追加します。
func WithListenerConnOptions(opts ...ConnOption) ListenerOption {
	return func(o *ListenerConfig) {
		o.ConnOptions = append(o.ConnOptions, opts...)
	}
}

// WithListenerDialerは、受け入れたコネクションがサブフローを追加する際のDialerを設定します。
func WithListenerDialer(d subflow.Dialer) ListenerOption {
	return func(o *ListenerConfig) {
		o.Dialer = d
	}
}

// WithJoinFilterは、MP_JOINの受け入れ判定を設定します。
func WithJoinFilter(f JoinFilter) ListenerOption {
	return func(o *ListenerConfig) {
		o.JoinFilter = f
	}
}

// WithListenerBacklogは、Acceptされていないコネクションの上限を設定します。
func WithListenerBacklog(n int) ListenerOption {
	return func(o *ListenerConfig) {
		o.Backlog = n
	}
}
