package pipe

import (
	"net/netip"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/aptpod/mptcp-go/log"
	"github.com/aptpod/mptcp-go/metrics"
	"github.com/aptpod/mptcp-go/subflow"
)

// PathConfigは、経路ごとの特性です。
type PathConfig struct {
	// CongestionWindowは、送信側の輻輳ウィンドウです。0の場合は metrics.DefaultCWND です。
	CongestionWindow uint64
	// RTTは、送信側が報告する平滑化RTTです。0の場合は未計測として扱います。
	RTT time.Duration
	// Dropは、この経路の全てのパケットを破棄します。ハンドシェイクが完了しない経路の再現に使用します。
	Drop bool
}

func (c *PathConfig) validate() {
	if c.CongestionWindow == 0 {
		c.CongestionWindow = metrics.DefaultCWND
	}
}

// Tapは、配送されるセグメントを観測する関数です。テストで使用します。
type Tap func(from, to netip.AddrPort, seg *subflow.Segment)

// Configは、Networkの設定です。
type Config struct {
	// Logger
	Logger log.Logger
	// Clock
	Clock clock.Clock
	// DefaultPathは、SetPathConfigで設定されていない経路の特性です。
	DefaultPath PathConfig
	// Tap
	Tap Tap
}

func (c *Config) validate() {
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	c.DefaultPath.validate()
}

// Optionは、Networkのオプションです。
type Option func(*Config)

// WithLoggerは、ロガーを設定します。
func WithLogger(l log.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithClockは、エンドポイントの配送ループが使用する時計を設定します。
func WithClock(clk clock.Clock) Option {
	return func(c *Config) {
		c.Clock = clk
	}
}

// WithDefaultPathは、デフォルトの経路特性を設定します。
func WithDefaultPath(p PathConfig) Option {
	return func(c *Config) {
		c.DefaultPath = p
	}
}

// WithTapは、配送されるセグメントを観測する関数を設定します。
func WithTap(t Tap) Option {
	return func(c *Config) {
		c.Tap = t
	}
}
