package websocket

import (
	"compress/flate"
	"crypto/tls"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/aptpod/mptcp-go/log"
)

/*
Config は、トランスポートに関する設定です。
*/
type Config struct {
	// Logger
	Logger log.Logger

	// Clock は、Pingの送信間隔とメトリクスの更新間隔に使用する時計です。
	Clock clock.Clock

	// Path は、WebSocketのエンドポイントのパスです。
	Path string

	// EnableTLS は、 wss で接続するかどうかを設定します。
	EnableTLS bool

	// TLSConfig は、TLS設定です。
	TLSConfig *tls.Config

	// TokenSource は、接続時に認証ヘッダーへ設定するトークンを取得します。
	TokenSource TokenSource

	// DialTimeout は、WebSocket接続のタイムアウトです。
	// 0 に設定された場合は、 DefaultDialTimeout が使用されます。
	DialTimeout time.Duration

	// DialRetry は、経路上のエラーで接続できなかった場合のリトライ回数です。
	// 0 に設定された場合は、リトライしません。
	DialRetry int

	// EnableCompression は、permessage-deflate 拡張をネゴシエーションします。
	EnableCompression bool

	// CompressionLevel は、DEFLATE 圧縮の圧縮レベルです。
	// 詳細な設定値については、 compress/flate パッケージの定数を参照してください。
	CompressionLevel int

	// PingInterval は、RTT計測用のPingの送信間隔です。
	// 0 に設定された場合は、 DefaultPingInterval が使用されます。
	PingInterval time.Duration

	// MetricsInterval は、カーネルのTCP情報を取得する間隔です。
	// 0 に設定された場合は、 DefaultMetricsInterval が使用されます。
	MetricsInterval time.Duration

	// CongestionWindow は、カーネルのTCP情報を取得できない場合の輻輳ウィンドウです。
	// 0 に設定された場合は、 metrics.DefaultCWND が使用されます。
	CongestionWindow uint64

	// ReadLimit は、受信するメッセージの最大サイズです。
	// 0 に設定された場合は、 DefaultReadLimit が使用されます。
	ReadLimit int64
}

/*
Config のデフォルト値は以下のように定義されています。
*/
const (
	DefaultDialTimeout     = 10 * time.Second
	DefaultPingInterval    = time.Second
	DefaultMetricsInterval = 200 * time.Millisecond
	DefaultReadLimit       = 1 << 20
)

func (c *Config) validate() {
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.MetricsInterval == 0 {
		c.MetricsInterval = DefaultMetricsInterval
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = DefaultReadLimit
	}
	if c.EnableCompression && c.CompressionLevel == 0 {
		c.CompressionLevel = flate.BestSpeed
	}
}

// Optionは、DialerとServerのオプションです。
type Option func(*Config)

// WithLoggerは、ロガーを設定します。
func WithLogger(l log.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithClockは、時計を設定します。
func WithClock(clk clock.Clock) Option {
	return func(c *Config) {
		c.Clock = clk
	}
}

// WithPathは、WebSocketのエンドポイントのパスを設定します。
func WithPath(path string) Option {
	return func(c *Config) {
		c.Path = path
	}
}

// WithTLSは、TLS設定を設定し、 wss で接続します。
func WithTLS(cfg *tls.Config) Option {
	return func(c *Config) {
		c.EnableTLS = true
		c.TLSConfig = cfg
	}
}

// WithTokenSourceは、認証トークンの取得元を設定します。
func WithTokenSource(ts TokenSource) Option {
	return func(c *Config) {
		c.TokenSource = ts
	}
}

// WithDialTimeoutは、WebSocket接続のタイムアウトを設定します。
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DialTimeout = d
	}
}

// WithDialRetryは、接続できなかった場合のリトライ回数を設定します。
func WithDialRetry(n int) Option {
	return func(c *Config) {
		c.DialRetry = n
	}
}

// WithCompressionは、permessage-deflate 拡張を有効にします。
func WithCompression(level int) Option {
	return func(c *Config) {
		c.EnableCompression = true
		c.CompressionLevel = level
	}
}

// WithPingIntervalは、Pingの送信間隔を設定します。
func WithPingInterval(d time.Duration) Option {
	return func(c *Config) {
		c.PingInterval = d
	}
}

// WithMetricsIntervalは、カーネルのTCP情報を取得する間隔を設定します。
func WithMetricsInterval(d time.Duration) Option {
	return func(c *Config) {
		c.MetricsInterval = d
	}
}

// WithCongestionWindowは、カーネルのTCP情報を取得できない場合の輻輳ウィンドウを設定します。
func WithCongestionWindow(cwnd uint64) Option {
	return func(c *Config) {
		c.CongestionWindow = cwnd
	}
}

// WithReadLimitは、受信するメッセージの最大サイズを設定します。
func WithReadLimit(n int64) Option {
	return func(c *Config) {
		c.ReadLimit = n
	}
}

// Tokenはトークンを表します。
type Token struct {
	// Tokenはトークン文字列です。
	Token string

	// Headerはヘッダ名を指定します。デフォルトは `Authorization` です。
	Header string
}

// TokenSourceは、認証トークンの取得用インターフェースです。
//
// DialerはこのインターフェースをWebSocket接続時に呼び出します。
type TokenSource interface {
	Token() (*Token, error)
}

// StaticTokenSourceは、静的に設定されたトークンを常に返却するTokenSource実装です。
type StaticTokenSource struct {
	StaticToken *Token
}

// TokenはTokenを返却します。
func (ts *StaticTokenSource) Token() (*Token, error) {
	return ts.StaticToken, nil
}
