package mptcp

import (
	"io"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/aptpod/mptcp-go/closing"
	"github.com/aptpod/mptcp-go/log"
	"github.com/aptpod/mptcp-go/scheduler"
)

const (
	defaultSendBufferSize    = 256 * 1024
	defaultReceiveBufferSize = 256 * 1024
	defaultMaxSegmentSize    = 1460
)

var defaultConnConfig = ConnConfig{
	Logger:                         log.NewNop(),
	Scheduler:                      nil,
	Clock:                          nil,
	TimeWait:                       closing.DefaultTimeWait,
	SendBufferSize:                 defaultSendBufferSize,
	ReceiveBufferSize:              defaultReceiveBufferSize,
	MaxSegmentSize:                 defaultMaxSegmentSize,
	Checksum:                       false,
	MeasureOWD:                     false,
	Key:                            nil,
	Rand:                           nil,
	SubflowEstablishedEventHandler: nopSubflowEstablishedEventHandler{},
	SubflowFailedEventHandler:      nopSubflowFailedEventHandler{},
	SubflowClosedEventHandler:      nopSubflowClosedEventHandler{},
	FullyEstablishedEventHandler:   nopFullyEstablishedEventHandler{},
	ClosedEventHandler:             nopClosedEventHandler{},
	AddressAddedEventHandler:       nopAddressAddedEventHandler{},
	AddressRemovedEventHandler:     nopAddressRemovedEventHandler{},
	InfiniteMappingEventHandler:    nopInfiniteMappingEventHandler{},
}

// ConnConfigは、コネクションの設定です。
type ConnConfig struct {
	// ロガー
	Logger log.Logger

	// スケジューラ
	//
	// nilの場合はラウンドロビンを使用します。スケジューラはコネクションごとに生成してください。
	Scheduler scheduler.Scheduler

	// タイマーに使用する時計
	//
	// nilの場合は実時間の時計を使用します。
	Clock clock.Clock

	// 全てのサブフローが閉じてからコネクションを閉じるまでの待機時間
	TimeWait time.Duration

	// 送信バッファのサイズ
	//
	// 受け付けたもののDATA_ACKされていないバイト数の上限です。
	SendBufferSize int

	// 受信バッファのサイズ
	//
	// ピアへ広告する受信ウィンドウの上限です。
	ReceiveBufferSize int

	// 1つのセグメントで送信するデータの最大バイト数
	MaxSegmentSize int

	// DSSチェックサムを要求するかどうか
	//
	// どちらか一方が要求した場合、チェックサムが使用されます。
	Checksum bool

	// DELTA_OWDオプションで片方向遅延を計測するかどうか
	MeasureOWD bool

	// ローカルのキー
	//
	// nilの場合は乱数で生成します。テストでの使用を想定しています。
	Key *uint64

	// キーとノンスの生成に使用する乱数源
	//
	// nilの場合は crypto/rand を使用します。
	Rand io.Reader

	// サブフローが確立した時のイベントハンドラ
	SubflowEstablishedEventHandler SubflowEstablishedEventHandler

	// サブフローの開設に失敗した時のイベントハンドラ
	SubflowFailedEventHandler SubflowFailedEventHandler

	// 確立済みのサブフローが閉じた時のイベントハンドラ
	SubflowClosedEventHandler SubflowClosedEventHandler

	// コネクションが完全確立した時のイベントハンドラ
	FullyEstablishedEventHandler FullyEstablishedEventHandler

	// コネクションが閉じた時のイベントハンドラ
	ClosedEventHandler ClosedEventHandler

	// ピアがアドレスを広告した時のイベントハンドラ
	AddressAddedEventHandler AddressAddedEventHandler

	// ピアがアドレスを取り消した時のイベントハンドラ
	AddressRemovedEventHandler AddressRemovedEventHandler

	// 無限マッピングへ移行した時のイベントハンドラ
	InfiniteMappingEventHandler InfiniteMappingEventHandler
}

func (c *ConnConfig) validate() {
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	if c.Scheduler == nil {
		c.Scheduler = scheduler.NewRoundRobin()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.TimeWait <= 0 {
		c.TimeWait = closing.DefaultTimeWait
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = defaultSendBufferSize
	}
	if c.ReceiveBufferSize <= 0 {
		c.ReceiveBufferSize = defaultReceiveBufferSize
	}
	if c.MaxSegmentSize <= 0 {
		c.MaxSegmentSize = defaultMaxSegmentSize
	}
	if c.SubflowEstablishedEventHandler == nil {
		c.SubflowEstablishedEventHandler = nopSubflowEstablishedEventHandler{}
	}
	if c.SubflowFailedEventHandler == nil {
		c.SubflowFailedEventHandler = nopSubflowFailedEventHandler{}
	}
	if c.SubflowClosedEventHandler == nil {
		c.SubflowClosedEventHandler = nopSubflowClosedEventHandler{}
	}
	if c.FullyEstablishedEventHandler == nil {
		c.FullyEstablishedEventHandler = nopFullyEstablishedEventHandler{}
	}
	if c.ClosedEventHandler == nil {
		c.ClosedEventHandler = nopClosedEventHandler{}
	}
	if c.AddressAddedEventHandler == nil {
		c.AddressAddedEventHandler = nopAddressAddedEventHandler{}
	}
	if c.AddressRemovedEventHandler == nil {
		c.AddressRemovedEventHandler = nopAddressRemovedEventHandler{}
	}
	if c.InfiniteMappingEventHandler == nil {
		c.InfiniteMappingEventHandler = nopInfiniteMappingEventHandler{}
	}
}

// DefaultConnConfigは、デフォルトのConnConfigを取得します。
func DefaultConnConfig() *ConnConfig {
	c := defaultConnConfig
	return &c
}

// ConnOptionは、Connのオプションです。
type ConnOption func(*ConnConfig)

// WithConnLoggerは、ロガーを設定します。
func WithConnLogger(l log.Logger) ConnOption {
	return func(o *ConnConfig) {
		o.Logger = l
	}
}

// WithConnSchedulerは、スケジューラを設定します。
func WithConnScheduler(s scheduler.Scheduler) ConnOption {
	return func(o *ConnConfig) {
		o.Scheduler = s
	}
}

// WithConnClockは、タイマーに使用する時計を設定します。
func WithConnClock(clk clock.Clock) ConnOption {
	return func(o *ConnConfig) {
		o.Clock = clk
	}
}

// WithConnTimeWaitは、TimeWaitの待機時間を設定します。
func WithConnTimeWait(d time.Duration) ConnOption {
	return func(o *ConnConfig) {
		o.TimeWait = d
	}
}

// WithConnSendBufferSizeは、送信バッファのサイズを設定します。
func WithConnSendBufferSize(n int) ConnOption {
	return func(o *ConnConfig) {
		o.SendBufferSize = n
	}
}

// WithConnReceiveBufferSizeは、受信バッファのサイズを設定します。
func WithConnReceiveBufferSize(n int) ConnOption {
	return func(o *ConnConfig) {
		o.ReceiveBufferSize = n
	}
}

// WithConnMaxSegmentSizeは、1つのセグメントで送信するデータの最大バイト数を設定します。
func WithConnMaxSegmentSize(n int) ConnOption {
	return func(o *ConnConfig) {
		o.MaxSegmentSize = n
	}
}

// WithConnChecksumは、DSSチェックサムを要求するかどうかを設定します。
func WithConnChecksum(enabled bool) ConnOption {
	return func(o *ConnConfig) {
		o.Checksum = enabled
	}
}

// WithConnMeasureOWDは、片方向遅延を計測するかどうかを設定します。
func WithConnMeasureOWD(enabled bool) ConnOption {
	return func(o *ConnConfig) {
		o.MeasureOWD = enabled
	}
}

// WithConnKeyは、ローカルのキーを固定します。
func WithConnKey(key uint64) ConnOption {
	return func(o *ConnConfig) {
		o.Key = &key
	}
}

// WithConnRandは、キーとノンスの生成に使用する乱数源を設定します。
func WithConnRand(r io.Reader) ConnOption {
	return func(o *ConnConfig) {
		o.Rand = r
	}
}

// WithConnSubflowEstablishedEventHandlerは、サブフローが確立した時のイベントハンドラを設定します。
func WithConnSubflowEstablishedEventHandler(h SubflowEstablishedEventHandler) ConnOption {
	return func(o *ConnConfig) {
		o.SubflowEstablishedEventHandler = h
	}
}

// WithConnSubflowFailedEventHandlerは、サブフローの開設に失敗した時のイベントハンドラを設定します。
func WithConnSubflowFailedEventHandler(h SubflowFailedEventHandler) ConnOption {
	return func(o *ConnConfig) {
		o.SubflowFailedEventHandler = h
	}
}

// WithConnSubflowClosedEventHandlerは、確立済みのサブフローが閉じた時のイベントハンドラを設定します。
func WithConnSubflowClosedEventHandler(h SubflowClosedEventHandler) ConnOption {
	return func(o *ConnConfig) {
		o.SubflowClosedEventHandler = h
	}
}

// WithConnFullyEstablishedEventHandlerは、コネクションが完全確立した時のイベントハンドラを設定します。
func WithConnFullyEstablishedEventHandler(h FullyEstablishedEventHandler) ConnOption {
	return func(o *ConnConfig) {
		o.FullyEstablishedEventHandler = h
	}
}

// WithConnClosedEventHandlerは、コネクションが閉じた時のイベントハンドラを設定します。
func WithConnClosedEventHandler(h ClosedEventHandler) ConnOption {
	return func(o *ConnConfig) {
		o.ClosedEventHandler = h
	}
}

// WithConnAddressAddedEventHandlerは、ピアがアドレスを広告した時のイベントハンドラを設定します。
func WithConnAddressAddedEventHandler(h AddressAddedEventHandler) ConnOption {
	return func(o *ConnConfig) {
		o.AddressAddedEventHandler = h
	}
}

// WithConnAddressRemovedEventHandlerは、ピアがアドレスを取り消した時のイベントハンドラを設定します。
func WithConnAddressRemovedEventHandler(h AddressRemovedEventHandler) ConnOption {
	return func(o *ConnConfig) {
		o.AddressRemovedEventHandler = h
	}
}

// WithConnInfiniteMappingEventHandlerは、無限マッピングへ移行した時のイベントハンドラを設定します。
func WithConnInfiniteMappingEventHandler(h InfiniteMappingEventHandler) ConnOption {
	return func(o *ConnConfig) {
		o.InfiniteMappingEventHandler = h
	}
}
