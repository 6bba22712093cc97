package metrics

import "time"

// Providerは、サブフローのメトリクスを取得するためのインターフェースです。
//
// 実装は並行アクセスに対して安全である必要があります。
type Provider interface {
	// RTTは、平滑化ラウンドトリップタイムを返します。未計測の場合はデフォルト値を返します。
	RTT() time.Duration
	// RTTVarは、RTT変動を返します。未計測の場合はデフォルト値を返します。
	RTTVar() time.Duration
	// CongestionWindowは、輻輳ウィンドウをバイト単位で返します。
	CongestionWindow() uint64
	// BytesInFlightは、送信済みで確認応答されていないバイト数を返します。
	BytesInFlight() uint64
}

// LifeCyclerは、バックグラウンド処理のライフサイクルを管理するインターフェースです。
type LifeCycler interface {
	// Startは、バックグラウンドでのメトリクス収集を開始します。複数回の呼び出しはエラーです。
	Start() error
	// Stopは、バックグラウンド処理を終了します。冪等です。
	Stop()
}

// ManagedProviderは、ライフサイクル管理を含むProviderです。
type ManagedProvider interface {
	Provider
	LifeCycler
}

const (
	// メトリクスがまだ利用できない場合のデフォルト値
	DefaultRTT    = 100 * time.Millisecond
	DefaultRTTVar = 50 * time.Millisecond
	DefaultCWND   = 14600 // 10 * MSS (1460 バイト)
)
