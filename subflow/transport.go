package subflow

import (
	"context"
	"net/netip"

	"github.com/aptpod/mptcp-go/metrics"
	"github.com/aptpod/mptcp-go/option"
)

// Transportは、1つの経路上の信頼性のあるストリームです。
//
// 再送や輻輳制御はTransportの責務です。コネクションはウィンドウと状態を参照し、セグメントを送信するだけです。
//
//go:generate mockgen -destination ./${GOPACKAGE}mock/${GOFILE} -package ${GOPACKAGE}mock -source ./${GOFILE}
type Transport interface {
	metrics.Provider

	// Sendは、セグメントを送信し、受け付けたペイロードのバイト数を返します。
	// セグメントのSeqはTransportが設定します。
	Send(seg *Segment) (int, error)
	// Closeは、ストリームのグレースフルなクローズ (FIN) を開始します。
	Close() error
	// Resetは、ストリームを即座に破棄します (RST)。
	Reset()
	// Stateは、現在の状態を返します。
	State() State
	// NextSeqは、次に送信するデータバイトの相対シーケンス番号を返します。
	NextSeq() uint32
	LocalAddr() netip.AddrPort
	RemoteAddr() netip.AddrPort
}

// Handlerは、Transportからの通知を受け取ります。
//
// Transportは、呼び出し元のゴルーチンをブロックしない実装を期待します。
type Handler interface {
	// HandleSegmentは、受信したセグメントを通知します。SYN-ACKもこのメソッドで通知されます。
	HandleSegment(tr Transport, seg *Segment)
	// HandleStateChangeは、状態の変化を通知します。
	HandleStateChange(tr Transport, from, to State)
}

// DialRequestは、新しいサブフローの開設要求です。
type DialRequest struct {
	Local  netip.AddrPort
	Remote netip.AddrPort
	// SynOptionsは、SYNに付与するオプションです。
	SynOptions []option.Option
}

// Dialerは、経路を解決し、新しいTransportを開設します。
type Dialer interface {
	// Dialは、SYNを送信したTransportを返します。ハンドシェイクの結果はhへ通知されます。
	Dial(ctx context.Context, req DialRequest, h Handler) (Transport, error)
}

// Acceptorは、受信したSYNを処理します。
type Acceptor interface {
	// AcceptSynは、SYNを検査し、SYN-ACKに付与するオプションと以降の通知先を返します。
	// エラーを返した場合、TransportはRSTを送信して破棄されます。
	AcceptSyn(tr Transport, syn *Segment) ([]option.Option, Handler, error)
}
