package mptcp

import (
	"net/netip"

	"github.com/aptpod/mptcp-go/closing"
	"github.com/aptpod/mptcp-go/subflow"
)

type (
	nopSubflowEstablishedEventHandler struct{}
	nopSubflowFailedEventHandler      struct{}
	nopSubflowClosedEventHandler      struct{}
	nopFullyEstablishedEventHandler   struct{}
	nopClosedEventHandler             struct{}
	nopAddressAddedEventHandler       struct{}
	nopAddressRemovedEventHandler     struct{}
	nopInfiniteMappingEventHandler    struct{}
)

func (h nopSubflowEstablishedEventHandler) OnSubflowEstablished(ev *SubflowEstablishedEvent) {}
func (h nopSubflowFailedEventHandler) OnSubflowFailed(ev *SubflowFailedEvent)                {}
func (h nopSubflowClosedEventHandler) OnSubflowClosed(ev *SubflowClosedEvent)                {}
func (h nopFullyEstablishedEventHandler) OnFullyEstablished(ev *FullyEstablishedEvent)       {}
func (h nopClosedEventHandler) OnClosed(ev *ClosedEvent)                                     {}
func (h nopAddressAddedEventHandler) OnAddressAdded(ev *AddressAddedEvent)                   {}
func (h nopAddressRemovedEventHandler) OnAddressRemoved(ev *AddressRemovedEvent)             {}
func (h nopInfiniteMappingEventHandler) OnInfiniteMapping(ev *InfiniteMappingEvent)          {}

// SubflowEventは、サブフローに関するイベントの共通部分です。
type SubflowEvent struct {
	// サブフローのID
	SubflowID subflow.ID
	// ローカルアドレス
	Local netip.AddrPort
	// リモートアドレス
	Remote netip.AddrPort
	// アドレスID
	AddrID uint8
	// マスターサブフローかどうか
	Master bool
}

func newSubflowEvent(s *subflow.Subflow) SubflowEvent {
	return SubflowEvent{
		SubflowID: s.ID(),
		Local:     s.Local,
		Remote:    s.Remote,
		AddrID:    s.AddrID,
		Master:    s.Master,
	}
}

// SubflowEstablishedEventは、サブフローの確立イベントです。
type SubflowEstablishedEvent struct {
	SubflowEvent
}

// SubflowEstablishedEventHandlerは、サブフローが確立した時のイベントハンドラです。
type SubflowEstablishedEventHandler interface {
	OnSubflowEstablished(ev *SubflowEstablishedEvent)
}

// SubflowEstablishedEventHandlerFuncは、SubflowEstablishedEventHandlerの関数です。
type SubflowEstablishedEventHandlerFunc func(ev *SubflowEstablishedEvent)

func (f SubflowEstablishedEventHandlerFunc) OnSubflowEstablished(ev *SubflowEstablishedEvent) {
	f(ev)
}

// SubflowFailedEventは、サブフローの開設失敗イベントです。
//
// ハンドシェイクの失敗や、MP_JOINの認証失敗で発生します。コネクションは維持されます。
type SubflowFailedEvent struct {
	SubflowEvent
	// 失敗の原因
	Err error
}

// SubflowFailedEventHandlerは、サブフローの開設に失敗した時のイベントハンドラです。
type SubflowFailedEventHandler interface {
	OnSubflowFailed(ev *SubflowFailedEvent)
}

// SubflowFailedEventHandlerFuncは、SubflowFailedEventHandlerの関数です。
type SubflowFailedEventHandlerFunc func(ev *SubflowFailedEvent)

func (f SubflowFailedEventHandlerFunc) OnSubflowFailed(ev *SubflowFailedEvent) {
	f(ev)
}

// SubflowClosedEventは、確立済みのサブフローのクローズイベントです。
type SubflowClosedEvent struct {
	SubflowEvent
	// プロトコル違反などでリセットした場合の原因
	Err error
}

// SubflowClosedEventHandlerは、確立済みのサブフローが閉じた時のイベントハンドラです。
type SubflowClosedEventHandler interface {
	OnSubflowClosed(ev *SubflowClosedEvent)
}

// SubflowClosedEventHandlerFuncは、SubflowClosedEventHandlerの関数です。
type SubflowClosedEventHandlerFunc func(ev *SubflowClosedEvent)

func (f SubflowClosedEventHandlerFunc) OnSubflowClosed(ev *SubflowClosedEvent) {
	f(ev)
}

// FullyEstablishedEventは、コネクションの完全確立イベントです。
type FullyEstablishedEvent struct{}

// FullyEstablishedEventHandlerは、コネクションが完全確立した時のイベントハンドラです。
type FullyEstablishedEventHandler interface {
	OnFullyEstablished(ev *FullyEstablishedEvent)
}

// FullyEstablishedEventHandlerFuncは、FullyEstablishedEventHandlerの関数です。
type FullyEstablishedEventHandlerFunc func(ev *FullyEstablishedEvent)

func (f FullyEstablishedEventHandlerFunc) OnFullyEstablished(ev *FullyEstablishedEvent) {
	f(ev)
}

// ClosedEventは、コネクションのクローズイベントです。
type ClosedEvent struct {
	// 最終的なクローズ状態
	State closing.State
	// グレースフルに閉じた場合はnil
	Err error
}

// ClosedEventHandlerは、コネクションが閉じた時のイベントハンドラです。
type ClosedEventHandler interface {
	OnClosed(ev *ClosedEvent)
}

// ClosedEventHandlerFuncは、ClosedEventHandlerの関数です。
type ClosedEventHandlerFunc func(ev *ClosedEvent)

func (f ClosedEventHandlerFunc) OnClosed(ev *ClosedEvent) {
	f(ev)
}

// AddressAddedEventは、ピアのアドレス広告イベントです。
type AddressAddedEvent struct {
	AddrID uint8
	Addr   netip.AddrPort
}

// AddressAddedEventHandlerは、ピアがアドレスを広告した時のイベントハンドラです。
type AddressAddedEventHandler interface {
	OnAddressAdded(ev *AddressAddedEvent)
}

// AddressAddedEventHandlerFuncは、AddressAddedEventHandlerの関数です。
type AddressAddedEventHandlerFunc func(ev *AddressAddedEvent)

func (f AddressAddedEventHandlerFunc) OnAddressAdded(ev *AddressAddedEvent) {
	f(ev)
}

// AddressRemovedEventは、ピアのアドレス取り消しイベントです。
type AddressRemovedEvent struct {
	AddrID uint8
	Addr   netip.AddrPort
}

// AddressRemovedEventHandlerは、ピアがアドレスを取り消した時のイベントハンドラです。
type AddressRemovedEventHandler interface {
	OnAddressRemoved(ev *AddressRemovedEvent)
}

// AddressRemovedEventHandlerFuncは、AddressRemovedEventHandlerの関数です。
type AddressRemovedEventHandlerFunc func(ev *AddressRemovedEvent)

func (f AddressRemovedEventHandlerFunc) OnAddressRemoved(ev *AddressRemovedEvent) {
	f(ev)
}

// InfiniteMappingEventは、無限マッピングへの移行イベントです。
//
// 以降、データはSubflowIDのサブフローのみで運ばれます。
type InfiniteMappingEvent struct {
	SubflowID subflow.ID
	// Localは、ローカル側がDSSチェックサムの不一致を検出したのではなく、ピアのMP_FAILによって移行した場合にfalseです。
	Local bool
}

// InfiniteMappingEventHandlerは、無限マッピングへ移行した時のイベントハンドラです。
type InfiniteMappingEventHandler interface {
	OnInfiniteMapping(ev *InfiniteMappingEvent)
}

// InfiniteMappingEventHandlerFuncは、InfiniteMappingEventHandlerの関数です。
type InfiniteMappingEventHandlerFunc func(ev *InfiniteMappingEvent)

func (f InfiniteMappingEventHandlerFunc) OnInfiniteMapping(ev *InfiniteMappingEvent) {
	f(ev)
}
