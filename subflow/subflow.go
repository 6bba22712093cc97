// Package subflow は、サブフローのハンドル、トランスポートとの契約、
// およびサブフローを状態ごとのバケットで管理するレジストリを提供します。
package subflow

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/aptpod/mptcp-go/metrics"
)

// IDは、レジストリ内でサブフローを識別する番号です。一度割り当てたIDは再利用されません。
type ID uint32

// Subflowは、1つの経路のハンドルです。
//
// コネクションへの参照は持たず、通知はIDを介して行われます。
type Subflow struct {
	id     ID
	state  State
	bucket Bucket
	tr     Transport

	Local  netip.AddrPort
	Remote netip.AddrPort
	// AddrIDは、この経路のアドレスIDです。
	AddrID uint8
	// Masterは、コネクションを確立した最初のサブフローであることを示します。
	Master bool
	// Backupは、他に利用可能なサブフローがない場合のみ使用することを示します。
	Backup bool
	// OWDは、推定した片方向遅延です。未計測の場合は0です。
	OWD time.Duration
}

// Newは、まだ登録されていないサブフローを生成します。
func New(local, remote netip.AddrPort, addrID uint8, master bool) *Subflow {
	return &Subflow{
		state:  StateSynSent,
		Local:  local,
		Remote: remote,
		AddrID: addrID,
		Master: master,
	}
}

func (s *Subflow) ID() ID { return s.id }

// Stateは、キャッシュされたトランスポートの状態を返します。
func (s *Subflow) State() State { return s.state }

// SetStateは、キャッシュされた状態を更新します。バケットの移動は Registry.Sync で行います。
func (s *Subflow) SetState(st State) { s.state = st }

func (s *Subflow) Bucket() Bucket { return s.bucket }

func (s *Subflow) Transport() Transport { return s.tr }

func (s *Subflow) SetTransport(tr Transport) { s.tr = tr }

func (s *Subflow) metrics() metrics.Provider {
	if s.tr == nil {
		return nopMetrics
	}
	return s.tr
}

var nopMetrics = metrics.NewNop()

func (s *Subflow) RTT() time.Duration { return s.metrics().RTT() }

func (s *Subflow) RTTVar() time.Duration { return s.metrics().RTTVar() }

func (s *Subflow) CongestionWindow() uint64 { return s.metrics().CongestionWindow() }

func (s *Subflow) BytesInFlight() uint64 { return s.metrics().BytesInFlight() }

// AvailableWindowは、輻輳ウィンドウのうち未使用のバイト数を返します。
func (s *Subflow) AvailableWindow() uint64 {
	cwnd, inflight := s.CongestionWindow(), s.BytesInFlight()
	if inflight >= cwnd {
		return 0
	}
	return cwnd - inflight
}

func (s *Subflow) String() string {
	role := "join"
	if s.Master {
		role = "master"
	}
	return fmt.Sprintf("subflow#%d{%v->%v addr_id=%d %s state=%v backup=%t}",
		s.id, s.Local, s.Remote, s.AddrID, role, s.state, s.Backup)
}
