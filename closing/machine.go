// Package closing は、コネクションレベルのクローズ処理 (DATA_FIN の交換とファストクローズ) を管理する状態機械を提供します。
package closing

import (
	"time"

	"github.com/aptpod/mptcp-go/event"
	"github.com/aptpod/mptcp-go/subflow"
)

// DefaultTimeWaitは、TimeWaitタイマーのデフォルト値です。
const DefaultTimeWait = 2 * time.Second

// Controllerは、状態機械がサブフローへ指示を出すための操作です。コネクションが実装します。
type Controller interface {
	// CloseSubflowは、サブフローのグレースフルなクローズを開始します。
	CloseSubflow(s *subflow.Subflow)
	// ResetSubflowは、サブフローを即座に破棄します。
	ResetSubflow(s *subflow.Subflow)
	// SendFastCloseは、サブフロー上でMP_FASTCLOSEを送信します。
	SendFastClose(s *subflow.Subflow)
	// Expiredは、タイマーが満了した時に呼び出されます。
	// gracefulは、クローズ処理が完了してClosedへ遷移した場合にtrueです。
	// falseの場合、オープン中に全てのサブフローを失ったまま代替経路が確立されなかったことを示します。
	Expired(graceful bool)
}

// Machineは、コネクションレベルのクローズ状態機械です。
//
// 状態はDATA_FINの送受信と確認応答のフラグから導出されます。
// 全ての操作はコネクションのイベントループ上で呼び出します。
type Machine struct {
	loop     *event.Loop
	registry *subflow.Registry
	ctrl     Controller
	timeWait time.Duration

	localFin      bool
	localFinAcked bool
	remoteFin     bool
	terminal      State

	timer           *event.Timer
	timeWaitEntered bool
}

// NewMachineは、Open状態のMachineを生成します。timeWaitが0以下の場合は DefaultTimeWait を使用します。
func NewMachine(loop *event.Loop, registry *subflow.Registry, ctrl Controller, timeWait time.Duration) *Machine {
	if timeWait <= 0 {
		timeWait = DefaultTimeWait
	}
	return &Machine{
		loop:     loop,
		registry: registry,
		ctrl:     ctrl,
		timeWait: timeWait,
	}
}

// Stateは、現在の状態を返します。
func (m *Machine) State() State {
	switch {
	case m.terminal != StateOpen:
		return m.terminal
	case m.timeWaitEntered:
		return StateTimeWait
	case m.localFin && m.localFinAcked && m.remoteFin:
		return StateBothFinAcked
	case m.localFin:
		return StateLocalFinSent
	case m.remoteFin:
		return StateRemoteFinSent
	default:
		return StateOpen
	}
}

func (m *Machine) LocalFinSent() bool { return m.localFin }

func (m *Machine) LocalFinAcked() bool { return m.localFinAcked }

func (m *Machine) RemoteFinReceived() bool { return m.remoteFin }

// TimerPendingは、TimeWaitまたは経路喪失のタイマーが動作中かどうかを返します。
func (m *Machine) TimerPending() bool { return m.timer.Pending() }

// LocalFinは、DATA_FINを送信したことを記録します。
//
// Establishedバケットのサブフローはグレースフルにクローズし、
// ハンドシェイク中のRestartingバケットのサブフローはリセットします。
func (m *Machine) LocalFin() {
	if m.localFin || m.State().Terminated() {
		return
	}
	m.localFin = true
	for _, s := range m.registry.Restarting() {
		m.ctrl.ResetSubflow(s)
	}
	for _, s := range m.registry.Established() {
		m.ctrl.CloseSubflow(s)
	}
}

// AckLocalFinは、送信したDATA_FINが確認応答されたことを記録します。
func (m *Machine) AckLocalFin() {
	if !m.localFin || m.State().Terminated() {
		return
	}
	m.localFinAcked = true
}

// RemoteFinは、ピアのDATA_FINまで受信したことを記録します。
func (m *Machine) RemoteFin() {
	if m.State().Terminated() {
		return
	}
	m.remoteFin = true
}

// SubflowClosedは、サブフローが閉じた後に呼び出します。
//
// 全てのサブフローが閉じた場合、クローズ処理中であればTimeWaitへ遷移してタイマーを開始します。
// オープン中であれば状態はそのままで、代替経路を待つタイマーを開始します。
func (m *Machine) SubflowClosed() {
	st := m.State()
	if st.Terminated() || m.registry.Len() > 0 || m.timer.Pending() {
		return
	}
	if st.Closing() {
		m.timeWaitEntered = true
	}
	m.timer = m.loop.AfterFunc(m.timeWait, m.expire)
}

// SubflowEstablishedは、サブフローが確立した時に呼び出します。動作中のタイマーを取り消します。
func (m *Machine) SubflowEstablished() {
	if !m.timer.Pending() {
		return
	}
	m.timer.Cancel()
	m.timer = nil
	m.timeWaitEntered = false
}

func (m *Machine) expire() {
	m.timer = nil
	if m.timeWaitEntered {
		m.timeWaitEntered = false
		m.terminal = StateClosed
		m.ctrl.Expired(true)
		return
	}
	m.ctrl.Expired(false)
}

// FastCloseは、クローズ中でない全てのサブフローをリセットし、代表のサブフロー1つでMP_FASTCLOSEを送信して
// FastClosedへ遷移します。確認応答は待ちません。
func (m *Machine) FastClose() {
	if m.State().Terminated() {
		return
	}
	m.stopTimer()
	m.terminal = StateFastClosed

	targets := append(m.registry.Established(), m.registry.Restarting()...)
	if len(targets) > 0 {
		m.ctrl.SendFastClose(targets[0])
	}
	for _, s := range targets {
		m.ctrl.ResetSubflow(s)
	}
}

// PeerFastCloseは、ピアからMP_FASTCLOSEを受信した時に呼び出します。
// MP_FASTCLOSEは送り返さずに、クローズ中でない全てのサブフローをリセットしてFastClosedへ遷移します。
func (m *Machine) PeerFastClose() {
	if m.State().Terminated() {
		return
	}
	m.stopTimer()
	m.terminal = StateFastClosed
	for _, s := range append(m.registry.Established(), m.registry.Restarting()...) {
		m.ctrl.ResetSubflow(s)
	}
}

// Closeは、タイマーを止めてClosedへ遷移します。既に終了している場合は何もしません。
func (m *Machine) Close() {
	if m.State().Terminated() {
		return
	}
	m.stopTimer()
	m.terminal = StateClosed
}

func (m *Machine) stopTimer() {
	m.timer.Cancel()
	m.timer = nil
	m.timeWaitEntered = false
}
