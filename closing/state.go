package closing

import "fmt"

// Stateは、コネクションレベルのクローズ状態です。
type State uint8

const (
	StateOpen State = iota
	// StateLocalFinSentは、DATA_FINを送信し、その確認応答またはピアのDATA_FINを待っている状態です。
	StateLocalFinSent
	// StateRemoteFinSentは、ピアのDATA_FINを受信し、自身はまだDATA_FINを送信していない状態です。
	StateRemoteFinSent
	// StateBothFinAckedは、双方のDATA_FINが確認応答された状態です。
	StateBothFinAcked
	// StateTimeWaitは、全てのサブフローが閉じた後、代替経路の確立を待っている状態です。
	StateTimeWait
	StateClosed
	// StateFastClosedは、MP_FASTCLOSEによって破棄された状態です。
	StateFastClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "Open"
	case StateLocalFinSent:
		return "LocalFinSent"
	case StateRemoteFinSent:
		return "RemoteFinSent"
	case StateBothFinAcked:
		return "BothFinAcked"
	case StateTimeWait:
		return "TimeWait"
	case StateClosed:
		return "Closed"
	case StateFastClosed:
		return "FastClosed"
	default:
		return fmt.Sprintf("UnknownState(%d)", uint8(s))
	}
}

// Closingは、クローズ処理中の状態かどうかを返します。
func (s State) Closing() bool {
	switch s {
	case StateLocalFinSent, StateRemoteFinSent, StateBothFinAcked, StateTimeWait:
		return true
	default:
		return false
	}
}

// Terminatedは、終了した状態かどうかを返します。
func (s State) Terminated() bool {
	return s == StateClosed || s == StateFastClosed
}
