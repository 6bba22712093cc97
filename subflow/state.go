package subflow

import "fmt"

// Stateは、サブフローのトランスポートの状態です。一般的なTCPの状態遷移に従います。
type State uint8

const (
	StateClosed State = iota
	StateListen
	StateSynSent
	StateSynReceived
	StateEstablished
	StateCloseWait
	StateFinWait1
	StateFinWait2
	StateClosing
	StateLastAck
	StateTimeWait
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateListen:
		return "Listen"
	case StateSynSent:
		return "SynSent"
	case StateSynReceived:
		return "SynReceived"
	case StateEstablished:
		return "Established"
	case StateCloseWait:
		return "CloseWait"
	case StateFinWait1:
		return "FinWait1"
	case StateFinWait2:
		return "FinWait2"
	case StateClosing:
		return "Closing"
	case StateLastAck:
		return "LastAck"
	case StateTimeWait:
		return "TimeWait"
	default:
		return fmt.Sprintf("UnknownState(%d)", uint8(s))
	}
}

// CanSendは、データを送信できる状態かどうかを返します。
func (s State) CanSend() bool {
	return s == StateEstablished || s == StateCloseWait
}

// Bucketは、サブフローの大まかな状態による分類です。
type Bucket uint8

const (
	// BucketEstablishedは、データを運べるサブフローです。
	BucketEstablished Bucket = iota + 1
	// BucketRestartingは、ハンドシェイク中のサブフローです。
	BucketRestarting
	// BucketClosingは、クローズ中のサブフローです。
	BucketClosing
)

func (b Bucket) String() string {
	switch b {
	case BucketEstablished:
		return "Established"
	case BucketRestarting:
		return "Restarting"
	case BucketClosing:
		return "Closing"
	default:
		return fmt.Sprintf("UnknownBucket(%d)", uint8(b))
	}
}

// BucketOfは、状態に対応するバケットを返します。StateClosedはどのバケットにも属さないため、falseを返します。
func BucketOf(s State) (Bucket, bool) {
	switch s {
	case StateEstablished, StateCloseWait:
		return BucketEstablished, true
	case StateListen, StateSynSent, StateSynReceived:
		return BucketRestarting, true
	case StateFinWait1, StateFinWait2, StateClosing, StateLastAck, StateTimeWait:
		return BucketClosing, true
	default:
		return 0, false
	}
}
