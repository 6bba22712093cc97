/*
Package websocket は、 WebSocket を経路とするサブフロートランスポートを提供するパッケージです。

1つのWebSocketコネクションが1つのサブフローに対応します。セグメントはバイナリメッセージとして送受信され、
ハンドシェイクとクローズはメッセージ上で再現されます。再送と輻輳制御は下位のTCPに任せます。
*/
package websocket

import (
	"github.com/aptpod/mptcp-go/errors"
)

/*
Name は、本トランスポートの名称です。
*/
const Name = "websocket"

var (
	// ErrNotConnectedは、データを送信できない状態で送信した場合のエラーです。
	ErrNotConnected = errors.New("websocket: not connected")
	// ErrTransportClosedは、WebSocketコネクションが既に閉じられている場合のエラーです。
	ErrTransportClosed = errors.New("websocket: transport closed")
)

// frameKindは、メッセージ先頭の1バイトで表すパケットの種類です。
type frameKind uint8

const (
	kindSyn frameKind = iota + 1
	kindSynAck
	kindAck
	kindData
	kindFin
	kindFinAck
	kindRst
)

func (k frameKind) String() string {
	switch k {
	case kindSyn:
		return "SYN"
	case kindSynAck:
		return "SYN-ACK"
	case kindAck:
		return "ACK"
	case kindData:
		return "DATA"
	case kindFin:
		return "FIN"
	case kindFinAck:
		return "FIN-ACK"
	case kindRst:
		return "RST"
	}
	return "UNKNOWN"
}
