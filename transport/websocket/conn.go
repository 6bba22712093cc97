package websocket

import (
	"encoding/binary"
	"io"
	"net"
	"net/netip"
	"os"
	"sync"
	"syscall"
	"time"

	gwebsocket "github.com/gorilla/websocket"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/subflow"
)

const controlWriteTimeout = time.Second

// connは、 gorilla/websocket のConnのラッパーです。
//
// データメッセージの書き込みは同時に1つだけ行います。制御メッセージは並行して書き込めます。
type conn struct {
	wsconn *gwebsocket.Conn

	writeMu sync.Mutex
}

func newConn(wsconn *gwebsocket.Conn, config Config) (*conn, error) {
	wsconn.SetReadLimit(config.ReadLimit)
	if config.EnableCompression {
		wsconn.EnableWriteCompression(true)
		if err := wsconn.SetCompressionLevel(config.CompressionLevel); err != nil {
			return nil, errors.Errorf("compression level %d: %w", config.CompressionLevel, err)
		}
	}
	return &conn{wsconn: wsconn}, nil
}

// readFrameは、1メッセージを読み込んでセグメントへデコードします。
func (c *conn) readFrame() (frameKind, *subflow.Segment, int, error) {
	tp, rd, err := c.wsconn.NextReader()
	if err != nil {
		return 0, nil, 0, handleError(err)
	}
	if tp != gwebsocket.BinaryMessage {
		return 0, nil, 0, errors.Errorf("unexpected message type %d: %w", tp, errors.ErrMalformedOption)
	}
	b, err := io.ReadAll(rd)
	if err != nil {
		return 0, nil, 0, handleError(err)
	}
	if len(b) < 1 {
		return 0, nil, 0, errors.Errorf("empty frame: %w", errors.ErrMalformedOption)
	}
	var seg subflow.Segment
	if err := seg.UnmarshalBinary(b[1:]); err != nil {
		return 0, nil, 0, errors.Errorf("decode %v frame: %w", frameKind(b[0]), err)
	}
	return frameKind(b[0]), &seg, len(b), nil
}

// writeFrameは、セグメントを1メッセージとして書き込み、書き込んだバイト数を返します。
func (c *conn) writeFrame(kind frameKind, seg *subflow.Segment) (int, error) {
	b, err := seg.MarshalBinary()
	if err != nil {
		return 0, errors.Errorf("encode %v frame: %w", kind, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	wr, err := c.wsconn.NextWriter(gwebsocket.BinaryMessage)
	if err != nil {
		return 0, handleError(err)
	}
	if _, err := wr.Write([]byte{byte(kind)}); err != nil {
		_ = wr.Close()
		return 0, handleError(err)
	}
	if _, err := wr.Write(b); err != nil {
		_ = wr.Close()
		return 0, handleError(err)
	}
	if err := wr.Close(); err != nil {
		return 0, handleError(err)
	}
	return len(b) + 1, nil
}

// pingは、送信時刻をペイロードとしたPingを送信します。
func (c *conn) ping(sent time.Time) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(sent.UnixNano()))
	return handleError(c.wsconn.WriteControl(gwebsocket.PingMessage, b[:], time.Now().Add(controlWriteTimeout)))
}

// onPongは、Pingの送信時刻を受け取る関数を登録します。読み込みのゴルーチン上で呼び出されます。
func (c *conn) onPong(f func(sent time.Time)) {
	c.wsconn.SetPongHandler(func(data string) error {
		if len(data) != 8 {
			return nil
		}
		f(time.Unix(0, int64(binary.BigEndian.Uint64([]byte(data)))))
		return nil
	})
}

// closeは、クローズフレームを送信してからコネクションを閉じます。
func (c *conn) close(code int) error {
	msg := gwebsocket.FormatCloseMessage(code, "")
	_ = c.wsconn.WriteControl(gwebsocket.CloseMessage, msg, time.Now().Add(controlWriteTimeout))
	return handleError(c.wsconn.Close())
}

func (c *conn) netConn() net.Conn {
	return c.wsconn.UnderlyingConn()
}

func (c *conn) localAddr() netip.AddrPort {
	return addrPortOf(c.wsconn.LocalAddr())
}

func (c *conn) remoteAddr() netip.AddrPort {
	return addrPortOf(c.wsconn.RemoteAddr())
}

func addrPortOf(addr net.Addr) netip.AddrPort {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		ap := tcp.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return netip.AddrPort{}
	}
	return ap
}

func handleError(err error) error {
	if err == nil {
		return nil
	}
	if isErrTransportClosed(err) {
		return errors.Errorf("%v: %w", err, ErrTransportClosed)
	}
	return err
}

func isErrTransportClosed(err error) bool {
	if err, ok := err.(*net.OpError); ok {
		if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
			return true
		}
		if err, ok := err.Unwrap().(*os.SyscallError); ok {
			return err.Unwrap().Error() == "connection reset by peer"
		}
		return errors.Is(err, net.ErrClosed)
	}
	var closeErr *gwebsocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, gwebsocket.ErrCloseSent) || errors.Is(err, net.ErrClosed)
}
