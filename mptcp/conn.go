package mptcp

import (
	"context"
	"io"
	"net/netip"
	"sync"

	"github.com/google/uuid"

	"github.com/aptpod/mptcp-go/auth"
	"github.com/aptpod/mptcp-go/closing"
	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/event"
	"github.com/aptpod/mptcp-go/internal/ch"
	"github.com/aptpod/mptcp-go/log"
	"github.com/aptpod/mptcp-go/mapping"
	"github.com/aptpod/mptcp-go/option"
	"github.com/aptpod/mptcp-go/pathid"
	"github.com/aptpod/mptcp-go/subflow"
)

// Connは、MPTCPのコネクションです。
//
// コネクションの状態は全て内部のイベントループ上で変更されます。
// 公開メソッドはループへ処理を投入して完了を待つため、複数のゴルーチンから呼び出すことができます。
// イベントハンドラは別のループ上で呼び出されるため、ハンドラからConnのメソッドを呼び出すことができます。
type Conn struct {
	config ConnConfig
	id     string
	ctx    context.Context
	logger log.Logger

	loop       *event.Loop
	dispatcher *event.Loop

	dialer   subflow.Dialer
	listener *Listener
	active   bool

	localKey   uint64
	peerKey    uint64
	localToken uint32
	peerToken  uint32
	keysReady  bool
	checksum   bool

	registry    *subflow.Registry
	joins       map[subflow.ID]*joinState
	localAddrs  *pathid.Manager
	remoteAddrs *pathid.Manager

	sender   *mapping.Sender
	receiver *mapping.Receiver
	closing  *closing.Machine

	peerWindow       uint64
	finSubflow       subflow.ID
	lastWindow       uint64
	fullyEstablished bool
	closeRequested   bool
	terminated       bool
	err              error

	notifier      *ch.Notifier
	established   chan struct{}
	establishOnce sync.Once
	done          chan struct{}

	// ループ停止後に呼び出し元のゴルーチンで状態を参照する際の排他
	stoppedMu sync.Mutex
}

// joinStateは、MP_JOINで追加したサブフローの認証状態です。
type joinState struct {
	active     bool
	localNonce uint32
	peerNonce  uint32
	verified   bool
}

func newConn(config ConnConfig, dialer subflow.Dialer, active bool) *Conn {
	config.validate()
	id := uuid.NewString()
	c := &Conn{
		config:      config,
		id:          id,
		ctx:         log.WithConnectionID(context.Background(), id),
		logger:      config.Logger,
		loop:        event.NewLoop(config.Clock),
		dispatcher:  event.NewLoop(config.Clock),
		dialer:      dialer,
		active:      active,
		checksum:    config.Checksum,
		registry:    subflow.NewRegistry(),
		joins:       make(map[subflow.ID]*joinState),
		localAddrs:  pathid.NewManager(),
		remoteAddrs: pathid.NewManager(),
		peerWindow:  uint64(config.ReceiveBufferSize),
		notifier:    ch.NewNotifier(),
		established: make(chan struct{}),
		done:        make(chan struct{}),
	}
	c.closing = closing.NewMachine(c.loop, c.registry, &closingController{c: c}, config.TimeWait)
	return c
}

func (c *Conn) start() {
	c.loop.Start()
	c.dispatcher.Start()
}

func (c *Conn) setLocalKey(key uint64) {
	c.localKey = key
	c.localToken = auth.Token(key)
}

// setPeerKeyは、ピアのキーを記録し、データシーケンス番号の送受信状態を生成します。
func (c *Conn) setPeerKey(key uint64) {
	c.peerKey = key
	c.peerToken = auth.Token(key)
	c.sender = mapping.NewSender(auth.IDSN(c.localKey))
	c.receiver = mapping.NewReceiver(auth.IDSN(key))
	c.keysReady = true
}

func (c *Conn) capableOption(peerKey *uint64) *option.Capable {
	flags := option.CapableFlagHMACSHA1
	if c.checksum {
		flags |= option.CapableFlagChecksum
	}
	return &option.Capable{
		Flags:     flags,
		SenderKey: c.localKey,
		PeerKey:   peerKey,
	}
}

// Dialは、マスターサブフローのSYNを送信し、コネクションを生成します。
//
// ハンドシェイクの完了は待ちません。確立を待つ場合は WaitEstablished を使用してください。
// dialerは、以降 ConnectNewSubflow でサブフローを追加する際にも使用されます。
func Dial(ctx context.Context, dialer subflow.Dialer, local, remote netip.AddrPort, opts ...ConnOption) (*Conn, error) {
	config := defaultConnConfig
	for _, opt := range opts {
		opt(&config)
	}
	c := newConn(config, dialer, true)

	key := c.config.Key
	if key == nil {
		k, err := auth.GenerateKey(c.config.Rand)
		if err != nil {
			return nil, errors.Errorf("generate key: %w", err)
		}
		key = &k
	}
	c.setLocalKey(*key)
	c.start()

	var master *subflow.Subflow
	if err := c.loop.Do(ctx, func() {
		master = subflow.New(local, remote, 0, true)
		c.registry.Add(master)
		c.localAddrs.Set(0, local)
		c.remoteAddrs.Set(0, remote)
	}); err != nil {
		c.shutdown()
		return nil, err
	}
	c.logger.Infof(c.ctx, "Dialing master subflow %v -> %v", local, remote)

	tr, err := dialer.Dial(ctx, subflow.DialRequest{
		Local:      local,
		Remote:     remote,
		SynOptions: []option.Option{c.capableOption(nil)},
	}, c.handlerFor(master.ID()))
	if err != nil {
		_ = c.exec(context.Background(), func() {
			c.teardown(errors.Errorf("dial master subflow: %w", errors.ErrConnectionReset))
		})
		<-c.Done()
		return nil, errors.Errorf("dial master subflow: %w", err)
	}
	c.loop.Post(func() {
		c.attach(master.ID(), tr)
	})
	return c, nil
}

// shutdownは、ループが開始済みで状態を持たないコネクションを停止します。
func (c *Conn) shutdown() {
	c.loop.Stop()
	c.dispatcher.Stop()
	<-c.loop.Done()
	<-c.dispatcher.Done()
}

// execは、fをループ上で実行します。
//
// ループが停止済みの場合は、停止後の状態に対して呼び出し元のゴルーチンでfを実行します。
func (c *Conn) exec(ctx context.Context, f func()) error {
	err := c.loop.Do(ctx, f)
	if !errors.Is(err, event.ErrStopped) {
		return err
	}
	<-c.loop.Done()
	c.stoppedMu.Lock()
	defer c.stoppedMu.Unlock()
	f()
	return nil
}

func (c *Conn) dispatch(f func()) {
	c.dispatcher.Post(f)
}

// IDは、ログの追跡に使用するコネクションの識別子を返します。
func (c *Conn) ID() string {
	return c.id
}

// LocalTokenは、ローカルのキーから導出したトークンを返します。
func (c *Conn) LocalToken() uint32 {
	return c.localToken
}

// WaitEstablishedは、マスターサブフローが確立するまで待ちます。
//
// 確立前にコネクションが終了した場合はエラーを返します。
func (c *Conn) WaitEstablished(ctx context.Context) error {
	select {
	case <-c.established:
		return nil
	case <-c.done:
		select {
		case <-c.established:
			return nil
		default:
		}
		return c.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySendは、送信可能なウィンドウに収まる分だけpを受け付け、そのバイト数を返します。
//
// 1バイトも受け付けられない場合は errors.ErrWouldBlock を返します。
func (c *Conn) TrySend(p []byte) (int, error) {
	n, _, err := c.trySend(context.Background(), p)
	return n, err
}

// Sendは、pの全てのバイトを受け付けるまでブロックします。
//
// ctxがキャンセルされた場合は、それまでに受け付けたバイト数を返します。
func (c *Conn) Send(ctx context.Context, p []byte) (int, error) {
	var total int
	for total < len(p) {
		n, wait, err := c.trySend(ctx, p[total:])
		total += n
		if err == nil {
			continue
		}
		if !errors.Is(err, errors.ErrWouldBlock) {
			return total, err
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return total, ctx.Err()
		}
	}
	return total, nil
}

func (c *Conn) trySend(ctx context.Context, p []byte) (n int, wait <-chan struct{}, err error) {
	if xerr := c.exec(ctx, func() {
		switch {
		case c.terminated:
			err = c.closedErr()
			return
		case c.closeRequested:
			err = errors.ErrConnectionClosed
			return
		}
		wait = c.notifier.Wait()
		if !c.keysReady {
			err = errors.ErrWouldBlock
			return
		}
		n = min(len(p), int(c.acceptable()))
		if n == 0 {
			err = errors.ErrWouldBlock
			return
		}
		c.sender.Write(p[:n])
		c.pump()
	}); xerr != nil {
		return 0, nil, xerr
	}
	return n, wait, err
}

// Receiveは、最大maxバイトの連続したデータを受信します。
//
// データがない場合はブロックします。ピアのDATA_FINまで全て読み出した場合は io.EOF を返します。
// コネクションがリセットされた場合は errors.ErrConnectionReset を返します。
// maxが0以下の場合は、何も読み出さずに即座に返ります。
func (c *Conn) Receive(ctx context.Context, max int) ([]byte, error) {
	if max <= 0 {
		return []byte{}, nil
	}
	for {
		var (
			b    []byte
			err  error
			wait <-chan struct{}
		)
		if xerr := c.exec(ctx, func() {
			if c.terminated && c.err != nil {
				err = c.err
				return
			}
			if c.receiver != nil {
				if c.receiver.Readable() > 0 {
					b = c.receiver.Read(max)
					if !c.terminated {
						c.windowUpdate()
					}
					return
				}
				if c.receiver.Drained() {
					err = io.EOF
					return
				}
			}
			if c.terminated {
				err = c.closedErr()
				return
			}
			wait = c.notifier.Wait()
		}); xerr != nil {
			return nil, xerr
		}
		if b != nil || err != nil {
			return b, err
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Closeは、グレースフルなクローズを開始します。完了は待ちません。
//
// 以降の送信はエラーになります。受け付け済みの全てのバイトが確認応答された後にDATA_FINを送信します。
// 完了を待つ場合は Done を使用してください。
func (c *Conn) Close(ctx context.Context) error {
	return c.exec(ctx, func() {
		if c.terminated || c.closeRequested {
			return
		}
		c.closeRequested = true
		c.logger.Infof(c.ctx, "Close requested")
		if !c.keysReady {
			c.closing.FastClose()
			c.teardown(errors.ErrConnectionClosed)
			return
		}
		c.pump()
		c.notifier.Broadcast()
	})
}

// Abortは、MP_FASTCLOSEを送信して全てのサブフローをリセットし、コネクションを即座に終了します。
func (c *Conn) Abort() {
	_ = c.exec(context.Background(), func() {
		if c.terminated {
			return
		}
		c.logger.Infof(c.ctx, "Aborting connection")
		c.closing.FastClose()
		c.teardown(errors.ErrConnectionClosed)
	})
}

// Doneは、コネクションが終了した時にクローズされるチャネルを返します。
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Errは、コネクションが終了した原因を返します。グレースフルに終了した場合や、終了していない場合はnilです。
func (c *Conn) Err() error {
	var err error
	_ = c.exec(context.Background(), func() {
		err = c.err
	})
	return err
}

func (c *Conn) closedErr() error {
	if c.err != nil {
		return c.err
	}
	return errors.ErrConnectionClosed
}

// CloseStateは、コネクションレベルのクローズ状態を返します。
//
// Abort またはピアのMP_FASTCLOSEで終了した場合は closing.StateFastClosed を返します。
// これは Closed と同じく終端の状態で、TimeWaitを経由しません。
func (c *Conn) CloseState() closing.State {
	var st closing.State
	_ = c.exec(context.Background(), func() {
		st = c.closing.State()
	})
	return st
}

// FullyEstablishedは、ピアから最初のDSSを受信済みかどうかを返します。
func (c *Conn) FullyEstablished() bool {
	var res bool
	_ = c.exec(context.Background(), func() {
		res = c.fullyEstablished
	})
	return res
}

// ComputeTotalCWNDは、Establishedバケットの全てのサブフローの輻輳ウィンドウの合計を返します。
func (c *Conn) ComputeTotalCWND() uint64 {
	var res uint64
	_ = c.exec(context.Background(), func() {
		res = c.totalCWND()
	})
	return res
}

func (c *Conn) totalCWND() uint64 {
	var total uint64
	for _, s := range c.registry.Established() {
		total += s.CongestionWindow()
	}
	return total
}

// BytesInFlightは、送信済みでDATA_ACKされていないバイト数を返します。
func (c *Conn) BytesInFlight() uint64 {
	var res uint64
	_ = c.exec(context.Background(), func() {
		if c.sender != nil {
			res = c.dataInFlight()
		}
	})
	return res
}

// AvailableWindowは、TrySendで新たに受け付けられるバイト数を返します。
func (c *Conn) AvailableWindow() uint64 {
	var res uint64
	_ = c.exec(context.Background(), func() {
		if !c.terminated && !c.closeRequested && c.keysReady {
			res = c.acceptable()
		}
	})
	return res
}

// acceptableは、ピアの受信ウィンドウと輻輳ウィンドウの合計のうち小さい方から、送信バッファ内のバイト数を引いた値です。
func (c *Conn) acceptable() uint64 {
	limit := min(c.peerWindow, c.totalCWND(), uint64(c.config.SendBufferSize))
	buffered := uint64(c.sender.Buffered())
	if buffered >= limit {
		return 0
	}
	return limit - buffered
}

// AdvertisedWindowSizeは、ピアへ広告する受信ウィンドウのサイズを返します。
func (c *Conn) AdvertisedWindowSize() uint64 {
	var res uint64
	_ = c.exec(context.Background(), func() {
		res = c.advertisedWindow()
	})
	return res
}

func (c *Conn) advertisedWindow() uint64 {
	size := uint64(c.config.ReceiveBufferSize)
	if c.receiver == nil {
		return size
	}
	buffered := uint64(c.receiver.Buffered())
	if buffered >= size {
		return 0
	}
	return size - buffered
}

// ActiveSubflowsは、Establishedバケットのサブフロー数を返します。
func (c *Conn) ActiveSubflows() int {
	var res int
	_ = c.exec(context.Background(), func() {
		res = c.registry.ActiveCount()
	})
	return res
}

// Subflowsは、登録されている全てのサブフローの情報を返します。
func (c *Conn) Subflows() []SubflowInfo {
	var res []SubflowInfo
	_ = c.exec(context.Background(), func() {
		for _, s := range c.registry.All() {
			res = append(res, SubflowInfo{
				SubflowEvent:  newSubflowEvent(s),
				State:         s.State(),
				Bucket:        s.Bucket(),
				Backup:        s.Backup,
				RTT:           s.RTT(),
				OWD:           s.OWD,
				CWND:          s.CongestionWindow(),
				BytesInFlight: s.BytesInFlight(),
			})
		}
	})
	return res
}

// DumpSubflowsは、バケットごとのサブフローの一覧を文字列で返します。
func (c *Conn) DumpSubflows() string {
	var res string
	_ = c.exec(context.Background(), func() {
		res = c.registry.String()
	})
	return res
}
