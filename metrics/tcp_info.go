package metrics

import (
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/aptpod/mptcp-go/errors"
)

var _ ManagedProvider = (*TCPInfoProvider)(nil)

// TCPInfoProviderは、TCP接続のカーネル情報からメトリクスを取得します。
//
// バックグラウンドで定期的にメトリクスを更新します。カーネル情報を取得できない環境では
// デフォルト値を返します。送信中のバイト数はアプリケーション層で管理します。
type TCPInfoProvider struct {
	conn     net.Conn
	clock    clock.Clock
	interval time.Duration

	stateMu sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	metricsMu     sync.RWMutex
	smoothedRTT   time.Duration
	rttvar        time.Duration
	cwnd          uint64
	bytesInFlight uint64
}

// NewTCPInfoProviderは、TCPInfoProviderを生成します。clkがnilの場合は実時間の時計を使用します。
//
// メトリクスの収集を開始するには Start を呼び出す必要があります。
func NewTCPInfoProvider(conn net.Conn, interval time.Duration, clk clock.Clock) *TCPInfoProvider {
	if clk == nil {
		clk = clock.New()
	}
	return &TCPInfoProvider{
		conn:     conn,
		clock:    clk,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (p *TCPInfoProvider) Start() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.stopped {
		return errors.New("TCPInfoProvider already stopped, cannot restart")
	}
	if p.started {
		return errors.New("TCPInfoProvider already started")
	}
	p.started = true
	// 初回は即時に取得する
	_ = p.update()
	p.wg.Add(1)
	go p.updateLoop()
	return nil
}

func (p *TCPInfoProvider) updateLoop() {
	defer p.wg.Done()
	ticker := p.clock.Ticker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = p.update()
		case <-p.stopCh:
			return
		}
	}
}

func (p *TCPInfoProvider) update() error {
	tcpConn, ok := p.conn.(*net.TCPConn)
	if !ok {
		return errors.New("not a TCP connection")
	}
	raw, err := tcpConn.SyscallConn()
	if err != nil {
		return err
	}
	var (
		info    tcpInfo
		infoErr error
	)
	if err := raw.Control(func(fd uintptr) {
		info, infoErr = readTCPInfo(fd)
	}); err != nil {
		return err
	}
	if infoErr != nil {
		return infoErr
	}
	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()
	p.smoothedRTT = info.rtt
	p.rttvar = info.rttvar
	p.cwnd = info.cwnd
	return nil
}

func (p *TCPInfoProvider) RTT() time.Duration {
	p.metricsMu.RLock()
	defer p.metricsMu.RUnlock()
	if p.smoothedRTT == 0 {
		return DefaultRTT
	}
	return p.smoothedRTT
}

func (p *TCPInfoProvider) RTTVar() time.Duration {
	p.metricsMu.RLock()
	defer p.metricsMu.RUnlock()
	if p.rttvar == 0 {
		return DefaultRTTVar
	}
	return p.rttvar
}

func (p *TCPInfoProvider) CongestionWindow() uint64 {
	p.metricsMu.RLock()
	defer p.metricsMu.RUnlock()
	if p.cwnd == 0 {
		return DefaultCWND
	}
	return p.cwnd
}

func (p *TCPInfoProvider) BytesInFlight() uint64 {
	p.metricsMu.RLock()
	defer p.metricsMu.RUnlock()
	return p.bytesInFlight
}

func (p *TCPInfoProvider) AddBytesInFlight(n uint64) {
	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()
	p.bytesInFlight += n
}

func (p *TCPInfoProvider) SubBytesInFlight(n uint64) {
	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()
	if n > p.bytesInFlight {
		p.bytesInFlight = 0
	} else {
		p.bytesInFlight -= n
	}
}

// Stopは、バックグラウンドの更新を終了し、その完了を待ちます。冪等です。
func (p *TCPInfoProvider) Stop() {
	p.stateMu.Lock()
	if p.stopped {
		p.stateMu.Unlock()
		return
	}
	p.stopped = true
	p.stateMu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
}

type tcpInfo struct {
	rtt    time.Duration
	rttvar time.Duration
	cwnd   uint64
}
