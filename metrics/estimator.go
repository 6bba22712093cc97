package metrics

import (
	"sync"
	"time"
)

var _ Provider = (*Estimator)(nil)

// Estimatorは、RTTサンプルからSRTTとRTTVARを推定するProviderです。
//
// 輻輳制御は行わないため、輻輳ウィンドウは生成時に与えた固定値です。
type Estimator struct {
	mu            sync.RWMutex
	srtt          time.Duration
	rttvar        time.Duration
	cwnd          uint64
	bytesInFlight uint64
}

// NewEstimatorは、輻輳ウィンドウをcwndバイトとするEstimatorを生成します。0の場合は DefaultCWND です。
func NewEstimator(cwnd uint64) *Estimator {
	if cwnd == 0 {
		cwnd = DefaultCWND
	}
	return &Estimator{cwnd: cwnd}
}

// Observeは、RTTの計測値を反映します。
func (e *Estimator) Observe(sample time.Duration) {
	if sample <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.srtt == 0 {
		e.srtt = sample
		e.rttvar = sample / 2
		return
	}
	diff := e.srtt - sample
	if diff < 0 {
		diff = -diff
	}
	// RFC 6298: beta=1/4, alpha=1/8
	e.rttvar = (3*e.rttvar + diff) / 4
	e.srtt = (7*e.srtt + sample) / 8
}

func (e *Estimator) RTT() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.srtt == 0 {
		return DefaultRTT
	}
	return e.srtt
}

func (e *Estimator) RTTVar() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.srtt == 0 {
		return DefaultRTTVar
	}
	return e.rttvar
}

func (e *Estimator) CongestionWindow() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cwnd
}

// SetCongestionWindowは、輻輳ウィンドウを変更します。
func (e *Estimator) SetCongestionWindow(cwnd uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cwnd = cwnd
}

func (e *Estimator) BytesInFlight() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bytesInFlight
}

func (e *Estimator) AddBytesInFlight(n uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bytesInFlight += n
}

// SubBytesInFlightは、送信中のバイト数を減らします。0未満にはなりません。
func (e *Estimator) SubBytesInFlight(n uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n > e.bytesInFlight {
		e.bytesInFlight = 0
	} else {
		e.bytesInFlight -= n
	}
}
