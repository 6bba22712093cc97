package scheduler

import (
	"time"

	"github.com/aptpod/mptcp-go/subflow"
)

var (
	_ Scheduler = (*ECF)(nil)
	_ Resetter  = (*ECF)(nil)
)

// ecfBetaは、ECFの第1不等式で使用するβ定数です。値が大きいほど待機しやすくなります。
const ecfBeta = 4

// ECFは、ECF (Earliest Completion First) アルゴリズムでサブフローを選択します。
//
// 各サブフローのRTT、RTTVAR、輻輳ウィンドウを考慮し、送信が最も早く完了すると予測されるサブフローを選択します。
//
//   - 第1不等式: 最速サブフローを待つべきか評価
//   - 第2不等式: 待機が本当に有益か判定
type ECF struct {
	allowWaiting bool

	// waitingは、直前の選択で最速サブフローを待機したかどうかを示します（0 または 1）。
	waiting           uint8
	waitingForSubflow subflow.ID
}

// ECFOptionは、ECF のオプションです。
type ECFOption func(*ECF)

// WithECFWaitingは、最速サブフローの空きを待つ判定を許可します。
//
// 待機と判定された場合、Select はfalseを返します。
func WithECFWaiting(allow bool) ECFOption {
	return func(e *ECF) {
		e.allowWaiting = allow
	}
}

func NewECF(opts ...ECFOption) *ECF {
	e := &ECF{}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Selectは、ECFアルゴリズムでサブフローを選択します。
//
// アルゴリズムの流れ:
//  1. 絶対最速サブフロー (fastest) の探索
//  2. 送信可能最速サブフロー (available) の探索
//  3. 両者が同一なら即座に返す
//  4. 第1不等式の評価
//  5. 第2不等式の評価 (第1が真の場合)
//  6. 待機判定とサブフロー選択
func (e *ECF) Select(pending, window uint64, established []*subflow.Subflow) (Selection, bool) {
	if pending == 0 || window == 0 {
		return Selection{}, false
	}

	var fastest, available *subflow.Subflow
	for _, s := range established {
		if !s.State().CanSend() {
			continue
		}
		if fastest == nil || s.RTT() < fastest.RTT() {
			fastest = s
		}
		if s.AvailableWindow() > 0 && (available == nil || s.RTT() < available.RTT()) {
			available = s
		}
	}
	if available == nil {
		return Selection{}, false
	}

	if fastest == available {
		e.waiting = 0
		return selection(pending, window, available)
	}

	// β * lhs < β*rhs + waiting*rhs
	// lhs = srtt_f * (x_f + cwnd_f)
	// rhs = cwnd_f * (srtt_s + delta)
	srttF := microseconds(fastest.RTT())
	srttS := microseconds(available.RTT())
	delta := max(microseconds(fastest.RTTVar()), microseconds(available.RTTVar()))

	cwndF := fastest.CongestionWindow()
	cwndS := available.CongestionWindow()

	xF := max(pending, cwndF)
	lhs := srttF * (xF + cwndF)
	rhs := cwndF * (srttS + delta)

	if ecfBeta*lhs >= ecfBeta*rhs+uint64(e.waiting)*rhs {
		e.waiting = 0
		return selection(pending, window, available)
	}

	// lhs_s >= rhs_s
	// lhs_s = srtt_s * x_s
	// rhs_s = cwnd_s * (2*srtt_f + delta)
	xS := max(pending, cwndS)
	if e.allowWaiting && srttS*xS >= cwndS*(2*srttF+delta) {
		e.waiting = 1
		e.waitingForSubflow = fastest.ID()
		return Selection{}, false
	}

	e.waiting = 0
	return selection(pending, window, available)
}

// Waitingは、最速サブフローの空きを待機しているかどうかと、その対象を返します。
func (e *ECF) Waiting() (subflow.ID, bool) {
	return e.waitingForSubflow, e.waiting == 1
}

func (e *ECF) Reset() {
	e.waiting = 0
	e.waitingForSubflow = 0
}

func microseconds(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	return uint64(d.Microseconds())
}
