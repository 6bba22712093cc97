package scheduler

import (
	"time"

	"github.com/aptpod/mptcp-go/subflow"
)

var _ Scheduler = (*OWD)(nil)

// OWDは、送信方向の片方向遅延が最小のサブフローを選択します。
//
// 片方向遅延が未計測のサブフローは、RTTの半分を推定値として扱います。
type OWD struct{}

func NewOWD() *OWD {
	return &OWD{}
}

func (o *OWD) Select(pending, window uint64, established []*subflow.Subflow) (Selection, bool) {
	if pending == 0 || window == 0 {
		return Selection{}, false
	}

	var (
		selected *subflow.Subflow
		best     time.Duration
	)
	for _, s := range established {
		if !usable(s) {
			continue
		}
		d := forwardDelay(s)
		if selected == nil || d < best {
			selected, best = s, d
		}
	}
	if selected == nil {
		return Selection{}, false
	}
	return selection(pending, window, selected)
}

func forwardDelay(s *subflow.Subflow) time.Duration {
	if s.OWD > 0 {
		return s.OWD
	}
	return s.RTT() / 2
}
