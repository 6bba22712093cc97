package scheduler

import "github.com/aptpod/mptcp-go/subflow"

var (
	_ Scheduler = (*RoundRobin)(nil)
	_ Resetter  = (*RoundRobin)(nil)
)

// RoundRobinは、送信可能なサブフローを登録順に巡回して選択します。
type RoundRobin struct {
	last    subflow.ID
	started bool
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Selectは、前回選択したサブフローの次に登録されたサブフローから順に、ウィンドウに空きのあるものを選択します。
func (r *RoundRobin) Select(pending, window uint64, established []*subflow.Subflow) (Selection, bool) {
	if pending == 0 || window == 0 || len(established) == 0 {
		return Selection{}, false
	}

	start := 0
	if r.started {
		for i, s := range established {
			if s.ID() > r.last {
				start = i
				break
			}
		}
	}

	for i := range established {
		s := established[(start+i)%len(established)]
		if !usable(s) {
			continue
		}
		sel, ok := selection(pending, window, s)
		if !ok {
			continue
		}
		r.last, r.started = s.ID(), true
		return sel, true
	}
	return Selection{}, false
}

func (r *RoundRobin) Reset() {
	r.last, r.started = 0, false
}
