package scheduler

import (
	"maps"

	"github.com/aptpod/mptcp-go/subflow"
)

var (
	_ Scheduler = (*FastestRTT)(nil)
	_ Resetter  = (*FastestRTT)(nil)
)

// FastestRTTは、ウィンドウに空きのあるサブフローのうち、平滑化RTTが最小のものを選択します。
//
// 待機判定は行いません。RTTが等しい場合はRTTVARの小さいもの、さらに等しい場合は登録順で先のものを選択します。
type FastestRTT struct {
	lastSelected subflow.ID
	hasLast      bool

	totalSelections uint64
	switchCount     uint64
	selectionCounts map[subflow.ID]uint64
}

// FastestRTTStatsは、FastestRTT の統計情報です。
type FastestRTTStats struct {
	SelectionCounts map[subflow.ID]uint64
	TotalSelections uint64
	SwitchCount     uint64
}

func NewFastestRTT() *FastestRTT {
	return &FastestRTT{
		selectionCounts: make(map[subflow.ID]uint64),
	}
}

func (f *FastestRTT) Select(pending, window uint64, established []*subflow.Subflow) (Selection, bool) {
	if pending == 0 || window == 0 {
		return Selection{}, false
	}

	var selected *subflow.Subflow
	for _, s := range established {
		if !usable(s) {
			continue
		}
		if selected == nil ||
			s.RTT() < selected.RTT() ||
			(s.RTT() == selected.RTT() && s.RTTVar() < selected.RTTVar()) {
			selected = s
		}
	}
	if selected == nil {
		return Selection{}, false
	}

	sel, ok := selection(pending, window, selected)
	if ok {
		f.recordSelection(selected.ID())
	}
	return sel, ok
}

func (f *FastestRTT) recordSelection(id subflow.ID) {
	f.totalSelections++
	if f.hasLast && f.lastSelected != id {
		f.switchCount++
	}
	f.lastSelected, f.hasLast = id, true
	f.selectionCounts[id]++
}

// Statsは、現在の統計情報のスナップショットを返します。
func (f *FastestRTT) Stats() FastestRTTStats {
	return FastestRTTStats{
		SelectionCounts: maps.Clone(f.selectionCounts),
		TotalSelections: f.totalSelections,
		SwitchCount:     f.switchCount,
	}
}

// Resetは、直前の選択を忘れます。統計情報は保持されます。
func (f *FastestRTT) Reset() {
	f.hasLast = false
}
