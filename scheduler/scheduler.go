// Package scheduler は、送信データをどのサブフローに載せるかを決定するスケジューラを提供します。
//
// スケジューラはコネクションの生成時に一度だけ選択され、コネクションのイベントループ上からのみ呼び出されます。
package scheduler

import "github.com/aptpod/mptcp-go/subflow"

// Selectionは、スケジューラの選択結果です。
type Selection struct {
	// Subflowは、送信に使用するサブフローです。
	Subflow *subflow.Subflow
	// Sizeは、送信するバイト数です。
	Size uint64
}

// Schedulerは、送信先のサブフローを選択します。
//
// pendingは未送信のバイト数、windowはコネクションレベルで送信可能なバイト数です。
// establishedには送信候補のサブフローが登録順で渡されます。
// 送信できるサブフローがない場合はfalseを返します。
type Scheduler interface {
	Select(pending, window uint64, established []*subflow.Subflow) (Selection, bool)
}

// Resetterは、サブフローの集合が変化した時に内部状態を破棄するスケジューラです。
type Resetter interface {
	Reset()
}

// Candidatesは、スケジューラへ渡す候補を返します。
//
// バックアップではないサブフローが1つでも送信可能であればそれらのみを、そうでなければバックアップのサブフローを返します。
func Candidates(established []*subflow.Subflow) []*subflow.Subflow {
	var primary, backup []*subflow.Subflow
	for _, s := range established {
		if !s.State().CanSend() {
			continue
		}
		if s.Backup {
			backup = append(backup, s)
		} else {
			primary = append(primary, s)
		}
	}
	if len(primary) > 0 {
		return primary
	}
	return backup
}

func usable(s *subflow.Subflow) bool {
	return s.State().CanSend() && s.AvailableWindow() > 0
}

func selection(pending, window uint64, s *subflow.Subflow) (Selection, bool) {
	size := min(pending, window, s.AvailableWindow())
	if size == 0 {
		return Selection{}, false
	}
	return Selection{Subflow: s, Size: size}, true
}
