// Package event は、コネクションごとの単一ゴルーチンのイベントループとタイマーを提供します。
//
// コネクションの状態は全てループ上で変更されます。投入された関数は到着順に1つずつ実行され、
// 並行して実行されることはありません。
package event

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/aptpod/mptcp-go/errors"
)

// ErrStoppedは、停止したループへ関数を投入した場合のエラーです。
var ErrStopped = errors.Errorf("event loop stopped: %w", errors.ErrConnectionClosed)

// Loopは、投入された関数をFIFO順に実行するイベントループです。
type Loop struct {
	clock clock.Clock

	cond     *sync.Cond
	handlers []func()
	stopped  bool
	started  bool
	done     chan struct{}
}

// NewLoopは、Loopを生成します。clkがnilの場合は実時間の時計を使用します。
func NewLoop(clk clock.Clock) *Loop {
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{
		clock: clk,
		cond:  sync.NewCond(&sync.Mutex{}),
		done:  make(chan struct{}),
	}
}

// Clockは、タイマーに使用する時計を返します。
func (l *Loop) Clock() clock.Clock { return l.clock }

// Startは、ループのゴルーチンを開始します。2回目以降の呼び出しは何もしません。
func (l *Loop) Start() {
	l.cond.L.Lock()
	defer l.cond.L.Unlock()
	if l.started {
		return
	}
	l.started = true
	go l.run()
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.cond.L.Lock()
		for len(l.handlers) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.stopped {
			l.handlers = nil
			l.cond.L.Unlock()
			return
		}
		handlers := l.handlers
		l.handlers = nil
		l.cond.L.Unlock()

		for _, h := range handlers {
			if l.isStopped() {
				break
			}
			h()
		}
	}
}

func (l *Loop) isStopped() bool {
	l.cond.L.Lock()
	defer l.cond.L.Unlock()
	return l.stopped
}

// Postは、fをループへ投入し、完了を待たずに戻ります。ループが停止している場合はfalseを返します。
func (l *Loop) Post(f func()) bool {
	l.cond.L.Lock()
	defer l.cond.L.Unlock()
	if l.stopped {
		return false
	}
	l.handlers = append(l.handlers, f)
	l.cond.Signal()
	return true
}

// Doは、fをループへ投入し、その完了を待ちます。
//
// ループ上から呼び出してはいけません。ctxがキャンセルされた場合、fは後で実行される可能性があります。
func (l *Loop) Do(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		f()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopは、ループを停止します。実行中の関数の完了後、未実行の関数は破棄されます。
// ループ上から呼び出すことができます。
func (l *Loop) Stop() {
	l.cond.L.Lock()
	defer l.cond.L.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	l.cond.Signal()
	if !l.started {
		l.started = true
		close(l.done)
	}
}

// Doneは、ループのゴルーチンが終了した時にクローズされるチャネルを返します。
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Timerは、ループ上でコールバックを実行するタイマーです。
//
// タイマーを生成したコンポーネントのみが Cancel を呼び出せます。
type Timer struct {
	timer     *clock.Timer
	cancelled bool
}

// AfterFuncは、d経過後にfをループ上で実行するタイマーを生成します。
func (l *Loop) AfterFunc(d time.Duration, f func()) *Timer {
	t := &Timer{}
	t.timer = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if t.cancelled {
				return
			}
			t.cancelled = true
			f()
		})
	})
	return t
}

// Cancelは、タイマーを取り消します。ループ上で呼び出した場合、以降にコールバックが実行されないことを保証します。
// nilのTimerに対しても安全です。
func (t *Timer) Cancel() {
	if t == nil {
		return
	}
	t.cancelled = true
	t.timer.Stop()
}

// Pendingは、タイマーがまだ発火も取り消しもされていないかどうかを返します。ループ上で呼び出してください。
func (t *Timer) Pending() bool {
	return t != nil && !t.cancelled
}
