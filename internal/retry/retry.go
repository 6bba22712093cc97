// Package retry は、指数バックオフとジッターによる再試行を提供します。
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/aptpod/mptcp-go/errors"
)

var randFloat64 = rand.Float64

// Backoff のデフォルト値です。
const (
	DefaultBaseInterval = 100 * time.Millisecond
	DefaultMaxInterval  = 5 * time.Second
)

// Backoffは、失敗した処理を指数バックオフで再試行します。
//
// 待機時間は BaseInterval * 2^n を MaxInterval で頭打ちにし、0.5から1.5倍のジッターを掛けたものです。
type Backoff struct {
	// MaxRetriesは、最初の試行に続く再試行の最大回数です。0の場合は成功するまで再試行します。
	MaxRetries int

	// BaseIntervalは、最初の待機時間の基準値です。
	// 0 に設定された場合は、 DefaultBaseInterval が使用されます。
	BaseInterval time.Duration

	// MaxIntervalは、待機時間の基準値の上限です。
	// 0 に設定された場合は、 DefaultMaxInterval が使用されます。
	MaxInterval time.Duration

	// Clockは、待機に使用する時計です。nilの場合は実時間の時計を使用します。
	Clock clock.Clock
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanentは、再試行しても成功しないエラーであることを示します。
//
// Do に渡した関数がこのエラーを返すと、 Do は再試行せずに元のエラーを返します。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Doは、fがnilを返すまで再試行します。fには0から始まる試行回数が渡されます。
//
// 再試行回数を使い切った場合は最後のエラーを返します。
// ctxがキャンセルされた場合は、最後のエラーとctxのエラーを結合して返します。
func (b Backoff) Do(ctx context.Context, f func(attempt int) error) error {
	base := b.BaseInterval
	if base == 0 {
		base = DefaultBaseInterval
	}
	max := b.MaxInterval
	if max == 0 {
		max = DefaultMaxInterval
	}
	clk := b.Clock
	if clk == nil {
		clk = clock.New()
	}

	for attempt := 0; ; attempt++ {
		err := f(attempt)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if b.MaxRetries != 0 && attempt >= b.MaxRetries {
			return err
		}
		timer := clk.Timer(nextSleep(attempt, base, max))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		}
	}
}

func nextSleep(attempt int, base, max time.Duration) time.Duration {
	interval := float64(base) * math.Pow(2, float64(attempt))
	if interval > float64(max) {
		interval = float64(max)
	}
	return time.Duration(interval * (0.5 + randFloat64()))
}
