package ch

import "context"

// ReadOrDoneは、cから1つ受信します。
//
// ctxのキャンセル、doneのクローズ、cのクローズのいずれかで中断した場合はfalseを返します。
func ReadOrDone[T any](ctx context.Context, done <-chan struct{}, c <-chan T) (T, bool) {
	var zero T
	select {
	case v, ok := <-c:
		if !ok {
			return zero, false
		}
		return v, true
	case <-done:
		return zero, false
	case <-ctx.Done():
		return zero, false
	}
}
