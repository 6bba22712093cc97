package log

import "context"

var _ Logger = (*nopLogger)(nil)

type nopLogger struct{}

func (*nopLogger) Infof(context.Context, string, ...any)  {}
func (*nopLogger) Warnf(context.Context, string, ...any)  {}
func (*nopLogger) Errorf(context.Context, string, ...any) {}
func (*nopLogger) Debugf(context.Context, string, ...any) {}

// NewNopは、何も出力しないロガーを返却します。
//
// Config で Logger が指定されていない場合のデフォルトです。
func NewNop() Logger {
	return &nopLogger{}
}
