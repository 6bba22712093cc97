package log

import (
	"context"
	"fmt"
	"log"
	"strings"
)

type stdLogger struct {
	l *log.Logger
}

// NewStdは、`log` パッケージのデフォルトロガーを使用するLoggerを返却します。
func NewStd() Logger {
	return NewStdWith(log.Default())
}

// NewStdWithは、指定した `log` パッケージのロガーを使用するLoggerを返却します。
//
// トラッキングIDは `key=value` 形式でメッセージの前に出力されます。
func NewStdWith(l *log.Logger) Logger {
	return &stdLogger{l: l}
}

func (l *stdLogger) Infof(ctx context.Context, format string, args ...any) {
	l.output(ctx, "INFO", format, args)
}

func (l *stdLogger) Warnf(ctx context.Context, format string, args ...any) {
	l.output(ctx, "WARN", format, args)
}

func (l *stdLogger) Errorf(ctx context.Context, format string, args ...any) {
	l.output(ctx, "ERROR", format, args)
}

func (l *stdLogger) Debugf(ctx context.Context, format string, args ...any) {
	l.output(ctx, "DEBUG", format, args)
}

func (l *stdLogger) output(ctx context.Context, level, format string, args []any) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteString(":")
	for _, f := range trackFields(ctx) {
		fmt.Fprintf(&b, " %s=%s", f.key, f.value)
	}
	b.WriteString(" ")
	fmt.Fprintf(&b, format, args...)
	// 呼び出し元の行を出力する
	_ = l.l.Output(3, b.String())
}
