package log

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Loggerは、mptcp-go内で使用するロガーインターフェースです。
type Logger interface {
	Infof(context.Context, string, ...interface{})
	Warnf(context.Context, string, ...interface{})
	Errorf(context.Context, string, ...interface{})
	Debugf(context.Context, string, ...interface{})
}

var (
	trackConnectionIDKey = "trackConnectionIDKey"
	trackSubflowIDKey    = "trackSubflowIDKey"
)

// WithTrackConnectionIDは、新たにコネクションIDを採番しコンテキストにセットします。
//
// コネクションIDはコネクションが生成されたタイミングでセットします。
// ここで設定されたコネクションIDは常にログ出力します。
func WithTrackConnectionID(ctx context.Context) context.Context {
	return WithConnectionID(ctx, genTrackID())
}

// WithConnectionIDは、指定したコネクションIDをコンテキストにセットします。
func WithConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, &trackConnectionIDKey, id)
}

// TrackConnectionIDは、コンテキストにセットされたコネクションIDを取得します。
func TrackConnectionID(ctx context.Context) string {
	v, ok := ctx.Value(&trackConnectionIDKey).(string)
	if !ok {
		return ""
	}
	return v
}

// WithTrackSubflowIDは、サブフローIDをコンテキストにセットします。
func WithTrackSubflowID(ctx context.Context, id uint32) context.Context {
	return context.WithValue(ctx, &trackSubflowIDKey, fmt.Sprintf("%d", id))
}

// TrackSubflowIDは、コンテキストにセットされたサブフローIDを取得します。
func TrackSubflowID(ctx context.Context) string {
	v, ok := ctx.Value(&trackSubflowIDKey).(string)
	if !ok {
		return ""
	}
	return v
}

// トラッキングIDを出力する際のキーです。
const (
	ConnectionIDKey = "conn"
	SubflowIDKey    = "subflow"
)

type trackField struct {
	key, value string
}

// trackFieldsは、コンテキストにセットされたトラッキングIDを出力順に返します。
func trackFields(ctx context.Context) []trackField {
	var res []trackField
	if cID := TrackConnectionID(ctx); cID != "" {
		res = append(res, trackField{ConnectionIDKey, cID})
	}
	if sID := TrackSubflowID(ctx); sID != "" {
		res = append(res, trackField{SubflowIDKey, sID})
	}
	return res
}

func genTrackID() string {
	return uuid.NewString()
}
