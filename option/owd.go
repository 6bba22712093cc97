package option

import "encoding/binary"

const (
	deltaOWDLen             = 12
	deltaOWDWithMeasuredLen = 20
)

// DeltaOWDは、片方向遅延の計測に使う実験的なオプションです。
//
// 送信者は自身の時計によるタイムスタンプを付与します。受信者は、受信時刻との差を
// そのサブフローの片方向遅延として計測し、同じサブフローで送り返す際にMeasuredへ格納します。
// 両端の時計のずれは全てのサブフローで共通のため、サブフロー間の比較には影響しません。
type DeltaOWD struct {
	// Timestampは、送信時刻 (マイクロ秒) です。
	Timestamp uint64
	// Measuredは、このサブフローで最後に計測した片方向遅延 (マイクロ秒) です。負の値をとり得ます。
	Measured *int64
}

func (o *DeltaOWD) SubType() SubType { return SubTypeDeltaOWD }

func (o *DeltaOWD) Len() int {
	if o.Measured != nil {
		return deltaOWDWithMeasuredLen
	}
	return deltaOWDLen
}

func (o *DeltaOWD) validate() error { return nil }

func (o *DeltaOWD) marshalTo(b []byte) {
	putHeader(b, SubTypeDeltaOWD, 0)
	binary.BigEndian.PutUint64(b[4:12], o.Timestamp)
	if o.Measured != nil {
		binary.BigEndian.PutUint64(b[12:20], uint64(*o.Measured))
	}
}

func (o *DeltaOWD) unmarshal(b []byte) error {
	if err := checkLen(SubTypeDeltaOWD, b, deltaOWDLen, deltaOWDWithMeasuredLen); err != nil {
		return err
	}
	*o = DeltaOWD{Timestamp: binary.BigEndian.Uint64(b[4:12])}
	if len(b) == deltaOWDWithMeasuredLen {
		m := int64(binary.BigEndian.Uint64(b[12:20]))
		o.Measured = &m
	}
	return nil
}
