// Package mapping は、コネクションレベルのデータシーケンス番号と
// サブフローごとのシーケンス番号の対応付けを管理します。
//
// Sender は送信データにデータシーケンス番号を割り当ててマッピングを生成し、
// Receiver は受信したマッピングとデータから順序通りのバイトストリームを再構成します。
//
// サブフローのシーケンス番号は、サブフローの初期シーケンス番号からの相対値です。
// 最初のデータバイトは1で、0はデータを伴わないDATA_FINに使用されます。
package mapping

import (
	"math"

	"github.com/aptpod/mptcp-go/option"
)

// FirstSubflowSeqは、サブフローの最初のデータバイトの相対シーケンス番号です。
const FirstSubflowSeq uint32 = 1

// MaxLengthは、1つのマッピングがカバーできるデータレベルの最大長です。
const MaxLength = math.MaxUint16

// Mappingは、データシーケンス番号の区間とサブフローのシーケンス番号の区間の対応です。
type Mapping struct {
	DataSeq    uint64
	SubflowSeq uint32
	// Lengthは、DATA_FINを含むデータレベルの長さです。
	Length  uint16
	DataFin bool
}

// Infiniteは、無限マッピングであるかどうかを返します。
func (m Mapping) Infinite() bool {
	return m.Length == 0 && !m.DataFin
}

// PayloadLenは、マッピングがカバーするデータバイト数を返します。
func (m Mapping) PayloadLen() int {
	if m.DataFin {
		return int(m.Length) - 1
	}
	return int(m.Length)
}

// Endは、マッピングの直後のデータシーケンス番号を返します。DATA_FINは1つ分を消費します。
func (m Mapping) End() uint64 {
	return m.DataSeq + uint64(m.Length)
}

// FinSeqは、DATA_FINのデータシーケンス番号を返します。
func (m Mapping) FinSeq() (uint64, bool) {
	if !m.DataFin {
		return 0, false
	}
	return m.End() - 1, true
}

func (m Mapping) subflowEnd() uint64 {
	return uint64(m.SubflowSeq) + uint64(m.PayloadLen())
}

// Optionは、64ビットのデータシーケンス番号を使うDSSのマッピングフィールドへ変換します。
func (m Mapping) Option() *option.Mapping {
	return &option.Mapping{
		DataSeq:    m.DataSeq,
		DataSeq64:  true,
		SubflowSeq: m.SubflowSeq,
		Length:     m.Length,
		DataFin:    m.DataFin,
	}
}

// ExpandSeqは、32ビットに切り詰められたシーケンス番号を、refに最も近い64ビット値へ復元します。
func ExpandSeq(low uint32, ref uint64) uint64 {
	const (
		span = uint64(1) << 32
		half = span / 2
	)
	v := ref&^(span-1) | uint64(low)
	switch {
	case v+half < ref:
		v += span
	case v > ref+half && v >= span:
		v -= span
	}
	return v
}
