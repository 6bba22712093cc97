package option

import (
	"encoding/binary"
	"math"
)

const (
	dssFlagDataAck     uint8 = 0x01 // A
	dssFlagDataAck64   uint8 = 0x02 // a
	dssFlagMapping     uint8 = 0x04 // M
	dssFlagDataSeq64   uint8 = 0x08 // m
	dssFlagDataFin     uint8 = 0x10 // F
	dssBaseLen               = 4
	dssMappingFixedLen       = 4 + 2 // subflow sequence + data-level length
	dssChecksumLen           = 2
)

// Mappingは、DSSが運ぶデータシーケンスマッピングです。
type Mapping struct {
	// DataSeqは、先頭バイトのデータシーケンス番号です。
	DataSeq uint64
	// DataSeq64がfalseの場合、DataSeqは下位32ビットのみで送信されます。
	DataSeq64 bool
	// SubflowSeqは、サブフローの初期シーケンス番号からの相対値です。
	SubflowSeq uint32
	// Lengthは、データレベルの長さです。DataFinを含みます。
	// 0かつDataFinがfalseの場合、無限マッピングを表します。
	Length uint16
	// DataFinは、このマッピングの末尾がコネクションレベルのFINであることを示します。
	DataFin bool
}

// Infiniteは、無限マッピングであるかどうかを返します。
func (m *Mapping) Infinite() bool {
	return m.Length == 0 && !m.DataFin
}

// DSSは、Data Sequence Signalオプションです。
//
// DataAckとMappingはそれぞれ省略できます。
type DSS struct {
	// DataAckは、次に受信を期待するデータシーケンス番号です。
	DataAck *uint64
	// DataAck64がfalseの場合、DataAckは下位32ビットのみで送信されます。
	DataAck64 bool
	Mapping   *Mapping
	// Checksumは、Mappingが存在する場合のみ付与できます。
	Checksum *uint16
}

func (o *DSS) SubType() SubType { return SubTypeDSS }

func (o *DSS) Len() int {
	n := dssBaseLen
	if o.DataAck != nil {
		n += seqLen(o.DataAck64)
	}
	if o.Mapping != nil {
		n += seqLen(o.Mapping.DataSeq64) + dssMappingFixedLen
		if o.Checksum != nil {
			n += dssChecksumLen
		}
	}
	return n
}

func (o *DSS) validate() error {
	if o.DataAck != nil && !o.DataAck64 && *o.DataAck > math.MaxUint32 {
		return malformedf("%v: data ack %d does not fit in 4 octets", o.SubType(), *o.DataAck)
	}
	if o.Mapping != nil && !o.Mapping.DataSeq64 && o.Mapping.DataSeq > math.MaxUint32 {
		return malformedf("%v: data sequence %d does not fit in 4 octets", o.SubType(), o.Mapping.DataSeq)
	}
	if o.Checksum != nil && o.Mapping == nil {
		return malformedf("%v: checksum without mapping", o.SubType())
	}
	return nil
}

func (o *DSS) flags() uint8 {
	var f uint8
	if o.DataAck != nil {
		f |= dssFlagDataAck
		if o.DataAck64 {
			f |= dssFlagDataAck64
		}
	}
	if m := o.Mapping; m != nil {
		f |= dssFlagMapping
		if m.DataSeq64 {
			f |= dssFlagDataSeq64
		}
		if m.DataFin {
			f |= dssFlagDataFin
		}
	}
	return f
}

func (o *DSS) marshalTo(b []byte) {
	putHeader(b, SubTypeDSS, 0)
	b[3] = o.flags()
	off := dssBaseLen
	if o.DataAck != nil {
		off += putSeq(b[off:], *o.DataAck, o.DataAck64)
	}
	if m := o.Mapping; m != nil {
		off += putSeq(b[off:], m.DataSeq, m.DataSeq64)
		binary.BigEndian.PutUint32(b[off:], m.SubflowSeq)
		binary.BigEndian.PutUint16(b[off+4:], m.Length)
		off += dssMappingFixedLen
		if o.Checksum != nil {
			binary.BigEndian.PutUint16(b[off:], *o.Checksum)
		}
	}
}

func (o *DSS) unmarshal(b []byte) error {
	if len(b) < dssBaseLen {
		return malformedf("%v: unexpected length %d", SubTypeDSS, len(b))
	}
	*o = DSS{}
	f := b[3]
	want := dssBaseLen
	if f&dssFlagDataAck != 0 {
		want += seqLen(f&dssFlagDataAck64 != 0)
	}
	if f&dssFlagMapping != 0 {
		want += seqLen(f&dssFlagDataSeq64 != 0) + dssMappingFixedLen
	}
	hasChecksum := f&dssFlagMapping != 0 && len(b) == want+dssChecksumLen
	if len(b) != want && !hasChecksum {
		return malformedf("%v: length %d does not match flags 0x%02x", SubTypeDSS, len(b), f)
	}

	off := dssBaseLen
	if f&dssFlagDataAck != 0 {
		o.DataAck64 = f&dssFlagDataAck64 != 0
		v, n := getSeq(b[off:], o.DataAck64)
		o.DataAck = &v
		off += n
	}
	if f&dssFlagMapping != 0 {
		m := &Mapping{
			DataSeq64: f&dssFlagDataSeq64 != 0,
			DataFin:   f&dssFlagDataFin != 0,
		}
		v, n := getSeq(b[off:], m.DataSeq64)
		m.DataSeq = v
		off += n
		m.SubflowSeq = binary.BigEndian.Uint32(b[off:])
		m.Length = binary.BigEndian.Uint16(b[off+4:])
		off += dssMappingFixedLen
		o.Mapping = m
		if hasChecksum {
			c := binary.BigEndian.Uint16(b[off:])
			o.Checksum = &c
		}
	}
	return nil
}

func seqLen(is64 bool) int {
	if is64 {
		return 8
	}
	return 4
}

func putSeq(b []byte, v uint64, is64 bool) int {
	if is64 {
		binary.BigEndian.PutUint64(b, v)
		return 8
	}
	binary.BigEndian.PutUint32(b, uint32(v))
	return 4
}

func getSeq(b []byte, is64 bool) (uint64, int) {
	if is64 {
		return binary.BigEndian.Uint64(b), 8
	}
	return uint64(binary.BigEndian.Uint32(b)), 4
}
