/*
Package option は、MPTCPの制御オプション (TCPオプション種別30) のエンコードとデコードを提供します。

全てのオプションは次の共通ヘッダから始まります。

	 0                   1                   2                   3
	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	+---------------+---------------+-------+-----------------------+
	|     Kind      |    Length     |Subtype|  subtype specific ... |
	+---------------+---------------+-------+-----------------------+

Length はKindとLengthを含むオプション全体のバイト数です。
*/
package option

import (
	"fmt"

	"github.com/aptpod/mptcp-go/errors"
)

// KindはMPTCPオプションのTCPオプション種別です。
const Kind byte = 30

// SubTypeは、MPTCPオプションのサブタイプです。
type SubType uint8

const (
	SubTypeCapable    SubType = 0x0
	SubTypeJoin       SubType = 0x1
	SubTypeDSS        SubType = 0x2
	SubTypeAddAddr    SubType = 0x3
	SubTypeRemoveAddr SubType = 0x4
	SubTypePrio       SubType = 0x5
	SubTypeFail       SubType = 0x6
	SubTypeFastClose  SubType = 0x7
	// SubTypeDeltaOWD は片方向遅延の計測に使う実験的なサブタイプです。
	SubTypeDeltaOWD SubType = 0xd
)

func (s SubType) String() string {
	switch s {
	case SubTypeCapable:
		return "MP_CAPABLE"
	case SubTypeJoin:
		return "MP_JOIN"
	case SubTypeDSS:
		return "DSS"
	case SubTypeAddAddr:
		return "ADD_ADDR"
	case SubTypeRemoveAddr:
		return "REMOVE_ADDR"
	case SubTypePrio:
		return "MP_PRIO"
	case SubTypeFail:
		return "MP_FAIL"
	case SubTypeFastClose:
		return "MP_FASTCLOSE"
	case SubTypeDeltaOWD:
		return "DELTA_OWD"
	default:
		return fmt.Sprintf("UnknownSubType(%d)", uint8(s))
	}
}

const (
	headerLen    = 3
	maxOptionLen = 255
)

// Optionは、MPTCPオプションを表すインターフェースです。
type Option interface {
	// SubTypeはオプションのサブタイプを返します。
	SubType() SubType
	// Lenはシリアライズ後のバイト数を返します。
	Len() int

	validate() error
	// marshalToは、Len()バイトのbへオプション全体を書き込みます。
	marshalTo(b []byte)
	// unmarshalは、オプション全体 (KindとLengthを含む) を読み込みます。
	unmarshal(b []byte) error
}

// Marshalは、オプションをワイヤフォーマットへエンコードします。
func Marshal(o Option) ([]byte, error) {
	return Append(nil, o)
}

// Appendは、dstの末尾にエンコードしたオプションを追加します。
func Append(dst []byte, o Option) ([]byte, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	n := o.Len()
	if n > maxOptionLen {
		return nil, malformedf("%v: length %d exceeds %d", o.SubType(), n, maxOptionLen)
	}
	off := len(dst)
	dst = append(dst, make([]byte, n)...)
	o.marshalTo(dst[off : off+n])
	return dst, nil
}

// MarshalAllは、複数のオプションを連結してエンコードします。
func MarshalAll(opts []Option) ([]byte, error) {
	var res []byte
	for _, o := range opts {
		var err error
		res, err = Append(res, o)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Unmarshalは、bの先頭にあるオプションを1つデコードし、消費したバイト数と共に返します。
//
// Kindが30でない場合、長さが矛盾している場合、bが途中で切れている場合は
// errors.ErrMalformedOption を返します。
func Unmarshal(b []byte) (Option, int, error) {
	if len(b) < 2 {
		return nil, 0, malformedf("option header truncated: %d bytes", len(b))
	}
	if b[0] != Kind {
		return nil, 0, malformedf("unexpected option kind %d", b[0])
	}
	length := int(b[1])
	if length < headerLen {
		return nil, 0, malformedf("invalid option length %d", length)
	}
	if length > len(b) {
		return nil, 0, malformedf("option truncated: length %d, have %d", length, len(b))
	}
	o, err := newOption(SubType(b[2] >> 4))
	if err != nil {
		return nil, 0, err
	}
	if err := o.unmarshal(b[:length]); err != nil {
		return nil, 0, err
	}
	return o, length, nil
}

// UnmarshalAllは、連結されたオプション列を全てデコードします。
func UnmarshalAll(b []byte) ([]Option, error) {
	var res []Option
	for len(b) > 0 {
		o, n, err := Unmarshal(b)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
		b = b[n:]
	}
	return res, nil
}

func newOption(s SubType) (Option, error) {
	switch s {
	case SubTypeCapable:
		return &Capable{}, nil
	case SubTypeJoin:
		return &Join{}, nil
	case SubTypeDSS:
		return &DSS{}, nil
	case SubTypeAddAddr:
		return &AddAddr{}, nil
	case SubTypeRemoveAddr:
		return &RemoveAddr{}, nil
	case SubTypePrio:
		return &Prio{}, nil
	case SubTypeFail:
		return &Fail{}, nil
	case SubTypeFastClose:
		return &FastClose{}, nil
	case SubTypeDeltaOWD:
		return &DeltaOWD{}, nil
	default:
		return nil, malformedf("unknown subtype %d", uint8(s))
	}
}

func putHeader(b []byte, s SubType, low uint8) {
	b[0] = Kind
	b[1] = byte(len(b))
	b[2] = byte(s)<<4 | low&0x0f
}

func checkLen(s SubType, b []byte, want ...int) error {
	for _, w := range want {
		if len(b) == w {
			return nil
		}
	}
	return malformedf("%v: unexpected length %d", s, len(b))
}

func malformedf(format string, a ...any) error {
	return errors.Errorf("%s: %w", fmt.Sprintf(format, a...), errors.ErrMalformedOption)
}
