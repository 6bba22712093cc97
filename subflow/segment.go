package subflow

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/option"
)

// Flagsは、セグメントの制御フラグです。
type Flags uint8

const (
	FlagSyn Flags = 1 << iota
	FlagAck
	FlagFin
	FlagRst
)

func (f Flags) String() string {
	var res []string
	for _, v := range []struct {
		f    Flags
		name string
	}{{FlagSyn, "SYN"}, {FlagAck, "ACK"}, {FlagFin, "FIN"}, {FlagRst, "RST"}} {
		if f&v.f != 0 {
			res = append(res, v.name)
		}
	}
	return strings.Join(res, "|")
}

// segmentHeaderLenは、seq(4) ack(4) window(4) flags(1) optlen(2) の長さです。
const segmentHeaderLen = 15

// Segmentは、サブフロー上で送受信される単位です。
type Segment struct {
	// Seqは、ペイロードの先頭バイトの相対シーケンス番号です。
	Seq uint32
	// Ackは、サブフローレベルの累積確認応答です。
	Ack uint32
	// Windowは、送信者のコネクションレベルの受信ウィンドウです。
	Window uint32
	Flags  Flags
	// Optionsは、MPTCPオプションです。
	Options []option.Option
	Payload []byte
}

func (s *Segment) String() string {
	subtypes := make([]string, 0, len(s.Options))
	for _, o := range s.Options {
		subtypes = append(subtypes, o.SubType().String())
	}
	return fmt.Sprintf("Segment{seq=%d ack=%d win=%d flags=%v opts=[%s] len=%d}",
		s.Seq, s.Ack, s.Window, s.Flags, strings.Join(subtypes, ","), len(s.Payload))
}

// MarshalBinaryは、セグメントをバイト列へエンコードします。
func (s *Segment) MarshalBinary() ([]byte, error) {
	opts, err := option.MarshalAll(s.Options)
	if err != nil {
		return nil, err
	}
	if len(opts) > math.MaxUint16 {
		return nil, errors.Errorf("options too long: %d: %w", len(opts), errors.ErrMalformedOption)
	}
	b := make([]byte, segmentHeaderLen, segmentHeaderLen+len(opts)+len(s.Payload))
	binary.BigEndian.PutUint32(b[0:4], s.Seq)
	binary.BigEndian.PutUint32(b[4:8], s.Ack)
	binary.BigEndian.PutUint32(b[8:12], s.Window)
	b[12] = byte(s.Flags)
	binary.BigEndian.PutUint16(b[13:15], uint16(len(opts)))
	b = append(b, opts...)
	b = append(b, s.Payload...)
	return b, nil
}

// UnmarshalBinaryは、バイト列からセグメントをデコードします。
func (s *Segment) UnmarshalBinary(b []byte) error {
	if len(b) < segmentHeaderLen {
		return errors.Errorf("segment header truncated: %d bytes: %w", len(b), errors.ErrMalformedOption)
	}
	optLen := int(binary.BigEndian.Uint16(b[13:15]))
	if len(b) < segmentHeaderLen+optLen {
		return errors.Errorf("segment options truncated: %w", errors.ErrMalformedOption)
	}
	opts, err := option.UnmarshalAll(b[segmentHeaderLen : segmentHeaderLen+optLen])
	if err != nil {
		return err
	}
	*s = Segment{
		Seq:     binary.BigEndian.Uint32(b[0:4]),
		Ack:     binary.BigEndian.Uint32(b[4:8]),
		Window:  binary.BigEndian.Uint32(b[8:12]),
		Flags:   Flags(b[12]),
		Options: opts,
	}
	if payload := b[segmentHeaderLen+optLen:]; len(payload) > 0 {
		s.Payload = append([]byte(nil), payload...)
	}
	return nil
}

// FindOptionは、指定した型の最初のオプションを返します。
func FindOption[T option.Option](seg *Segment) (T, bool) {
	for _, o := range seg.Options {
		if v, ok := o.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}
