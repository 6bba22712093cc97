package option

import "encoding/binary"

// MP_CAPABLEのフラグです。
const (
	// CapableFlagChecksumは、DSSチェックサムを要求するフラグ (A) です。
	CapableFlagChecksum uint8 = 0x80
	// CapableFlagHMACSHA1は、HMAC-SHA1を使用するフラグ (H) です。
	CapableFlagHMACSHA1 uint8 = 0x01
)

const (
	capableLen         = 12
	capableWithPeerLen = 20
)

// Capableは、MP_CAPABLEオプションです。
//
// 3ウェイハンドシェイクのSYN/SYN-ACKでは送信者のキーのみ、
// 直後のACKでは両者のキーを運びます。
type Capable struct {
	Version   uint8
	Flags     uint8
	SenderKey uint64
	// PeerKeyは、ピアのキーです。nilの場合は省略されます。
	PeerKey *uint64
}

func (o *Capable) SubType() SubType { return SubTypeCapable }

func (o *Capable) Len() int {
	if o.PeerKey != nil {
		return capableWithPeerLen
	}
	return capableLen
}

func (o *Capable) validate() error {
	if o.Version > 0x0f {
		return malformedf("%v: version %d does not fit in 4 bits", o.SubType(), o.Version)
	}
	return nil
}

func (o *Capable) marshalTo(b []byte) {
	putHeader(b, SubTypeCapable, o.Version)
	b[3] = o.Flags
	binary.BigEndian.PutUint64(b[4:12], o.SenderKey)
	if o.PeerKey != nil {
		binary.BigEndian.PutUint64(b[12:20], *o.PeerKey)
	}
}

func (o *Capable) unmarshal(b []byte) error {
	if err := checkLen(SubTypeCapable, b, capableLen, capableWithPeerLen); err != nil {
		return err
	}
	o.Version = b[2] & 0x0f
	o.Flags = b[3]
	o.SenderKey = binary.BigEndian.Uint64(b[4:12])
	if len(b) == capableWithPeerLen {
		k := binary.BigEndian.Uint64(b[12:20])
		o.PeerKey = &k
	}
	return nil
}

// ChecksumRequiredは、Aフラグが立っているかどうかを返します。
func (o *Capable) ChecksumRequired() bool {
	return o.Flags&CapableFlagChecksum != 0
}
