package option

import "encoding/binary"

// JoinModeは、MP_JOINの3つの段階を表します。
type JoinMode uint8

const (
	// JoinSynは、SYNで送る参加要求です。ピアのトークンとノンスを運びます。
	JoinSyn JoinMode = iota + 1
	// JoinSynAckは、SYN-ACKで返す応答です。切り詰めたHMACとノンスを運びます。
	JoinSynAck
	// JoinAckは、3番目のACKで送る完全なHMACです。
	JoinAck
)

func (m JoinMode) String() string {
	switch m {
	case JoinSyn:
		return "Syn"
	case JoinSynAck:
		return "SynAck"
	case JoinAck:
		return "Ack"
	default:
		return "Unknown"
	}
}

const (
	joinSynLen    = 12
	joinSynAckLen = 16
	joinAckLen    = 24

	// HMACSizeは、JoinAckが運ぶHMAC-SHA1のバイト数です。
	HMACSize = 20

	joinFlagBackup uint8 = 0x01
)

// Joinは、MP_JOINオプションです。
//
// Modeによって使用されるフィールドが異なります。
//
//   - JoinSyn: Backup, AddrID, Token, Nonce
//   - JoinSynAck: Backup, AddrID, TruncatedHMAC, Nonce
//   - JoinAck: HMAC
type Join struct {
	Mode          JoinMode
	Backup        bool
	AddrID        uint8
	Token         uint32
	Nonce         uint32
	TruncatedHMAC uint64
	HMAC          [HMACSize]byte
}

func (o *Join) SubType() SubType { return SubTypeJoin }

func (o *Join) Len() int {
	switch o.Mode {
	case JoinSynAck:
		return joinSynAckLen
	case JoinAck:
		return joinAckLen
	default:
		return joinSynLen
	}
}

func (o *Join) validate() error {
	switch o.Mode {
	case JoinSyn, JoinSynAck, JoinAck:
		return nil
	default:
		return malformedf("%v: invalid mode %d", o.SubType(), o.Mode)
	}
}

func (o *Join) marshalTo(b []byte) {
	var flags uint8
	if o.Backup {
		flags |= joinFlagBackup
	}
	switch o.Mode {
	case JoinSyn:
		putHeader(b, SubTypeJoin, flags)
		b[3] = o.AddrID
		binary.BigEndian.PutUint32(b[4:8], o.Token)
		binary.BigEndian.PutUint32(b[8:12], o.Nonce)
	case JoinSynAck:
		putHeader(b, SubTypeJoin, flags)
		b[3] = o.AddrID
		binary.BigEndian.PutUint64(b[4:12], o.TruncatedHMAC)
		binary.BigEndian.PutUint32(b[12:16], o.Nonce)
	case JoinAck:
		putHeader(b, SubTypeJoin, 0)
		copy(b[4:24], o.HMAC[:])
	}
}

func (o *Join) unmarshal(b []byte) error {
	if err := checkLen(SubTypeJoin, b, joinSynLen, joinSynAckLen, joinAckLen); err != nil {
		return err
	}
	*o = Join{}
	switch len(b) {
	case joinSynLen:
		o.Mode = JoinSyn
		o.Backup = b[2]&joinFlagBackup != 0
		o.AddrID = b[3]
		o.Token = binary.BigEndian.Uint32(b[4:8])
		o.Nonce = binary.BigEndian.Uint32(b[8:12])
	case joinSynAckLen:
		o.Mode = JoinSynAck
		o.Backup = b[2]&joinFlagBackup != 0
		o.AddrID = b[3]
		o.TruncatedHMAC = binary.BigEndian.Uint64(b[4:12])
		o.Nonce = binary.BigEndian.Uint32(b[12:16])
	case joinAckLen:
		o.Mode = JoinAck
		copy(o.HMAC[:], b[4:24])
	}
	return nil
}
