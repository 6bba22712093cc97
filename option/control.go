package option

import "encoding/binary"

const (
	prioLen           = 3
	prioWithAddrIDLen = 4
	prioFlagBackup    = 0x01

	failLen      = 12
	fastCloseLen = 12
)

// Prioは、MP_PRIOオプションです。サブフローのバックアップ優先度を変更します。
type Prio struct {
	Backup bool
	// AddrIDが省略された場合、オプションを受信したサブフロー自身が対象です。
	AddrID *uint8
}

func (o *Prio) SubType() SubType { return SubTypePrio }

func (o *Prio) Len() int {
	if o.AddrID != nil {
		return prioWithAddrIDLen
	}
	return prioLen
}

func (o *Prio) validate() error { return nil }

func (o *Prio) marshalTo(b []byte) {
	var flags uint8
	if o.Backup {
		flags |= prioFlagBackup
	}
	putHeader(b, SubTypePrio, flags)
	if o.AddrID != nil {
		b[3] = *o.AddrID
	}
}

func (o *Prio) unmarshal(b []byte) error {
	if err := checkLen(SubTypePrio, b, prioLen, prioWithAddrIDLen); err != nil {
		return err
	}
	*o = Prio{Backup: b[2]&prioFlagBackup != 0}
	if len(b) == prioWithAddrIDLen {
		id := b[3]
		o.AddrID = &id
	}
	return nil
}

// Failは、MP_FAILオプションです。チェックサムの不一致を検出したデータシーケンス番号を通知します。
type Fail struct {
	DataSeq uint64
}

func (o *Fail) SubType() SubType { return SubTypeFail }
func (o *Fail) Len() int         { return failLen }
func (o *Fail) validate() error  { return nil }

func (o *Fail) marshalTo(b []byte) {
	putHeader(b, SubTypeFail, 0)
	binary.BigEndian.PutUint64(b[4:12], o.DataSeq)
}

func (o *Fail) unmarshal(b []byte) error {
	if err := checkLen(SubTypeFail, b, failLen); err != nil {
		return err
	}
	o.DataSeq = binary.BigEndian.Uint64(b[4:12])
	return nil
}

// FastCloseは、MP_FASTCLOSEオプションです。
//
// 受信者のキーを運ぶことで、第三者による注入ではないことを証明します。
type FastClose struct {
	PeerKey uint64
}

func (o *FastClose) SubType() SubType { return SubTypeFastClose }
func (o *FastClose) Len() int         { return fastCloseLen }
func (o *FastClose) validate() error  { return nil }

func (o *FastClose) marshalTo(b []byte) {
	putHeader(b, SubTypeFastClose, 0)
	binary.BigEndian.PutUint64(b[4:12], o.PeerKey)
}

func (o *FastClose) unmarshal(b []byte) error {
	if err := checkLen(SubTypeFastClose, b, fastCloseLen); err != nil {
		return err
	}
	o.PeerKey = binary.BigEndian.Uint64(b[4:12])
	return nil
}
