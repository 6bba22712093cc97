package option

import (
	"encoding/binary"
	"net/netip"
)

const (
	addAddrV4Len = 8
	addAddrV6Len = 20
	portLen      = 2

	ipVersion4 uint8 = 4
	ipVersion6 uint8 = 6
)

// AddAddrは、ADD_ADDRオプションです。送信者が利用可能なアドレスを通知します。
type AddAddr struct {
	AddrID uint8
	// Addrは、IPv4またはIPv6のアドレスです。IPv4射影アドレスはIPv6として送信されます。
	Addr netip.Addr
	// Portは省略可能です。
	Port *uint16
}

func (o *AddAddr) SubType() SubType { return SubTypeAddAddr }

func (o *AddAddr) Len() int {
	n := addAddrV4Len
	if !o.Addr.Is4() {
		n = addAddrV6Len
	}
	if o.Port != nil {
		n += portLen
	}
	return n
}

func (o *AddAddr) validate() error {
	if !o.Addr.IsValid() {
		return malformedf("%v: invalid address", o.SubType())
	}
	if o.Addr.Zone() != "" {
		return malformedf("%v: zoned address %v", o.SubType(), o.Addr)
	}
	return nil
}

func (o *AddAddr) marshalTo(b []byte) {
	off := 4
	if o.Addr.Is4() {
		putHeader(b, SubTypeAddAddr, ipVersion4)
		a := o.Addr.As4()
		off += copy(b[off:], a[:])
	} else {
		putHeader(b, SubTypeAddAddr, ipVersion6)
		a := o.Addr.As16()
		off += copy(b[off:], a[:])
	}
	b[3] = o.AddrID
	if o.Port != nil {
		binary.BigEndian.PutUint16(b[off:], *o.Port)
	}
}

func (o *AddAddr) unmarshal(b []byte) error {
	*o = AddAddr{}
	var addrLen int
	switch ver := b[2] & 0x0f; ver {
	case ipVersion4:
		if err := checkLen(SubTypeAddAddr, b, addAddrV4Len, addAddrV4Len+portLen); err != nil {
			return err
		}
		o.Addr = netip.AddrFrom4([4]byte(b[4:8]))
		addrLen = 4
	case ipVersion6:
		if err := checkLen(SubTypeAddAddr, b, addAddrV6Len, addAddrV6Len+portLen); err != nil {
			return err
		}
		o.Addr = netip.AddrFrom16([16]byte(b[4:20]))
		addrLen = 16
	default:
		return malformedf("%v: unknown ip version %d", SubTypeAddAddr, ver)
	}
	o.AddrID = b[3]
	if off := 4 + addrLen; len(b) == off+portLen {
		p := binary.BigEndian.Uint16(b[off:])
		o.Port = &p
	}
	return nil
}

// AddrPortは、ポートが省略されている場合は0をポートとして返します。
func (o *AddAddr) AddrPort() netip.AddrPort {
	var port uint16
	if o.Port != nil {
		port = *o.Port
	}
	return netip.AddrPortFrom(o.Addr, port)
}

// RemoveAddrは、REMOVE_ADDRオプションです。アドレスIDの一覧を取り下げます。
type RemoveAddr struct {
	AddrIDs []uint8
}

func (o *RemoveAddr) SubType() SubType { return SubTypeRemoveAddr }

func (o *RemoveAddr) Len() int { return headerLen + len(o.AddrIDs) }

func (o *RemoveAddr) validate() error {
	if len(o.AddrIDs) == 0 {
		return malformedf("%v: no address id", o.SubType())
	}
	return nil
}

func (o *RemoveAddr) marshalTo(b []byte) {
	putHeader(b, SubTypeRemoveAddr, 0)
	copy(b[headerLen:], o.AddrIDs)
}

func (o *RemoveAddr) unmarshal(b []byte) error {
	if len(b) <= headerLen {
		return malformedf("%v: no address id", SubTypeRemoveAddr)
	}
	o.AddrIDs = append([]uint8(nil), b[headerLen:]...)
	return nil
}
