package mptcp

import (
	"context"
	"net/netip"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/option"
	"github.com/aptpod/mptcp-go/pathid"
)

// AdvertiseAddressは、ローカルのアドレスにIDを割り当て、ADD_ADDRでピアへ広告します。
func (c *Conn) AdvertiseAddress(ctx context.Context, id uint8, addr netip.AddrPort) error {
	var err error
	if xerr := c.exec(ctx, func() {
		if c.terminated {
			err = c.closedErr()
			return
		}
		if aerr := c.localAddrs.Add(id, addr); aerr != nil {
			err = aerr
			return
		}
		o := &option.AddAddr{AddrID: id, Addr: addr.Addr()}
		if port := addr.Port(); port != 0 {
			o.Port = &port
		}
		for _, s := range c.registry.Established() {
			if c.sendOn(s, nil, o) {
				c.logger.Infof(c.ctx, "Advertised address %d: %v", id, addr)
				return
			}
		}
		err = errors.Errorf("advertise address %d: %w", id, errors.ErrSubflowNotFound)
	}); xerr != nil {
		return xerr
	}
	return err
}

// WithdrawAddressは、ローカルのアドレスを取り消してREMOVE_ADDRで通知し、そのアドレスを使うサブフローを閉じます。
func (c *Conn) WithdrawAddress(ctx context.Context, ids ...uint8) error {
	var err error
	if xerr := c.exec(ctx, func() {
		if c.terminated {
			err = c.closedErr()
			return
		}
		for _, id := range ids {
			if _, gerr := c.localAddrs.Get(id); gerr != nil {
				err = gerr
				return
			}
		}
		var removed []netip.AddrPort
		for _, id := range ids {
			addr, _ := c.localAddrs.Remove(id)
			removed = append(removed, addr)
		}
		o := &option.RemoveAddr{AddrIDs: ids}
		for _, s := range c.registry.Established() {
			if c.sendOn(s, nil, o) {
				break
			}
		}
		for _, s := range c.registry.All() {
			for _, addr := range removed {
				if s.Local == addr {
					(&closingController{c: c}).CloseSubflow(s)
					break
				}
			}
		}
		c.logger.Infof(c.ctx, "Withdrew addresses %v", ids)
	}); xerr != nil {
		return xerr
	}
	return err
}

// LocalAddressesは、IDを割り当てたローカルのアドレスの一覧を返します。
func (c *Conn) LocalAddresses() []pathid.Entry {
	var res []pathid.Entry
	_ = c.exec(context.Background(), func() {
		res = c.localAddrs.List()
	})
	return res
}

// RemoteAddressesは、ピアが広告したアドレスの一覧を返します。
func (c *Conn) RemoteAddresses() []pathid.Entry {
	var res []pathid.Entry
	_ = c.exec(context.Background(), func() {
		res = c.remoteAddrs.List()
	})
	return res
}
