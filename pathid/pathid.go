// Package pathid は、アドレスIDとネットワークアドレスの対応表を管理します。
//
// コネクションはローカル用とリモート用の2つの Manager を保持します。
// Manager はコネクションのイベントループからのみ操作されるため、排他制御を行いません。
package pathid

import (
	"net/netip"
	"slices"

	"github.com/aptpod/mptcp-go/errors"
)

// Entryは、アドレス表の1エントリです。
type Entry struct {
	ID   uint8
	Addr netip.AddrPort
}

// Managerは、アドレスIDの表です。IDは表の中で一意です。
type Manager struct {
	entries map[uint8]netip.AddrPort
}

func NewManager() *Manager {
	return &Manager{entries: make(map[uint8]netip.AddrPort)}
}

// Addは、アドレスを登録します。IDが登録済みの場合は errors.ErrDuplicateAddressID を返します。
func (m *Manager) Add(id uint8, addr netip.AddrPort) error {
	if cur, ok := m.entries[id]; ok {
		return errors.Errorf("address id %d already bound to %v: %w", id, cur, errors.ErrDuplicateAddressID)
	}
	m.entries[id] = addr
	return nil
}

// Setは、アドレスを登録または更新します。
func (m *Manager) Set(id uint8, addr netip.AddrPort) {
	m.entries[id] = addr
}

// Allocateは、未使用の最小のIDでアドレスを登録します。
// 同じアドレスが登録済みの場合は、そのIDを返します。
func (m *Manager) Allocate(addr netip.AddrPort) (uint8, error) {
	if id, ok := m.Lookup(addr); ok {
		return id, nil
	}
	for i := 0; i <= 0xff; i++ {
		id := uint8(i)
		if _, ok := m.entries[id]; !ok {
			m.entries[id] = addr
			return id, nil
		}
	}
	return 0, errors.Errorf("address table full: %w", errors.ErrDuplicateAddressID)
}

// Removeは、IDを取り下げます。未登録の場合は errors.ErrUnknownAddressID を返します。
func (m *Manager) Remove(id uint8) (netip.AddrPort, error) {
	addr, ok := m.entries[id]
	if !ok {
		return netip.AddrPort{}, errors.Errorf("remove address id %d: %w", id, errors.ErrUnknownAddressID)
	}
	delete(m.entries, id)
	return addr, nil
}

// Getは、IDに対応するアドレスを返します。未登録の場合は errors.ErrUnknownAddressID を返します。
func (m *Manager) Get(id uint8) (netip.AddrPort, error) {
	addr, ok := m.entries[id]
	if !ok {
		return netip.AddrPort{}, errors.Errorf("address id %d: %w", id, errors.ErrUnknownAddressID)
	}
	return addr, nil
}

// Lookupは、アドレスに対応するIDを返します。
func (m *Manager) Lookup(addr netip.AddrPort) (uint8, bool) {
	for id, a := range m.entries {
		if a == addr {
			return id, true
		}
	}
	return 0, false
}

// Listは、ID順に並べた全エントリを返します。
func (m *Manager) List() []Entry {
	res := make([]Entry, 0, len(m.entries))
	for id, addr := range m.entries {
		res = append(res, Entry{ID: id, Addr: addr})
	}
	slices.SortFunc(res, func(a, b Entry) int { return int(a.ID) - int(b.ID) })
	return res
}

func (m *Manager) Len() int { return len(m.entries) }

// Clearは、全エントリを削除します。コネクションの破棄時に使用します。
func (m *Manager) Clear() {
	clear(m.entries)
}
