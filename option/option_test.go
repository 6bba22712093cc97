package option_test

import (
	"net/netip"
	"testing"

	"github.com/AlekSi/pointer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aptpod/mptcp-go/errors"
	. "github.com/aptpod/mptcp-go/option"
)

func TestRoundTrip(t *testing.T) {
	hmac := [HMACSize]byte{}
	for i := range hmac {
		hmac[i] = byte(i + 1)
	}
	tests := []struct {
		name    string
		in      Option
		wantLen int
	}{
		{name: "capable sender key", in: &Capable{Flags: CapableFlagHMACSHA1, SenderKey: 0x0102030405060708}, wantLen: 12},
		{name: "capable both keys", in: &Capable{Flags: CapableFlagChecksum | CapableFlagHMACSHA1, SenderKey: 1, PeerKey: pointer.ToUint64(2)}, wantLen: 20},
		{name: "join syn", in: &Join{Mode: JoinSyn, AddrID: 3, Token: 0xdeadbeef, Nonce: 42}, wantLen: 12},
		{name: "join syn backup", in: &Join{Mode: JoinSyn, Backup: true, AddrID: 1, Token: 7, Nonce: 9}, wantLen: 12},
		{name: "join synack", in: &Join{Mode: JoinSynAck, AddrID: 2, TruncatedHMAC: 0x1122334455667788, Nonce: 5}, wantLen: 16},
		{name: "join ack", in: &Join{Mode: JoinAck, HMAC: hmac}, wantLen: 24},
		{name: "dss empty", in: &DSS{}, wantLen: 4},
		{name: "dss ack32", in: &DSS{DataAck: pointer.ToUint64(1000)}, wantLen: 8},
		{name: "dss ack64", in: &DSS{DataAck: pointer.ToUint64(1 << 40), DataAck64: true}, wantLen: 12},
		{
			name:    "dss mapping only",
			in:      &DSS{Mapping: &Mapping{DataSeq: 1 << 33, DataSeq64: true, SubflowSeq: 1, Length: 100}},
			wantLen: 18,
		},
		{
			name:    "dss mapping32 with checksum",
			in:      &DSS{Mapping: &Mapping{DataSeq: 77, SubflowSeq: 3, Length: 10}, Checksum: pointer.ToUint16(0xabcd)},
			wantLen: 16,
		},
		{
			name: "dss both with fin",
			in: &DSS{
				DataAck: pointer.ToUint64(5), DataAck64: true,
				Mapping: &Mapping{DataSeq: 9, DataSeq64: true, SubflowSeq: 0, Length: 1, DataFin: true},
			},
			wantLen: 26,
		},
		{name: "dss infinite mapping", in: &DSS{Mapping: &Mapping{DataSeq: 1, DataSeq64: true}}, wantLen: 18},
		{name: "add addr v4", in: &AddAddr{AddrID: 1, Addr: netip.MustParseAddr("192.0.2.1")}, wantLen: 8},
		{name: "add addr v4 port", in: &AddAddr{AddrID: 2, Addr: netip.MustParseAddr("192.0.2.2"), Port: pointer.ToUint16(8080)}, wantLen: 10},
		{name: "add addr v6", in: &AddAddr{AddrID: 3, Addr: netip.MustParseAddr("2001:db8::1")}, wantLen: 20},
		{name: "add addr v6 port", in: &AddAddr{AddrID: 4, Addr: netip.MustParseAddr("2001:db8::2"), Port: pointer.ToUint16(443)}, wantLen: 22},
		{name: "remove addr one", in: &RemoveAddr{AddrIDs: []uint8{1}}, wantLen: 4},
		{name: "remove addr many", in: &RemoveAddr{AddrIDs: []uint8{1, 2, 250}}, wantLen: 6},
		{name: "prio", in: &Prio{Backup: true}, wantLen: 3},
		{name: "prio with addr id", in: &Prio{AddrID: pointer.ToUint8(4)}, wantLen: 4},
		{name: "fail", in: &Fail{DataSeq: 1<<63 + 1}, wantLen: 12},
		{name: "fastclose", in: &FastClose{PeerKey: 0xfeedfacecafebeef}, wantLen: 12},
		{name: "delta owd", in: &DeltaOWD{Timestamp: 123456}, wantLen: 12},
		{name: "delta owd measured", in: &DeltaOWD{Timestamp: 1, Measured: pointer.ToInt64(-250)}, wantLen: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Marshal(tt.in)
			require.NoError(t, err)
			assert.Len(t, b, tt.wantLen)
			assert.Equal(t, tt.in.Len(), len(b))
			assert.Equal(t, Kind, b[0])
			assert.Equal(t, byte(tt.wantLen), b[1])
			assert.Equal(t, byte(tt.in.SubType()), b[2]>>4)

			got, n, err := Unmarshal(b)
			require.NoError(t, err)
			assert.Equal(t, len(b), n)
			assert.Equal(t, tt.in, got)
		})
	}
}

func TestMarshal_Bytes(t *testing.T) {
	b, err := Marshal(&DSS{
		DataAck: pointer.ToUint64(0x01020304),
		Mapping: &Mapping{DataSeq: 0x0a0b0c0d, SubflowSeq: 0x11121314, Length: 0x2122, DataFin: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{
		30, 18, 0x20, 0x15,
		0x01, 0x02, 0x03, 0x04,
		0x0a, 0x0b, 0x0c, 0x0d,
		0x11, 0x12, 0x13, 0x14,
		0x21, 0x22,
	}, b)

	b, err = Marshal(&Capable{Flags: CapableFlagHMACSHA1, SenderKey: 0x0102030405060708})
	require.NoError(t, err)
	assert.Equal(t, []byte{30, 12, 0x00, 0x01, 1, 2, 3, 4, 5, 6, 7, 8}, b)

	b, err = Marshal(&AddAddr{AddrID: 9, Addr: netip.MustParseAddr("10.0.0.1"), Port: pointer.ToUint16(0x1f90)})
	require.NoError(t, err)
	assert.Equal(t, []byte{30, 10, 0x34, 9, 10, 0, 0, 1, 0x1f, 0x90}, b)
}

func TestMarshal_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   Option
	}{
		{name: "dss ack overflow", in: &DSS{DataAck: pointer.ToUint64(1 << 32)}},
		{name: "dss seq overflow", in: &DSS{Mapping: &Mapping{DataSeq: 1 << 32}}},
		{name: "dss checksum without mapping", in: &DSS{Checksum: pointer.ToUint16(1)}},
		{name: "join without mode", in: &Join{}},
		{name: "capable version", in: &Capable{Version: 16}},
		{name: "add addr invalid", in: &AddAddr{}},
		{name: "remove addr empty", in: &RemoveAddr{}},
		{name: "remove addr too many", in: &RemoveAddr{AddrIDs: make([]uint8, 253)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Marshal(tt.in)
			assert.ErrorIs(t, err, errors.ErrMalformedOption)
		})
	}
}

func TestUnmarshal_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{name: "empty", in: nil},
		{name: "kind only", in: []byte{30}},
		{name: "wrong kind", in: []byte{2, 4, 0x05, 0xb4}},
		{name: "length too small", in: []byte{30, 2, 0x00}},
		{name: "truncated", in: []byte{30, 12, 0x00, 0x01, 1, 2, 3}},
		{name: "unknown subtype", in: []byte{30, 4, 0xf0, 0}},
		{name: "capable bad length", in: []byte{30, 8, 0x00, 0x01, 1, 2, 3, 4}},
		{name: "join bad length", in: []byte{30, 10, 0x10, 1, 0, 0, 0, 0, 0, 0}},
		{name: "dss length mismatch", in: []byte{30, 6, 0x20, 0x01, 0, 0}},
		{name: "dss too short", in: []byte{30, 3, 0x20}},
		{name: "add addr unknown version", in: []byte{30, 8, 0x35, 1, 10, 0, 0, 1}},
		{name: "add addr v6 truncated length", in: []byte{30, 8, 0x36, 1, 10, 0, 0, 1}},
		{name: "remove addr empty", in: []byte{30, 3, 0x40}},
		{name: "fastclose short", in: []byte{30, 4, 0x70, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, _, err := Unmarshal(tt.in)
				assert.ErrorIs(t, err, errors.ErrMalformedOption)
			})
		})
	}
}

func TestUnmarshalAll(t *testing.T) {
	opts := []Option{
		&DSS{DataAck: pointer.ToUint64(10), DataAck64: true},
		&Prio{Backup: true},
		&AddAddr{AddrID: 2, Addr: netip.MustParseAddr("198.51.100.7")},
	}
	b, err := MarshalAll(opts)
	require.NoError(t, err)

	got, err := UnmarshalAll(b)
	require.NoError(t, err)
	assert.Equal(t, opts, got)

	_, err = UnmarshalAll(append(b, 30))
	assert.ErrorIs(t, err, errors.ErrMalformedOption)

	got, err = UnmarshalAll(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMapping_Infinite(t *testing.T) {
	assert.True(t, (&Mapping{DataSeq: 1}).Infinite())
	assert.False(t, (&Mapping{DataSeq: 1, DataFin: true}).Infinite())
	assert.False(t, (&Mapping{DataSeq: 1, Length: 3}).Infinite())
}

func TestSubType_String(t *testing.T) {
	assert.Equal(t, "DSS", SubTypeDSS.String())
	assert.Equal(t, "MP_FASTCLOSE", SubTypeFastClose.String())
	assert.Equal(t, "UnknownSubType(14)", SubType(14).String())
}
