package scheduler_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/aptpod/mptcp-go/scheduler"
	"github.com/aptpod/mptcp-go/subflow"
	"github.com/aptpod/mptcp-go/subflow/subflowmock"
)

type path struct {
	rtt      time.Duration
	rttvar   time.Duration
	cwnd     uint64
	inflight uint64
	backup   bool
	owd      time.Duration
}

func newSubflows(t *testing.T, paths ...path) []*subflow.Subflow {
	t.Helper()
	ctrl := gomock.NewController(t)
	r := subflow.NewRegistry()
	for i, p := range paths {
		tr := subflowmock.NewMockTransport(ctrl)
		tr.EXPECT().RTT().Return(p.rtt).AnyTimes()
		tr.EXPECT().RTTVar().Return(p.rttvar).AnyTimes()
		tr.EXPECT().CongestionWindow().Return(p.cwnd).AnyTimes()
		tr.EXPECT().BytesInFlight().Return(p.inflight).AnyTimes()

		s := subflow.New(
			netip.AddrPortFrom(netip.AddrFrom4([4]byte{192, 0, 2, byte(i + 1)}), 1000),
			netip.MustParseAddrPort("203.0.113.1:2000"),
			uint8(i), i == 0)
		s.SetTransport(tr)
		s.Backup = p.backup
		s.OWD = p.owd
		id := r.Add(s)
		s.SetState(subflow.StateEstablished)
		_, _, err := r.Sync(id)
		require.NoError(t, err)
	}
	return r.Established()
}

func ids(sels []Selection) []subflow.ID {
	res := make([]subflow.ID, 0, len(sels))
	for _, s := range sels {
		res = append(res, s.Subflow.ID())
	}
	return res
}

func TestCandidates(t *testing.T) {
	sfs := newSubflows(t,
		path{cwnd: 100},
		path{cwnd: 100, backup: true},
		path{cwnd: 100},
	)
	got := Candidates(sfs)
	require.Len(t, got, 2)
	assert.Equal(t, subflow.ID(0), got[0].ID())
	assert.Equal(t, subflow.ID(2), got[1].ID())

	backups := newSubflows(t, path{cwnd: 100, backup: true}, path{cwnd: 100, backup: true})
	assert.Len(t, Candidates(backups), 2)

	sfs[0].SetState(subflow.StateFinWait1)
	sfs[2].SetState(subflow.StateFinWait1)
	got = Candidates(sfs)
	require.Len(t, got, 1)
	assert.True(t, got[0].Backup)
}

func TestRoundRobin_Select(t *testing.T) {
	sfs := newSubflows(t,
		path{cwnd: 60},
		path{cwnd: 60, inflight: 60},
		path{cwnd: 60, inflight: 20},
	)
	rr := NewRoundRobin()

	var sels []Selection
	for i := 0; i < 4; i++ {
		sel, ok := rr.Select(100, 1000, sfs)
		require.True(t, ok)
		sels = append(sels, sel)
	}
	assert.Equal(t, []subflow.ID{0, 2, 0, 2}, ids(sels))
	assert.Equal(t, uint64(60), sels[0].Size)
	assert.Equal(t, uint64(40), sels[1].Size)

	rr.Reset()
	sel, ok := rr.Select(10, 1000, sfs)
	require.True(t, ok)
	assert.Equal(t, subflow.ID(0), sel.Subflow.ID())
	assert.Equal(t, uint64(10), sel.Size)
}

func TestRoundRobin_Select_NothingToSend(t *testing.T) {
	sfs := newSubflows(t, path{cwnd: 60, inflight: 60})
	tests := []struct {
		name    string
		pending uint64
		window  uint64
		sfs     []*subflow.Subflow
	}{
		{name: "no pending", pending: 0, window: 100, sfs: sfs},
		{name: "no window", pending: 100, window: 0, sfs: sfs},
		{name: "no subflows", pending: 100, window: 100},
		{name: "all full", pending: 100, window: 100, sfs: sfs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := NewRoundRobin().Select(tt.pending, tt.window, tt.sfs)
			assert.False(t, ok)
		})
	}
}

func TestFastestRTT_Select(t *testing.T) {
	tests := []struct {
		name  string
		paths []path
		want  subflow.ID
	}{
		{
			name: "lowest rtt",
			paths: []path{
				{rtt: 50 * time.Millisecond, cwnd: 100},
				{rtt: 10 * time.Millisecond, cwnd: 100},
			},
			want: 1,
		},
		{
			name: "fastest is full",
			paths: []path{
				{rtt: 50 * time.Millisecond, cwnd: 100},
				{rtt: 10 * time.Millisecond, cwnd: 100, inflight: 100},
			},
			want: 0,
		},
		{
			name: "tie broken by rttvar",
			paths: []path{
				{rtt: 10 * time.Millisecond, rttvar: 5 * time.Millisecond, cwnd: 100},
				{rtt: 10 * time.Millisecond, rttvar: 1 * time.Millisecond, cwnd: 100},
			},
			want: 1,
		},
		{
			name: "full tie keeps registration order",
			paths: []path{
				{rtt: 10 * time.Millisecond, cwnd: 100},
				{rtt: 10 * time.Millisecond, cwnd: 100},
			},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, ok := NewFastestRTT().Select(1000, 1000, newSubflows(t, tt.paths...))
			require.True(t, ok)
			assert.Equal(t, tt.want, sel.Subflow.ID())
		})
	}
}

func TestFastestRTT_Stats(t *testing.T) {
	sfs := newSubflows(t,
		path{rtt: 50 * time.Millisecond, cwnd: 100},
		path{rtt: 10 * time.Millisecond, cwnd: 100},
	)
	f := NewFastestRTT()
	for i := 0; i < 3; i++ {
		_, ok := f.Select(10, 100, sfs)
		require.True(t, ok)
	}
	_, ok := f.Select(10, 100, sfs[:1])
	require.True(t, ok)

	stats := f.Stats()
	assert.Equal(t, uint64(4), stats.TotalSelections)
	assert.Equal(t, uint64(1), stats.SwitchCount)
	assert.Equal(t, map[subflow.ID]uint64{0: 1, 1: 3}, stats.SelectionCounts)

	f.Reset()
	_, ok = f.Select(10, 100, sfs)
	require.True(t, ok)
	assert.Equal(t, uint64(1), f.Stats().SwitchCount)
}

func TestOWD_Select(t *testing.T) {
	tests := []struct {
		name  string
		paths []path
		want  subflow.ID
	}{
		{
			name: "measured delay wins",
			paths: []path{
				{rtt: 10 * time.Millisecond, owd: 30 * time.Millisecond, cwnd: 100},
				{rtt: 80 * time.Millisecond, owd: 5 * time.Millisecond, cwnd: 100},
			},
			want: 1,
		},
		{
			name: "unmeasured uses half rtt",
			paths: []path{
				{rtt: 80 * time.Millisecond, cwnd: 100},
				{rtt: 100 * time.Millisecond, owd: 30 * time.Millisecond, cwnd: 100},
			},
			want: 1,
		},
		{
			name: "full subflow skipped",
			paths: []path{
				{owd: 30 * time.Millisecond, cwnd: 100},
				{owd: 5 * time.Millisecond, cwnd: 100, inflight: 100},
			},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, ok := NewOWD().Select(1000, 1000, newSubflows(t, tt.paths...))
			require.True(t, ok)
			assert.Equal(t, tt.want, sel.Subflow.ID())
		})
	}
}

func TestECF_Select(t *testing.T) {
	fastFull := path{rtt: 10 * time.Millisecond, rttvar: time.Millisecond, cwnd: 10000, inflight: 10000}
	slow := path{rtt: 100 * time.Millisecond, rttvar: time.Millisecond, cwnd: 10000}

	t.Run("fastest available", func(t *testing.T) {
		sfs := newSubflows(t, slow, path{rtt: 10 * time.Millisecond, cwnd: 10000})
		sel, ok := NewECF().Select(1000, 5000, sfs)
		require.True(t, ok)
		assert.Equal(t, subflow.ID(1), sel.Subflow.ID())
		assert.Equal(t, uint64(1000), sel.Size)
	})

	t.Run("falls back without waiting", func(t *testing.T) {
		sfs := newSubflows(t, fastFull, slow)
		e := NewECF()
		sel, ok := e.Select(1000, 5000, sfs)
		require.True(t, ok)
		assert.Equal(t, subflow.ID(1), sel.Subflow.ID())
		_, waiting := e.Waiting()
		assert.False(t, waiting)
	})

	t.Run("waits for fastest", func(t *testing.T) {
		sfs := newSubflows(t, fastFull, slow)
		e := NewECF(WithECFWaiting(true))
		_, ok := e.Select(1000, 5000, sfs)
		assert.False(t, ok)
		id, waiting := e.Waiting()
		assert.True(t, waiting)
		assert.Equal(t, subflow.ID(0), id)

		e.Reset()
		_, waiting = e.Waiting()
		assert.False(t, waiting)
	})

	t.Run("similar paths do not wait", func(t *testing.T) {
		similar := path{rtt: 90 * time.Millisecond, rttvar: time.Millisecond, cwnd: 10000, inflight: 10000}
		sfs := newSubflows(t, similar, slow)
		sel, ok := NewECF(WithECFWaiting(true)).Select(1000, 5000, sfs)
		require.True(t, ok)
		assert.Equal(t, subflow.ID(1), sel.Subflow.ID())
	})

	t.Run("nothing available", func(t *testing.T) {
		sfs := newSubflows(t, fastFull)
		_, ok := NewECF().Select(1000, 5000, sfs)
		assert.False(t, ok)
	})
}
