package metrics

import "time"

var _ ManagedProvider = (*nopProvider)(nil)

// nopProvider は、常にデフォルト値を返す ManagedProvider です。
type nopProvider struct{}

// NewNopは、常にデフォルト値を返すProviderを生成します。
func NewNop() ManagedProvider {
	return &nopProvider{}
}

func (n *nopProvider) RTT() time.Duration { return DefaultRTT }
func (n *nopProvider) RTTVar() time.Duration { return DefaultRTTVar }
func (n *nopProvider) CongestionWindow() uint64 { return DefaultCWND }
func (n *nopProvider) BytesInFlight() uint64 { return 0 }
func (n *nopProvider) Start() error { return nil }
func (n *nopProvider) Stop() {}
