package retry

import "testing"

var NextSleep = nextSleep

// FixJitterは、テストの間ジッターを固定します。
func FixJitter(t *testing.T, f float64) {
	t.Helper()
	org := randFloat64
	randFloat64 = func() float64 { return f }
	t.Cleanup(func() { randFloat64 = org })
}
