//go:build linux

package metrics

import (
	"time"

	"golang.org/x/sys/unix"
)

func readTCPInfo(fd uintptr) (tcpInfo, error) {
	ti, err := unix.GetsockoptTCPInfo(int(fd), unix.IPPROTO_TCP, unix.TCP_INFO)
	if err != nil {
		return tcpInfo{}, err
	}
	return tcpInfo{
		rtt:    time.Duration(ti.Rtt) * time.Microsecond,
		rttvar: time.Duration(ti.Rttvar) * time.Microsecond,
		cwnd:   uint64(ti.Snd_cwnd) * uint64(ti.Snd_mss),
	}, nil
}
