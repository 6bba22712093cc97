//go:build !linux

package metrics

import "github.com/aptpod/mptcp-go/errors"

func readTCPInfo(uintptr) (tcpInfo, error) {
	return tcpInfo{}, errors.New("TCP_INFO is not supported on this platform")
}
