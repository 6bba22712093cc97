package errors_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/aptpod/mptcp-go/errors"
)

func TestErrorHierarchy(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{name: "reset is closed", err: ErrConnectionReset, target: ErrConnectionClosed},
		{name: "mapping conflict is violation", err: ErrMappingConflict, target: ErrProtocolViolation},
		{name: "unknown address id is violation", err: ErrUnknownAddressID, target: ErrProtocolViolation},
		{name: "unknown token is auth failure", err: ErrUnknownToken, target: ErrAuthentication},
		{name: "would block is base", err: ErrWouldBlock, target: ErrMPTCP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.target)
		})
	}
	assert.NotErrorIs(t, ErrWouldBlock, ErrConnectionClosed)
}

func TestProtocolViolationError(t *testing.T) {
	var err error = &ProtocolViolationError{SubflowID: 3, Reason: "bad dss", Err: io.ErrUnexpectedEOF}
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "subflow 3: bad dss: unexpected EOF", err.Error())

	wrapped := Errorf("handle segment: %w", err)
	got, ok := AsProtocolViolationError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, uint32(3), got.SubflowID)

	_, ok = AsProtocolViolationError(ErrWouldBlock)
	assert.False(t, ok)
}
