package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrMPTCPは、mptcpライブラリで定義されている基底エラーです。
	ErrMPTCP = errors.New("mptcp")

	// ErrConnectionClosedは、クローズ済みのコネクションへ読み書きをした場合のエラーです。
	ErrConnectionClosed = fmt.Errorf("closed mptcp connection: %w", ErrMPTCP)
	// ErrConnectionResetは、ファストクローズや全サブフローの喪失によってコネクションがリセットされた場合のエラーです。
	ErrConnectionReset = fmt.Errorf("connection reset: %w", ErrConnectionClosed)

	// ErrMalformedOptionは、オプションのエンコードやデコードに失敗した時のエラーです。
	ErrMalformedOption = fmt.Errorf("malformed option: %w", ErrMPTCP)

	// ErrProtocolViolationは、ピアがプロトコルに違反した場合のエラーです。
	//
	// 違反したサブフローのみが切断され、コネクションは維持されます。
	ErrProtocolViolation = fmt.Errorf("protocol violation: %w", ErrMPTCP)
	// ErrMappingConflictは、既に確定したマッピングと矛盾するマッピングを受信した場合のエラーです。
	ErrMappingConflict = fmt.Errorf("mapping conflict: %w", ErrProtocolViolation)
	// ErrUnknownAddressIDは、未登録のアドレスIDが参照された場合のエラーです。
	ErrUnknownAddressID = fmt.Errorf("unknown address id: %w", ErrProtocolViolation)
	// ErrDuplicateAddressIDは、登録済みのアドレスIDを再登録しようとした場合のエラーです。
	ErrDuplicateAddressID = fmt.Errorf("duplicate address id: %w", ErrMPTCP)

	// ErrAuthenticationは、MP_JOINの認証コードが一致しない場合のエラーです。
	ErrAuthentication = fmt.Errorf("join authentication failed: %w", ErrMPTCP)
	// ErrUnknownTokenは、どのコネクションにも属さないトークンでMP_JOINを受信した場合のエラーです。
	ErrUnknownToken = fmt.Errorf("unknown token: %w", ErrAuthentication)

	// ErrWouldBlockは、送信可能なウィンドウがない場合に返されます。エラーではなく再試行を意味します。
	ErrWouldBlock = fmt.Errorf("would block: %w", ErrMPTCP)
	// ErrNotFullyEstablishedは、完全確立前にサブフローを追加しようとした場合のエラーです。
	ErrNotFullyEstablished = fmt.Errorf("connection is not fully established: %w", ErrMPTCP)
	// ErrSubflowNotFoundは、登録されていないサブフローを参照した場合のエラーです。
	ErrSubflowNotFound = fmt.Errorf("subflow not found: %w", ErrMPTCP)
)

// ProtocolViolationErrorは、特定のサブフロー上で検出されたプロトコル違反です。
type ProtocolViolationError struct {
	SubflowID uint32 // 違反を検出したサブフロー
	Reason    string // 理由
	Err       error  // 原因
}

func (e *ProtocolViolationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("subflow %d: %s: %v", e.SubflowID, e.Reason, e.Err)
	}
	return fmt.Sprintf("subflow %d: %s", e.SubflowID, e.Reason)
}

func (e *ProtocolViolationError) Is(err error) bool {
	return err == ErrProtocolViolation || err == ErrMPTCP
}

func (e *ProtocolViolationError) Unwrap() error {
	return e.Err
}

func AsProtocolViolationError(err error) (*ProtocolViolationError, bool) {
	var res *ProtocolViolationError
	ok := As(err, &res)
	return res, ok
}

func New(text string) error {
	return errors.New(text)
}

func Errorf(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Join(errs ...error) error {
	return errors.Join(errs...)
}
