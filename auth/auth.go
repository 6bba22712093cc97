// Package auth は、コネクションキーからのトークンと初期データシーケンス番号の導出、
// およびMP_JOINの認証コードの計算を提供します。
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"io"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/option"
)

// HMACSizeは、完全な認証コードのバイト数です。
const HMACSize = option.HMACSize

// GenerateKeyは、rから64ビットのキーを生成します。rがnilの場合は crypto/rand.Reader を使用します。
func GenerateKey(r io.Reader) (uint64, error) {
	var b [8]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, errors.Errorf("generate key: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// GenerateNonceは、MP_JOINで使用する32ビットのノンスを生成します。
func GenerateNonce(r io.Reader) (uint32, error) {
	var b [4]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, errors.Errorf("generate nonce: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readFull(r io.Reader, b []byte) error {
	if r == nil {
		r = rand.Reader
	}
	_, err := io.ReadFull(r, b)
	return err
}

func digest(key uint64) [sha1.Size]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], key)
	return sha1.Sum(b[:])
}

// Tokenは、キーのSHA-1ハッシュの上位32ビットを返します。
func Token(key uint64) uint32 {
	d := digest(key)
	return binary.BigEndian.Uint32(d[:4])
}

// IDSNは、キーのSHA-1ハッシュの下位64ビットを初期データシーケンス番号として返します。
//
// 最初のデータバイトのデータシーケンス番号は IDSN+1 です。
func IDSN(key uint64) uint64 {
	d := digest(key)
	return binary.BigEndian.Uint64(d[sha1.Size-8:])
}

// ComputeHMACは、送信者の視点でMP_JOINの認証コードを計算します。
//
// 鍵は localKey||peerKey、メッセージは localNonce||peerNonce です。
func ComputeHMAC(localKey, peerKey uint64, localNonce, peerNonce uint32) [HMACSize]byte {
	var k [16]byte
	binary.BigEndian.PutUint64(k[:8], localKey)
	binary.BigEndian.PutUint64(k[8:], peerKey)
	var msg [8]byte
	binary.BigEndian.PutUint32(msg[:4], localNonce)
	binary.BigEndian.PutUint32(msg[4:], peerNonce)

	m := hmac.New(sha1.New, k[:])
	m.Write(msg[:])
	var res [HMACSize]byte
	copy(res[:], m.Sum(nil))
	return res
}

// Truncateは、認証コードの先頭64ビットを返します。
func Truncate(mac [HMACSize]byte) uint64 {
	return binary.BigEndian.Uint64(mac[:8])
}

// VerifyTruncatedは、ピアから受信した切り詰められた認証コードを検証します。
func VerifyTruncated(got uint64, localKey, peerKey uint64, localNonce, peerNonce uint32) error {
	want := Truncate(ComputeHMAC(peerKey, localKey, peerNonce, localNonce))
	var a, b [8]byte
	binary.BigEndian.PutUint64(a[:], got)
	binary.BigEndian.PutUint64(b[:], want)
	if !hmac.Equal(a[:], b[:]) {
		return errors.Errorf("truncated hmac mismatch: %w", errors.ErrAuthentication)
	}
	return nil
}

// VerifyFullは、ピアから受信した完全な認証コードを検証します。
func VerifyFull(got [HMACSize]byte, localKey, peerKey uint64, localNonce, peerNonce uint32) error {
	want := ComputeHMAC(peerKey, localKey, peerNonce, localNonce)
	if !hmac.Equal(got[:], want[:]) {
		return errors.Errorf("hmac mismatch: %w", errors.ErrAuthentication)
	}
	return nil
}
