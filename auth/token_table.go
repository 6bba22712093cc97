package auth

import (
	"io"
	"sync"

	"github.com/aptpod/mptcp-go/errors"
)

// 衝突しないトークンが得られるまでキーを再生成する上限回数です。
const maxKeyAttempts = 16

// TokenTableは、ローカルトークンからコネクションを引くための表です。
//
// 複数のサブフローから同時に参照されるため、ゴルーチンセーフです。
type TokenTable[T any] struct {
	mu      sync.RWMutex
	entries map[uint32]T
}

// NewTokenTableは、空のTokenTableを生成します。
func NewTokenTable[T any]() *TokenTable[T] {
	return &TokenTable[T]{entries: make(map[uint32]T)}
}

// Reserveは、既存のトークンと衝突しないキーを生成し、vを登録します。
func (t *TokenTable[T]) Reserve(r io.Reader, v T) (key uint64, token uint32, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < maxKeyAttempts; i++ {
		key, err = GenerateKey(r)
		if err != nil {
			return 0, 0, err
		}
		token = Token(key)
		if _, ok := t.entries[token]; ok {
			continue
		}
		t.entries[token] = v
		return key, token, nil
	}
	return 0, 0, errors.Errorf("no unique token after %d attempts: %w", maxKeyAttempts, errors.ErrMPTCP)
}

// Addは、キーから導出したトークンでvを登録します。トークンが衝突した場合はエラーを返します。
func (t *TokenTable[T]) Add(key uint64, v T) (uint32, error) {
	token := Token(key)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[token]; ok {
		return 0, errors.Errorf("token %08x already registered: %w", token, errors.ErrMPTCP)
	}
	t.entries[token] = v
	return token, nil
}

// Lookupは、トークンに対応する値を返します。見つからない場合は errors.ErrUnknownToken を返します。
func (t *TokenTable[T]) Lookup(token uint32) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[token]
	if !ok {
		var zero T
		return zero, errors.Errorf("token %08x: %w", token, errors.ErrUnknownToken)
	}
	return v, nil
}

func (t *TokenTable[T]) Remove(token uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, token)
}

func (t *TokenTable[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
