package ch

import "sync"

// Notifierは、状態変化を待機中の全てのゴルーチンへ一斉に通知します。
//
// Waitが返すチャネルはBroadcastのたびにクローズされ、新しいチャネルに置き換わります。
type Notifier struct {
	mu sync.Mutex
	c  chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{c: make(chan struct{})}
}

// Waitは、次のBroadcastでクローズされるチャネルを返します。
func (n *Notifier) Wait() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.c
}

// Broadcastは、待機中の全てのゴルーチンを起こします。
func (n *Notifier) Broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	close(n.c)
	n.c = make(chan struct{})
}
