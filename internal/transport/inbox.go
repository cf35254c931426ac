package transport

import (
	"sync"

	"github.com/tilewars/engine/internal/queue"
)

// inbox collects raw chunks from a background reader (or a pipe peer) and
// turns them into packets on the receiving goroutine.
type inbox struct {
	terminal
	chunks *queue.Queue[[]byte]
	stream Stream
}

// terminal latches the first error that ends a connection or listener.
type terminal struct {
	mu  sync.Mutex
	err error
}

func newInbox() *inbox {
	return &inbox{chunks: queue.New[[]byte]()}
}

func (b *inbox) deliver(chunk []byte) {
	b.chunks.Push(chunk)
}

func (t *terminal) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

func (t *terminal) failure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// admit queues a freshly accepted endpoint. A listener closed while the
// endpoint was being accepted may already have drained the queue, so
// anything queued after the failure is closed here instead.
func admit(accepted *queue.Queue[EndPoint], state *terminal, ep EndPoint) {
	accepted.Push(ep)
	if state.failure() == nil {
		return
	}
	for _, ep := range accepted.Drain() {
		_ = ep.Close()
	}
}

// receive hands out chunks delivered before a failure ahead of the failure.
func (b *inbox) receive() ([]byte, bool, error) {
	for {
		payload, ok, err := b.stream.Next()
		if err != nil || ok {
			return payload, ok, err
		}

		// Read the failure before popping: anything delivered ahead of
		// it must be drained first.
		failed := b.failure()
		chunk, ok := b.chunks.Pop()
		if !ok {
			return nil, false, failed
		}
		b.stream.Push(chunk)
	}
}
