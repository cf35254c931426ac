package game

import (
	"container/heap"

	"github.com/tilewars/engine/pkg/core"
)

type queuedMessage struct {
	msg core.Message
	seq uint64
}

// messageQueue orders messages by timestamp, then by insertion.
type messageQueue struct {
	items []queuedMessage
	seq   uint64
}

func (q *messageQueue) Len() int { return len(q.items) }

func (q *messageQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.msg.Timestamp != b.msg.Timestamp {
		return a.msg.Timestamp.Less(b.msg.Timestamp)
	}
	return a.seq < b.seq
}

func (q *messageQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *messageQueue) Push(x any) { q.items = append(q.items, x.(queuedMessage)) }

func (q *messageQueue) Pop() any {
	n := len(q.items)
	item := q.items[n-1]
	q.items = q.items[:n-1]
	return item
}

func (q *messageQueue) insert(m core.Message) {
	q.seq++
	heap.Push(q, queuedMessage{msg: m, seq: q.seq})
}

// popDue removes the earliest message if it is due at or before now.
func (q *messageQueue) popDue(now float64) (core.Message, bool) {
	if len(q.items) == 0 || q.items[0].msg.Timestamp.Value() > now {
		return core.Message{}, false
	}
	return heap.Pop(q).(queuedMessage).msg, true
}

// dropClient removes every queued message sent by id and reports how many
// were removed.
func (q *messageQueue) dropClient(id core.ClientID) int {
	kept := q.items[:0]
	for _, item := range q.items {
		if item.msg.Client != id {
			kept = append(kept, item)
		}
	}
	dropped := len(q.items) - len(kept)
	clear(q.items[len(kept):])
	q.items = kept
	if dropped > 0 {
		heap.Init(q)
	}
	return dropped
}
