package kafka

import (
	"sync"

	"github.com/IBM/sarama"
)

// offsetTracker marks records of one claim in offset order even when their
// handlers finish out of order. A record is marked only after it and every
// record before it completed, so a crash never commits past unfinished work.
type offsetTracker struct {
	mu      sync.Mutex
	sess    sarama.ConsumerGroupSession
	pending []*trackedRecord
}

type trackedRecord struct {
	msg  *sarama.ConsumerMessage
	done bool
}

func newOffsetTracker(sess sarama.ConsumerGroupSession) *offsetTracker {
	return &offsetTracker{sess: sess}
}

// track registers msg as in flight. Records must be tracked in claim order.
func (t *offsetTracker) track(msg *sarama.ConsumerMessage) *trackedRecord {
	rec := &trackedRecord{msg: msg}

	t.mu.Lock()
	t.pending = append(t.pending, rec)
	t.mu.Unlock()
	return rec
}

// complete records rec as finished and marks the longest finished prefix.
func (t *offsetTracker) complete(rec *trackedRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec.done = true
	n := 0
	for n < len(t.pending) && t.pending[n].done {
		n++
	}
	if n == 0 {
		return
	}
	// Marking the highest offset of the prefix covers the ones before it.
	t.sess.MarkMessage(t.pending[n-1].msg, "")
	clear(t.pending[:n])
	t.pending = t.pending[n:]
}

// outstanding reports how many tracked records are not yet marked.
func (t *offsetTracker) outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
