package service

import (
	"sync"

	"github.com/okian/slarisk/internal/domain/model"
)

// decisionLog keeps the last n decisions in a ring.
type decisionLog struct {
	mu   sync.Mutex
	buf  []model.DecisionRecord
	next int
	full bool
}

func newDecisionLog(n int) *decisionLog {
	if n < 1 {
		n = 1
	}
	return &decisionLog{buf: make([]model.DecisionRecord, n)}
}

func (l *decisionLog) add(rec model.DecisionRecord) {
	l.mu.Lock()
	l.buf[l.next] = rec
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()
}

// latest returns up to limit records, newest first. limit <= 0 returns all.
func (l *decisionLog) latest(limit int) []model.DecisionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.next
	if l.full {
		n = len(l.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.DecisionRecord, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.next - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}
