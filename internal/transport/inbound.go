package transport

import (
	"strings"
	"sync"
)

// inboundLog keeps the most recent messages the server pushed on the
// streaming channel. They carry no turn semantics; the ring exists for
// diagnostics and the status surface.
type inboundLog struct {
	mu    sync.Mutex
	max   int
	notes []string
	total int
}

func newInboundLog(max int) *inboundLog {
	if max <= 0 {
		max = 16
	}
	return &inboundLog{max: max}
}

func (l *inboundLog) add(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	l.notes = append(l.notes, note)
	if len(l.notes) > l.max {
		l.notes = l.notes[len(l.notes)-l.max:]
	}
}

// Notes returns a copy of the retained messages, oldest first.
func (l *inboundLog) Notes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.notes))
	copy(out, l.notes)
	return out
}

// Total counts every message received, including evicted ones.
func (l *inboundLog) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
