package audit

import (
	"log"
	"sync"
)

// Entry kinds. Gateway-driven transitions, administrative overrides and
// security rejects must stay distinguishable in the trail.
const (
	KindGateway   = "gateway"
	KindAdmin     = "admin"
	KindSecurity  = "security"
	KindReconcile = "reconcile"
)

// Entry is one audit record. Raw carries the inbound payload on rejected
// callbacks so they can be replayed during forensics.
type Entry struct {
	Kind    string
	OrderID string
	Actor   string
	Detail  string
	Raw     string
}

// Logger records audit entries. Injected so tests can capture the trail.
type Logger interface {
	Record(e Entry)
}

// StdLogger writes entries through the standard logger.
type StdLogger struct{}

func NewStdLogger() *StdLogger {
	return &StdLogger{}
}

func (l *StdLogger) Record(e Entry) {
	if e.Raw != "" {
		log.Printf("[AUDIT] kind=%s order=%s actor=%s detail=%q raw=%q", e.Kind, e.OrderID, e.Actor, e.Detail, e.Raw)
		return
	}
	log.Printf("[AUDIT] kind=%s order=%s actor=%s detail=%q", e.Kind, e.OrderID, e.Actor, e.Detail)
}

// Recorder keeps entries in memory for assertions in tests. Safe for
// concurrent use so races in the code under test stay visible.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) Record(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// ByKind returns the recorded entries of one kind.
func (r *Recorder) ByKind(kind string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0)
	for _, e := range r.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
