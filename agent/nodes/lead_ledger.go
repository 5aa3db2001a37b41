package flownode

import (
	"strings"
	"sync"
	"time"
)

// LeadLedger remembers which calls already have a saved lead. It covers the
// gap between a successful SaveLead and the session write that records it.
// A nil ledger remembers nothing.
type LeadLedger struct {
	mu    sync.Mutex
	ttl   time.Duration
	saved map[string]ledgerEntry
}

type ledgerEntry struct {
	leadID  string
	savedAt time.Time
}

func NewLeadLedger(ttl time.Duration) *LeadLedger {
	return &LeadLedger{ttl: ttl, saved: make(map[string]ledgerEntry)}
}

func (l *LeadLedger) Lookup(callID string) (string, bool) {
	if l == nil {
		return "", false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.saved[strings.TrimSpace(callID)]
	return e.leadID, ok
}

// Remember records the lead id for a call and drops entries older than the
// ledger ttl.
func (l *LeadLedger) Remember(callID, leadID string, now time.Time) {
	if l == nil || strings.TrimSpace(callID) == "" || leadID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ttl > 0 {
		for id, e := range l.saved {
			if now.Sub(e.savedAt) > l.ttl {
				delete(l.saved, id)
			}
		}
	}
	l.saved[strings.TrimSpace(callID)] = ledgerEntry{leadID: leadID, savedAt: now}
}

func (l *LeadLedger) Forget(callID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.saved, strings.TrimSpace(callID))
	l.mu.Unlock()
}
