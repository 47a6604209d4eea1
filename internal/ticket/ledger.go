package ticket

import (
	"strings"
	"sync"
)

const tempFingerprintPrefix = "temp:"

// Fingerprint derives the dedup key of a message from its identifier and its text, or its first
// attachment URL when the text is empty.
func Fingerprint(m Message) string {
	return strings.TrimSpace(m.ID) + ":" + fingerprintBody(m.Content, m.FirstAttachmentURL())
}

// TempFingerprint derives the identifier-less key recorded when a message is sent optimistically.
func TempFingerprint(content, attachmentURL string) string {
	return tempFingerprintPrefix + fingerprintBody(content, attachmentURL)
}

// TempFingerprintOf is TempFingerprint applied to a message.
func TempFingerprintOf(m Message) string {
	return TempFingerprint(m.Content, m.FirstAttachmentURL())
}

func fingerprintBody(content, attachmentURL string) string {
	if body := strings.TrimSpace(content); body != "" {
		return body
	}
	return strings.TrimSpace(attachmentURL)
}

// Ledger records which messages were already delivered. Confirmed fingerprints are kept for the
// session lifetime; temporary fingerprints are counted claims that suppress one provider echo each.
// A claim stays outstanding after its send is confirmed until one visitor echo has been absorbed.
type Ledger struct {
	mu        sync.Mutex
	seen      map[string]struct{}
	delivered map[string]struct{}
	pending   map[string]int
	// owed maps a confirmed fingerprint to the claim its send still holds.
	owed map[string]string
}

func NewLedger() *Ledger {
	return &Ledger{
		seen:      map[string]struct{}{},
		delivered: map[string]struct{}{},
		pending:   map[string]int{},
		owed:      map[string]string{},
	}
}

// Seen reports whether the confirmed fingerprint of m has been recorded.
func (l *Ledger) Seen(m Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[Fingerprint(m)]
	return ok
}

// Record stores the confirmed fingerprints of msgs.
func (l *Ledger) Record(msgs ...Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range msgs {
		l.seen[Fingerprint(m)] = struct{}{}
	}
}

// Seed records history returned by validation. Visitor-authored history also seeds the
// temporary form.
func (l *Ledger) Seed(msgs []Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range msgs {
		l.seen[Fingerprint(m)] = struct{}{}
		if m.Role == RoleVisitor {
			l.pending[TempFingerprintOf(m)]++
		}
	}
}

// AddPending records a temporary fingerprint ahead of a send.
func (l *Ledger) AddPending(tempFP string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[tempFP]++
}

// ReleasePending drops one temporary claim if it is still outstanding.
func (l *Ledger) ReleasePending(tempFP string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releaseLocked(tempFP)
}

// Pending reports how many claims are outstanding for tempFP.
func (l *Ledger) Pending(tempFP string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending[tempFP]
}

// Admit decides whether m should be delivered and records it. A message already recorded is
// rejected. A visitor message matching an outstanding temporary claim consumes the claim and is
// rejected, since its optimistic copy is already on screen.
func (l *Ledger) Admit(m Message) bool {
	fp := Fingerprint(m)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[fp]; ok {
		if tmp, owed := l.owed[fp]; owed {
			delete(l.owed, fp)
			l.releaseLocked(tmp)
		}
		return false
	}
	l.seen[fp] = struct{}{}
	if m.Role == RoleVisitor {
		tmp := TempFingerprintOf(m)
		if l.pending[tmp] > 0 {
			l.releaseLocked(tmp)
			l.settleOwedLocked(tmp)
			return false
		}
	}
	l.delivered[fp] = struct{}{}
	return true
}

// Confirm records the provider-confirmed copy of an optimistic send. It reports whether the echo
// had already been absorbed by a poll. Otherwise the claim is kept until the echo arrives, under
// the confirmed identifier or another one.
func (l *Ledger) Confirm(m Message, tempFP string) bool {
	fp := Fingerprint(m)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, already := l.seen[fp]; already {
		return true
	}
	l.seen[fp] = struct{}{}
	l.delivered[fp] = struct{}{}
	if l.pending[tempFP] > 0 {
		l.owed[fp] = tempFP
	}
	return false
}

// Replay reports whether m may be handed to a callback as history and marks it delivered. Each
// fingerprint is replayed at most once, and never after a poll delivered it.
func (l *Ledger) Replay(m Message) bool {
	fp := Fingerprint(m)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.delivered[fp]; ok {
		return false
	}
	l.seen[fp] = struct{}{}
	l.delivered[fp] = struct{}{}
	return true
}

// Reset clears all fingerprints.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = map[string]struct{}{}
	l.delivered = map[string]struct{}{}
	l.pending = map[string]int{}
	l.owed = map[string]string{}
}

// Len returns the number of confirmed fingerprints.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

func (l *Ledger) releaseLocked(tempFP string) {
	n := l.pending[tempFP]
	switch {
	case n <= 1:
		delete(l.pending, tempFP)
	default:
		l.pending[tempFP] = n - 1
	}
}

// settleOwedLocked drops one confirmed send waiting on tempFP, whose echo arrived under another
// identifier.
func (l *Ledger) settleOwedLocked(tempFP string) {
	for fp, tmp := range l.owed {
		if tmp == tempFP {
			delete(l.owed, fp)
			return
		}
	}
}
