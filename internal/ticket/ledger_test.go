package ticket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintUsesContentOrAttachment(t *testing.T) {
	t.Parallel()

	text := Message{ID: "1", Content: "hello"}
	file := Message{ID: "2", Attachments: []Attachment{{URL: "https://cdn/a.png"}, {URL: "https://cdn/b.png"}}}
	assert.Equal(t, "1:hello", Fingerprint(text))
	assert.Equal(t, "2:https://cdn/a.png", Fingerprint(file))
	assert.Equal(t, "temp:hello", TempFingerprintOf(text))
	assert.Equal(t, "temp:https://cdn/a.png", TempFingerprint("", "https://cdn/a.png"))
}

func TestLedgerAdmitsEachMessageOnce(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	batchA := []Message{{ID: "1", Content: "a", Role: RoleSupport}, {ID: "2", Content: "b", Role: RoleSupport}}
	batchB := []Message{{ID: "2", Content: "b", Role: RoleSupport}, {ID: "3", Content: "c", Role: RoleSupport}}

	delivered := map[string]int{}
	for _, batch := range [][]Message{batchA, batchB, batchA} {
		for _, m := range batch {
			if l.Admit(m) {
				delivered[m.ID]++
			}
		}
	}
	assert.Equal(t, map[string]int{"1": 1, "2": 1, "3": 1}, delivered)
	assert.Equal(t, 3, l.Len())
}

func TestLedgerSuppressesOptimisticEcho(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	tmp := TempFingerprint("hello", "")
	l.AddPending(tmp)

	echo := Message{ID: "900", Content: "hello", Role: RoleVisitor}
	assert.False(t, l.Admit(echo), "echo of optimistic send must be suppressed")
	assert.Equal(t, 0, l.Pending(tmp))

	already := l.Confirm(echo, tmp)
	assert.True(t, already)

	next := Message{ID: "901", Content: "hello", Role: RoleVisitor}
	assert.True(t, l.Admit(next), "a later identical message is new once the claim is consumed")
}

func TestLedgerConfirmBeforeEcho(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	tmp := TempFingerprint("hi there", "")
	l.AddPending(tmp)

	confirmed := Message{ID: "50", Content: "hi there", Role: RoleVisitor}
	assert.False(t, l.Confirm(confirmed, tmp))
	assert.Equal(t, 1, l.Pending(tmp), "claim is held until the echo arrives")
	assert.False(t, l.Admit(confirmed))
	assert.Equal(t, 0, l.Pending(tmp))

	again := Message{ID: "52", Content: "hi there", Role: RoleVisitor}
	assert.True(t, l.Admit(again), "a later message with the same text is new")
}

func TestLedgerConfirmedSendSuppressesEchoUnderOtherID(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	tmp := TempFingerprint("hello", "")
	l.AddPending(tmp)
	assert.False(t, l.Confirm(Message{ID: "50", Content: "hello", Role: RoleVisitor}, tmp))

	assert.False(t, l.Admit(Message{ID: "51", Content: "hello", Role: RoleVisitor}))
	assert.Equal(t, 0, l.Pending(tmp))
	// the confirmed copy no longer holds a claim
	assert.False(t, l.Admit(Message{ID: "50", Content: "hello", Role: RoleVisitor}))
	assert.Equal(t, 0, l.Pending(tmp))
	assert.True(t, l.Admit(Message{ID: "53", Content: "hello", Role: RoleVisitor}))
}

func TestLedgerReplayOnce(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	welcome := Message{ID: "1", Content: "Welcome", Role: RoleSupport}
	l.Seed([]Message{welcome})

	assert.True(t, l.Replay(welcome))
	assert.False(t, l.Replay(welcome))
	assert.False(t, l.Admit(welcome))

	polled := Message{ID: "2", Content: "next", Role: RoleSupport}
	assert.True(t, l.Admit(polled))
	assert.False(t, l.Replay(polled), "a polled message is never replayed as history")

	l.Reset()
	assert.True(t, l.Replay(welcome))
}

func TestLedgerPendingIsCounted(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	tmp := TempFingerprint("ok", "")
	l.AddPending(tmp)
	l.AddPending(tmp)
	assert.Equal(t, 2, l.Pending(tmp))
	l.ReleasePending(tmp)
	assert.Equal(t, 1, l.Pending(tmp))
	l.ReleasePending(tmp)
	l.ReleasePending(tmp)
	assert.Equal(t, 0, l.Pending(tmp))
}

func TestLedgerSupportMessageIgnoresPending(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	l.AddPending(TempFingerprint("same", ""))
	assert.True(t, l.Admit(Message{ID: "7", Content: "same", Role: RoleSupport}))
	assert.Equal(t, 1, l.Pending(TempFingerprint("same", "")))
}

func TestLedgerSeedAndReset(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	l.Seed([]Message{
		{ID: "1", Content: "welcome", Role: RoleSupport},
		{ID: "2", Content: "my question", Role: RoleVisitor},
	})
	assert.True(t, l.Seen(Message{ID: "1", Content: "welcome"}))
	assert.Equal(t, 1, l.Pending(TempFingerprint("my question", "")))
	assert.False(t, l.Admit(Message{ID: "1", Content: "welcome", Role: RoleSupport}))

	l.Reset()
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 0, l.Pending(TempFingerprint("my question", "")))
}
