package domain

import "testing"

func TestActorIDString(t *testing.T) {
	id := ActorID{Type: "counter", ID: "a1"}
	if got, want := id.String(), "counter/a1"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestLeaseExpired(t *testing.T) {
	l := Lease{ActorID: "counter/a1", LeaseID: "l1", ExpiresAt: 1000}
	if l.Expired(999) {
		t.Fatal("lease should not be expired before ExpiresAt")
	}
	if !l.Expired(1000) {
		t.Fatal("lease should be expired at ExpiresAt")
	}
	if !l.Expired(1001) {
		t.Fatal("lease should be expired after ExpiresAt")
	}
}

func TestMessageExpired(t *testing.T) {
	m := Message{Metadata: MessageMetadata{Timestamp: 1000, TTLMillis: 500}}
	if m.Expired(1499) {
		t.Fatal("message should not be expired before ttl elapses")
	}
	if !m.Expired(1500) {
		t.Fatal("message should be expired once ttl elapses")
	}

	noTTL := Message{Metadata: MessageMetadata{Timestamp: 1000}}
	if noTTL.Expired(1 << 40) {
		t.Fatal("zero ttl should never expire")
	}
}

func TestJournalAppendIsDefensiveCopy(t *testing.T) {
	base := Journal{Entries: []JournalEntry{{Cursor: 0, Type: EntryStateChanged}}}
	next := base.Append(JournalEntry{Cursor: 1, Type: EntryActivityRequested})

	if len(base.Entries) != 1 {
		t.Fatalf("Append mutated receiver: len(base.Entries) = %d, want 1", len(base.Entries))
	}
	if len(next.Entries) != 2 {
		t.Fatalf("len(next.Entries) = %d, want 2", len(next.Entries))
	}
	if next.Cursor() != 2 {
		t.Fatalf("Cursor() = %d, want 2", next.Cursor())
	}
}

func TestJournalCursorEmpty(t *testing.T) {
	var j Journal
	if j.Cursor() != 0 {
		t.Fatalf("Cursor() on empty journal = %d, want 0", j.Cursor())
	}
}

func TestInvocationResultConstructors(t *testing.T) {
	if r := Completed(); r.Outcome != OutcomeCompleted {
		t.Fatalf("Completed().Outcome = %v", r.Outcome)
	}

	ar := ActivityRequest{ActivityID: "inv-1", ActivityName: "echo"}
	r := SuspendedOnActivity(ar)
	if r.Outcome != OutcomeSuspendedOnActivity || r.ActivityRequest == nil || r.ActivityRequest.ActivityName != "echo" {
		t.Fatalf("SuspendedOnActivity result malformed: %+v", r)
	}

	er := EventRequest{EventType: "payment.received"}
	re := SuspendedOnEvent(er)
	if re.Outcome != OutcomeSuspendedOnEvent || re.EventRequest == nil || re.EventRequest.EventType != "payment.received" {
		t.Fatalf("SuspendedOnEvent result malformed: %+v", re)
	}

	rf := Failed(ErrNotFound)
	if rf.Outcome != OutcomeFailed || rf.Err != ErrNotFound {
		t.Fatalf("Failed result malformed: %+v", rf)
	}
}

func TestSuspendErrorsImplementError(t *testing.T) {
	var err error = &ActivitySuspendError{Request: ActivityRequest{ActivityName: "echo"}}
	if err.Error() == "" {
		t.Fatal("ActivitySuspendError.Error() should not be empty")
	}

	err = &EventSuspendError{Request: EventRequest{EventType: "e"}}
	if err.Error() == "" {
		t.Fatal("EventSuspendError.Error() should not be empty")
	}
}
