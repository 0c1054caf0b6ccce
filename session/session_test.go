package session

import "testing"

func TestInitSetsTimeoutAndState(t *testing.T) {
	var sender, receiver [16]byte
	sender[0] = 1
	receiver[0] = 2

	s, err := Init(sender, receiver, 1_000_000)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if s.State != StateInit {
		t.Fatalf("State = %v, want StateInit", s.State)
	}
	if s.Timeout != 1_000_000+timeoutSeconds {
		t.Fatalf("Timeout = %d, want %d", s.Timeout, 1_000_000+timeoutSeconds)
	}
	if s.SessionID == ([16]byte{}) {
		t.Fatalf("SessionID was not populated")
	}
}

func TestExpired(t *testing.T) {
	s, err := Init([16]byte{}, [16]byte{}, 0)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if s.Expired(0) {
		t.Fatalf("session reported expired immediately after init")
	}
	if !s.Expired(timeoutSeconds) {
		t.Fatalf("session not reported expired at exactly its timeout")
	}
}

func TestCleanupZeroizes(t *testing.T) {
	s, err := Init([16]byte{9}, [16]byte{8}, 42)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	Cleanup(&s)
	if s != (Session{}) {
		t.Fatalf("Cleanup did not zero the session: %+v", s)
	}
}
