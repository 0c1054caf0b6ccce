// Package session manages the short-lived identity of one key exchange
// between two peers.
package session

import (
	"raidax.dev/rke/rkecrypto"
	"raidax.dev/rke/rkeerrors"
)

// State is the lifecycle stage of a Session.
type State uint8

const (
	StateInit State = iota
	StateActive
	StateComplete
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateActive:
		return "Active"
	case StateComplete:
		return "Complete"
	case StateExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

const timeoutSeconds = 3600

// Session identifies one exchange between a sender and a receiver.
type Session struct {
	SessionID  [16]byte
	SenderID   [16]byte
	ReceiverID [16]byte
	State      State
	Timeout    int64
}

// Init creates a new session for the given sender/receiver pair. now is the
// current Unix time, supplied by the caller so this package stays free of
// wall-clock dependencies.
func Init(sender, receiver [16]byte, now int64) (Session, error) {
	id, err := rkecrypto.RandomBytes(16)
	if err != nil {
		return Session{}, rkeerrors.New(rkeerrors.CryptoFail, "session id generation failed: "+err.Error())
	}
	var s Session
	copy(s.SessionID[:], id)
	s.SenderID = sender
	s.ReceiverID = receiver
	s.State = StateInit
	s.Timeout = now + timeoutSeconds
	return s, nil
}

// Expired reports whether the session's timeout has passed as of now.
func (s Session) Expired(now int64) bool {
	return now >= s.Timeout
}

// Cleanup zeroizes every field of s, the Go equivalent of memset(session, 0,
// sizeof(*session)) in the original implementation.
func Cleanup(s *Session) {
	if s == nil {
		return
	}
	*s = Session{}
}
