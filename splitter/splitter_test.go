package splitter

import (
	"bytes"
	"testing"

	"raidax.dev/rke/rkewire"
)

func TestSplitReconstructRoundTrip(t *testing.T) {
	key := []byte("a 32 byte symmetric test key!!!")
	frags, err := Split(key, 5, 3)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(frags) != 5 {
		t.Fatalf("len(frags) = %d, want 5", len(frags))
	}
	for _, f := range frags {
		if !VerifyChecksum(f) {
			t.Fatalf("fragment %d failed checksum verification", f.FragmentID)
		}
	}

	got, err := Reconstruct(frags, 3)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Fatalf("Reconstruct = %q, want %q", got, key)
	}
}

func TestReconstructRequiresAllSuppliedFragments(t *testing.T) {
	key := []byte("another test key")
	frags, err := Split(key, 4, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	// Omitting one fragment leaves its mask unremoved: reconstruction from
	// a strict subset must not silently produce the right answer.
	subset := frags[:3]
	got, err := Reconstruct(subset, 2)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if bytes.Equal(got, key) {
		t.Fatalf("Reconstruct from a partial fragment set recovered the key; masks must not cancel out")
	}
}

func TestReconstructInsufficientFragments(t *testing.T) {
	key := []byte("short key")
	frags, err := Split(key, 5, 3)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if _, err := Reconstruct(frags[:2], 3); err == nil {
		t.Fatalf("expected insufficient fragments error")
	}
}

func TestReconstructDetectsCorruption(t *testing.T) {
	key := []byte("corrupt-me")
	frags, err := Split(key, 3, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	frags[1].Data[0] ^= 0xff
	if _, err := Reconstruct(frags, 2); err == nil {
		t.Fatalf("expected checksum failure after corrupting a fragment")
	}
}

func TestSplitRejectsInvalidThreshold(t *testing.T) {
	key := []byte("key")
	if _, err := Split(key, 3, 5); err == nil {
		t.Fatalf("expected error: threshold exceeds total fragments")
	}
	if _, err := Split(key, 3, 1); err == nil {
		t.Fatalf("expected error: threshold below minimum")
	}
}

func TestSplitRejectsInvalidKeySize(t *testing.T) {
	if _, err := Split(nil, 3, 2); err == nil {
		t.Fatalf("expected error for empty key")
	}
	big := make([]byte, rkewire.MaxKeySize+1)
	if _, err := Split(big, 3, 2); err == nil {
		t.Fatalf("expected error for oversized key")
	}
}
