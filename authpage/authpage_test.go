package authpage

import "testing"

func TestTakeLockCreatesZeroedPage(t *testing.T) {
	s, err := NewBoltPageStore(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("NewBoltPageStore: %v", err)
	}
	defer s.Close()

	p, err := s.TakeLock(4, 100)
	if err != nil {
		t.Fatalf("TakeLock: %v", err)
	}
	if len(p.Records) != 16 {
		t.Fatalf("len(Records) = %d, want 16", len(p.Records))
	}
	for i, rec := range p.Records {
		if rec != ([RecordSize]byte{}) {
			t.Fatalf("Records[%d] = %x, want all zero", i, rec)
		}
	}
	if err := s.Release(p); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestSetSplitPersistsAcrossTakeLock(t *testing.T) {
	s, err := NewBoltPageStore(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("NewBoltPageStore: %v", err)
	}
	defer s.Close()

	idx := s.RecordIndex(5)
	p, err := s.TakeLock(1, 5)
	if err != nil {
		t.Fatalf("TakeLock: %v", err)
	}
	var half [8]byte
	copy(half[:], []byte("ABCDEFGH"))
	if err := p.SetSplit(idx, 0, half, 0x42); err != nil {
		t.Fatalf("SetSplit: %v", err)
	}
	if err := s.Release(p); err != nil {
		t.Fatalf("Release: %v", err)
	}

	p2, err := s.TakeLock(1, 5)
	if err != nil {
		t.Fatalf("second TakeLock: %v", err)
	}
	defer s.Release(p2)
	rec, err := p2.Record(idx)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if string(rec[0:8]) != "ABCDEFGH" || rec[16] != 0x42 {
		t.Fatalf("record not persisted: %v", rec)
	}
}

func TestSetSplitRejectsOutOfRangeIndex(t *testing.T) {
	p := &Page{Records: make([][RecordSize]byte, 4)}
	if err := p.SetSplit(10, 0, [8]byte{}, 0); err == nil {
		t.Fatalf("expected error for out-of-range index")
	}
	if err := p.SetSplit(0, 2, [8]byte{}, 0); err == nil {
		t.Fatalf("expected error for invalid split")
	}
}
