// Package authpage models the RAIDA authenticity pages that back the
// encrypt_key and decrypt_raida_key commands: per-(denomination, serial
// number) pages of 17-byte authentication records, shared mutable state
// that must be taken under lock, mutated, and released without ever
// holding two page locks at once.
package authpage

import (
	"fmt"
	"sync"

	"raidax.dev/rke/rkeerrors"
)

// RecordSize is the width of one authenticity record: two 8-byte halves
// (one per RAIDA split) plus a 1-byte modification stamp.
const RecordSize = 17

// Page is one denomination/serial-number authenticity page. Records is
// indexed by serial-number-within-page. Callers must hold mu for the
// duration of any read-modify-write; PageStore.Release drops it.
type Page struct {
	mu      sync.Mutex
	key     string
	Records [][RecordSize]byte
	Dirty   bool
}

// Record returns a copy of record idx's 17 bytes.
func (p *Page) Record(idx int) ([RecordSize]byte, error) {
	if idx < 0 || idx >= len(p.Records) {
		return [RecordSize]byte{}, rkeerrors.New(rkeerrors.InvalidSnOrDen, "record index out of range")
	}
	return p.Records[idx], nil
}

// SetSplit writes an 8-byte half into record idx at the given split slot (0
// or 1) and stamps the record's modification-frame-stamp byte.
func (p *Page) SetSplit(idx int, split uint8, half [8]byte, mfs byte) error {
	if idx < 0 || idx >= len(p.Records) {
		return rkeerrors.New(rkeerrors.InvalidSnOrDen, "record index out of range")
	}
	if split > 1 {
		return rkeerrors.New(rkeerrors.InvalidParameter, "split must be 0 or 1")
	}
	offset := int(split) * 8
	copy(p.Records[idx][offset:offset+8], half[:])
	p.Records[idx][16] = mfs
	p.Dirty = true
	return nil
}

// PageStore is the narrow contract the command dispatcher depends on. A
// real deployment backs this with the external RAIDA authenticity-page
// store; BoltPageStore is a concrete, testable reference implementation.
type PageStore interface {
	// TakeLock returns the page for (den, sn), locked for exclusive use by
	// the caller. It must be released with Release once the caller is done.
	TakeLock(den uint8, sn uint32) (*Page, error)
	// Release unlocks a page previously returned by TakeLock, persisting it
	// if it was marked dirty.
	Release(p *Page) error
}

func pageKey(den uint8, sn uint32, recordsPerPage int) string {
	pageIndex := sn / uint32(recordsPerPage)
	return fmt.Sprintf("%02x-%d", den, pageIndex)
}

// recordIndex returns the within-page index for sn given recordsPerPage.
func recordIndex(sn uint32, recordsPerPage int) int {
	return int(sn % uint32(recordsPerPage))
}
