// Package rkewire encodes and decodes the fixed-width binary records the
// RKE protocol persists and exchanges: key fragments and key metadata.
// fragment_size is big-endian per the wire format; other multi-byte fields
// (whose byte order the protocol leaves to "host order as written") are
// written little-endian, matching the rest of this module's wire codecs.
package rkewire

import (
	"encoding/binary"

	"raidax.dev/rke/rkeerrors"
)

const (
	FragmentDataSize = 256
	ChecksumSize     = 32
	KeyIDSize        = 16
	MaxKeySize       = 256
	MinThreshold     = 2
	MaxFragments     = 255

	// FragmentSize is the on-disk/on-wire size of an encoded Fragment:
	// fragment_id(1) + total_fragments(1) + threshold(1) + fragment_size(2)
	// + data(256) + checksum(32).
	FragmentSize = 1 + 1 + 1 + 2 + FragmentDataSize + ChecksumSize

	// KeyMetadataSize is the on-disk size of an encoded KeyMetadata:
	// key_id(16) + key_type(1) + total_fragments(1) + threshold(1)
	// + timestamp(4) + den(1) + sn(4).
	KeyMetadataSize = KeyIDSize + 1 + 1 + 1 + 4 + 1 + 4
)

// Fragment is one share of a split key.
type Fragment struct {
	FragmentID     uint8
	TotalFragments uint8
	Threshold      uint8
	FragmentSize   uint16
	Data           [FragmentDataSize]byte
	Checksum       [ChecksumSize]byte
}

// KeyMetadata describes a split key and the coin it belongs to.
type KeyMetadata struct {
	KeyID          [KeyIDSize]byte
	KeyType        uint8
	TotalFragments uint8
	Threshold      uint8
	Timestamp      uint32
	Den            uint8
	SN             uint32
}

// EncodeFragment serializes f into a FragmentSize-byte record.
func EncodeFragment(f Fragment) []byte {
	out := make([]byte, 0, FragmentSize)
	out = append(out, f.FragmentID, f.TotalFragments, f.Threshold)
	var sz [2]byte
	binary.BigEndian.PutUint16(sz[:], f.FragmentSize)
	out = append(out, sz[:]...)
	out = append(out, f.Data[:]...)
	out = append(out, f.Checksum[:]...)
	return out
}

// DecodeFragment parses a FragmentSize-byte record.
func DecodeFragment(b []byte) (Fragment, error) {
	var f Fragment
	if len(b) != FragmentSize {
		return f, rkeerrors.New(rkeerrors.FragmentCorrupt, "fragment record has wrong length")
	}
	f.FragmentID = b[0]
	f.TotalFragments = b[1]
	f.Threshold = b[2]
	f.FragmentSize = binary.BigEndian.Uint16(b[3:5])
	copy(f.Data[:], b[5:5+FragmentDataSize])
	copy(f.Checksum[:], b[5+FragmentDataSize:FragmentSize])
	return f, nil
}

// EncodeKeyMetadata serializes m into a KeyMetadataSize-byte record.
func EncodeKeyMetadata(m KeyMetadata) []byte {
	out := make([]byte, 0, KeyMetadataSize)
	out = append(out, m.KeyID[:]...)
	out = append(out, m.KeyType, m.TotalFragments, m.Threshold)
	var ts [4]byte
	binary.LittleEndian.PutUint32(ts[:], m.Timestamp)
	out = append(out, ts[:]...)
	out = append(out, m.Den)
	var sn [4]byte
	binary.LittleEndian.PutUint32(sn[:], m.SN)
	out = append(out, sn[:]...)
	return out
}

// DecodeKeyMetadata parses a KeyMetadataSize-byte record.
func DecodeKeyMetadata(b []byte) (KeyMetadata, error) {
	var m KeyMetadata
	if len(b) != KeyMetadataSize {
		return m, rkeerrors.New(rkeerrors.FragmentCorrupt, "metadata record has wrong length")
	}
	off := 0
	copy(m.KeyID[:], b[off:off+KeyIDSize])
	off += KeyIDSize
	m.KeyType = b[off]
	off++
	m.TotalFragments = b[off]
	off++
	m.Threshold = b[off]
	off++
	m.Timestamp = binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	m.Den = b[off]
	off++
	m.SN = binary.LittleEndian.Uint32(b[off : off+4])
	return m, nil
}

// ChecksumInput builds the byte sequence hashed to produce a fragment's
// checksum: fragment_id, total_fragments, threshold, fragment_size (as two
// big-endian length bytes, hi then lo) followed by the first fragment_size
// bytes of data.
func ChecksumInput(f Fragment) []byte {
	n := int(f.FragmentSize)
	if n > FragmentDataSize {
		n = FragmentDataSize
	}
	out := make([]byte, 0, 5+n)
	out = append(out, f.FragmentID, f.TotalFragments, f.Threshold)
	out = append(out, byte(f.FragmentSize>>8), byte(f.FragmentSize))
	out = append(out, f.Data[:n]...)
	return out
}
