// Package splitter implements RKE's key splitting and reconstruction.
//
// This is XOR-additive fragment sharing, not Shamir's threshold secret
// sharing: fragment 1 carries the key, fragments 2..N carry independent
// random masks that were XORed into fragment 1 at split time, and
// reconstruction recovers the key by XORing every fragment back together.
// The wire protocol calls this a "threshold", but any subset smaller than
// the full fragment set cannot reconstruct the key — only the count check
// is threshold-shaped, not the cryptography. Preserve this shape; it is
// part of the wire-compatible behavior, not a simplification to fix.
package splitter

import (
	"raidax.dev/rke/rkecrypto"
	"raidax.dev/rke/rkeerrors"
	"raidax.dev/rke/rkewire"
)

// Split divides key into totalFragments fragments, requiring threshold of
// them (by count) to reconstruct. Fragment scratch state lives entirely on
// the stack/heap of this call; nothing is retained between calls.
func Split(key []byte, totalFragments, threshold uint8) ([]rkewire.Fragment, error) {
	if len(key) == 0 || len(key) > rkewire.MaxKeySize {
		return nil, rkeerrors.New(rkeerrors.InvalidParameter, "key size out of range")
	}
	if threshold > totalFragments {
		return nil, rkeerrors.New(rkeerrors.InvalidParameter, "threshold exceeds total fragments")
	}
	if threshold < rkewire.MinThreshold {
		return nil, rkeerrors.New(rkeerrors.InvalidParameter, "threshold below minimum")
	}
	if totalFragments == 0 || int(totalFragments) > rkewire.MaxFragments {
		return nil, rkeerrors.New(rkeerrors.InvalidParameter, "total fragments out of range")
	}

	frags := make([]rkewire.Fragment, totalFragments)
	for i := range frags {
		f := &frags[i]
		f.FragmentID = uint8(i + 1)
		f.TotalFragments = totalFragments
		f.Threshold = threshold
		f.FragmentSize = uint16(len(key))

		if i == 0 {
			copy(f.Data[:], key)
			continue
		}
		mask, err := rkecrypto.RandomBytes(len(key))
		if err != nil {
			return nil, rkeerrors.New(rkeerrors.KeySplitting, "mask generation failed: "+err.Error())
		}
		copy(f.Data[:], mask)
		for j, b := range mask {
			frags[0].Data[j] ^= b
		}
	}

	for i := range frags {
		digest := rkecrypto.ContentHash(rkewire.ChecksumInput(frags[i]))
		frags[i].Checksum = digest
	}
	return frags, nil
}

// VerifyChecksum reports whether f's stored checksum matches its content.
func VerifyChecksum(f rkewire.Fragment) bool {
	digest := rkecrypto.ContentHash(rkewire.ChecksumInput(f))
	return rkecrypto.ConstantTimeEqual(digest[:], f.Checksum[:])
}

// Reconstruct recovers the original key from frags. Every fragment passed
// in must verify, and at least threshold fragments must be present; the
// key is recovered by XORing the data of every fragment supplied, not just
// threshold of them, since any fragment omitted leaves its mask unremoved.
func Reconstruct(frags []rkewire.Fragment, threshold int) ([]byte, error) {
	if len(frags) < threshold {
		return nil, rkeerrors.New(rkeerrors.InsufficientFragments, "not enough fragments to reconstruct")
	}
	if len(frags) == 0 {
		return nil, rkeerrors.New(rkeerrors.InvalidParameter, "no fragments supplied")
	}

	size := int(frags[0].FragmentSize)
	for _, f := range frags {
		if !VerifyChecksum(f) {
			return nil, rkeerrors.New(rkeerrors.FragmentCorrupt, "fragment failed checksum verification")
		}
		if int(f.FragmentSize) != size {
			return nil, rkeerrors.New(rkeerrors.FragmentCorrupt, "fragment size mismatch across set")
		}
	}

	key := make([]byte, size)
	copy(key, frags[0].Data[:size])
	for _, f := range frags[1:] {
		for i := 0; i < size; i++ {
			key[i] ^= f.Data[i]
		}
	}
	return key, nil
}
