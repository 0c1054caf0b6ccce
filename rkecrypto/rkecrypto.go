// Package rkecrypto provides the small set of cryptographic primitives the
// RKE protocol depends on: the legacy keyed stream cipher used by
// encrypt_key and decrypt_raida_key to protect authentication-key material
// in transit, a content hash used
// for fragment integrity checks, and an injectable source of randomness.
package rkecrypto

import (
	"crypto/rand"
	"crypto/subtle"
	"io"

	"golang.org/x/crypto/sha3"

	"raidax.dev/rke/rkeerrors"
)

// randReader is the process-wide entropy source. It defaults to the
// operating system CSPRNG and can be overridden (SetRandReader) so a
// deployment can plug in a hardened DRBG without touching callers.
var randReader io.Reader = rand.Reader

// SetRandReader overrides the package's randomness source. Tests use this
// to make key generation and session IDs deterministic.
func SetRandReader(r io.Reader) {
	if r == nil {
		r = rand.Reader
	}
	randReader = r
}

// RandomBytes returns n cryptographically random bytes read from the
// configured source.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(randReader, buf); err != nil {
		return nil, rkeerrors.New(rkeerrors.CryptoFail, "short read from random source: "+err.Error())
	}
	return buf, nil
}

// StreamXOR applies the legacy RKE stream cipher to buf in place. It is an
// involution: calling it twice with the same key and nonce restores the
// original bytes. key and nonce are each indexed modulo their own length,
// so any non-empty key/nonce pair is valid; callers pass exactly 16 bytes
// per the wire protocol, which makes this indexing modulo 16. This is the wire format's actual cipher — not a stand-in for
// AES-CTR — and must not be swapped without a new protocol version.
func StreamXOR(key, nonce, buf []byte) {
	if len(key) == 0 || len(nonce) == 0 {
		return
	}
	for i := range buf {
		buf[i] ^= key[i%len(key)] ^ nonce[i%len(nonce)]
	}
}

// ContentHash returns the 32-byte SHA3-256 digest of b, used for fragment
// checksums and any other content-integrity check in the protocol.
func ContentHash(b []byte) [32]byte {
	return sha3.Sum256(b)
}

// ConstantTimeEqual reports whether a and b are equal, in time independent
// of their contents where they differ. Used to compare fragment checksums
// so a malformed fragment can't be distinguished by timing.
func ConstantTimeEqual(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}
