// Package store persists RKE fragments, key metadata, encryption-coin
// records and posted key messages to the filesystem, following the same
// directory layout the original RAIDA implementation used.
package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"raidax.dev/rke/rkeerrors"
	"raidax.dev/rke/rkewire"
)

// Store is a filesystem-backed persistence layer rooted at a single
// directory (the legacy config.cwd).
type Store struct {
	root   string
	logger *slog.Logger
}

// New returns a Store rooted at root. A nil logger falls back to
// slog.Default().
func New(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger}
}

func keyPrefixDir(root string, keyID [16]byte) string {
	return filepath.Join(root, "RKE", fmt.Sprintf("%02x%02x%02x%02x", keyID[0], keyID[1], keyID[2], keyID[3]))
}

func fragmentPath(root string, keyID [16]byte, fragmentID uint8) string {
	return filepath.Join(keyPrefixDir(root, keyID), fmt.Sprintf("fragment_%03d.bin", fragmentID))
}

func metadataPath(root string, keyID [16]byte) string {
	return filepath.Join(keyPrefixDir(root, keyID), "metadata.bin")
}

func writeFileExact(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	n, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil {
		return werr
	}
	if n != len(data) {
		return fmt.Errorf("short write: wrote %d, expected %d", n, len(data))
	}
	return cerr
}

func readFileExact(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	if _, err := readFull(f, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, fmt.Errorf("unexpected EOF at %d of %d bytes", total, len(buf))
		}
	}
	return total, nil
}

// StoreFragment writes a key fragment to disk.
func (s *Store) StoreFragment(keyID [16]byte, f rkewire.Fragment) error {
	path := fragmentPath(s.root, keyID, f.FragmentID)
	s.logger.Debug("storing fragment", "fragment_id", f.FragmentID, "path", path)
	if err := writeFileExact(path, rkewire.EncodeFragment(f)); err != nil {
		s.logger.Error("store fragment failed", "path", path, "err", err)
		return rkeerrors.New(rkeerrors.StorageFail, err.Error())
	}
	return nil
}

// LoadFragment reads a key fragment from disk, verifying that the file's
// own fragment_id field matches the one requested.
func (s *Store) LoadFragment(keyID [16]byte, fragmentID uint8) (rkewire.Fragment, error) {
	path := fragmentPath(s.root, keyID, fragmentID)
	raw, err := readFileExact(path, rkewire.FragmentSize)
	if err != nil {
		s.logger.Error("load fragment failed", "path", path, "err", err)
		return rkewire.Fragment{}, rkeerrors.New(rkeerrors.StorageFail, err.Error())
	}
	f, err := rkewire.DecodeFragment(raw)
	if err != nil {
		return rkewire.Fragment{}, err
	}
	if f.FragmentID != fragmentID {
		return rkewire.Fragment{}, rkeerrors.New(rkeerrors.FragmentCorrupt, "fragment id mismatch")
	}
	return f, nil
}

// StoreMetadata writes key metadata to disk.
func (s *Store) StoreMetadata(m rkewire.KeyMetadata) error {
	path := metadataPath(s.root, m.KeyID)
	s.logger.Debug("storing metadata", "path", path)
	if err := writeFileExact(path, rkewire.EncodeKeyMetadata(m)); err != nil {
		s.logger.Error("store metadata failed", "path", path, "err", err)
		return rkeerrors.New(rkeerrors.StorageFail, err.Error())
	}
	return nil
}

// LoadMetadata reads key metadata from disk, verifying that the key_id
// field stored in the file matches the key_id used to look it up.
func (s *Store) LoadMetadata(keyID [16]byte) (rkewire.KeyMetadata, error) {
	path := metadataPath(s.root, keyID)
	raw, err := readFileExact(path, rkewire.KeyMetadataSize)
	if err != nil {
		s.logger.Error("load metadata failed", "path", path, "err", err)
		return rkewire.KeyMetadata{}, rkeerrors.New(rkeerrors.StorageFail, err.Error())
	}
	m, err := rkewire.DecodeKeyMetadata(raw)
	if err != nil {
		return rkewire.KeyMetadata{}, err
	}
	if m.KeyID != keyID {
		return rkewire.KeyMetadata{}, rkeerrors.New(rkeerrors.LoadMismatch, "metadata key_id mismatch")
	}
	return m, nil
}

// FragmentExists reports whether a fragment file exists for keyID.
func (s *Store) FragmentExists(keyID [16]byte, fragmentID uint8) bool {
	_, err := os.Stat(fragmentPath(s.root, keyID, fragmentID))
	return err == nil
}

// CountFragments counts how many fragment files (ids 1..255) exist for keyID.
func (s *Store) CountFragments(keyID [16]byte) int {
	count := 0
	for i := 1; i <= 255; i++ {
		if s.FragmentExists(keyID, uint8(i)) {
			count++
		}
	}
	return count
}

// LoadEncCoin loads a 440-byte encryption-coin file for (den, sn), validates
// its embedded coin_id against coinID, and returns the trailing 400-byte
// per-peer authentication-secret table.
func (s *Store) LoadEncCoin(den uint8, sn uint32, coinID uint16) ([400]byte, error) {
	var out [400]byte
	path := filepath.Join(s.root, "coins", fmt.Sprintf("%02x.%d.bin", den, sn))
	raw, err := readFileExact(path, 440)
	if err != nil {
		s.logger.Error("load enc coin failed", "path", path, "err", err)
		return out, rkeerrors.New(rkeerrors.CoinLoad, err.Error())
	}
	gotCoinID := uint16(raw[2])<<8 | uint16(raw[3])
	if gotCoinID != coinID {
		return out, rkeerrors.New(rkeerrors.CoinLoad, "coin_id mismatch")
	}
	copy(out[:], raw[40:440])
	return out, nil
}

func keysFilePath(root string, keyID [16]byte) string {
	return filepath.Join(root, "Keys", fmt.Sprintf("%032x", keyID))
}

// PostKey writes a posted key message for keyID, replacing any prior
// message in full.
func (s *Store) PostKey(keyID [16]byte, den uint8, sn uint32, payload []byte) error {
	path := keysFilePath(s.root, keyID)
	buf := make([]byte, 0, 1+4+len(payload))
	buf = append(buf, den)
	var snBytes [4]byte
	snBytes[0] = byte(sn >> 24)
	snBytes[1] = byte(sn >> 16)
	snBytes[2] = byte(sn >> 8)
	snBytes[3] = byte(sn)
	buf = append(buf, snBytes[:]...)
	buf = append(buf, payload...)
	if err := writeFileExact(path, buf); err != nil {
		s.logger.Error("post key failed", "path", path, "err", err)
		return rkeerrors.New(rkeerrors.Filesystem, err.Error())
	}
	return nil
}

// GetKey reads up to 512 bytes of a posted key message. A missing file is
// reported as rkeerrors.Filesystem rather than silently creating one.
func (s *Store) GetKey(keyID [16]byte) ([]byte, error) {
	path := keysFilePath(s.root, keyID)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, rkeerrors.New(rkeerrors.Filesystem, "no posted key for this key_id")
		}
		s.logger.Error("get key failed", "path", path, "err", err)
		return nil, rkeerrors.New(rkeerrors.Filesystem, err.Error())
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, rerr := f.Read(buf)
	if rerr != nil && !errors.Is(rerr, io.EOF) {
		return nil, rkeerrors.New(rkeerrors.Filesystem, rerr.Error())
	}
	return buf[:n], nil
}
