package authpage

import (
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"raidax.dev/rke/rkeerrors"
)

var bucketPages = []byte("authenticity_pages")

// BoltPageStore is a bbolt-backed PageStore: each page is a single value
// under bucketPages, keyed by "denomination-pageIndex", serialized as
// RecordSize*recordsPerPage bytes. It exists so the dispatcher and its
// tests have a concrete, durable PageStore to run against without a real
// RAIDA network behind them.
type BoltPageStore struct {
	db             *bolt.DB
	recordsPerPage int
}

// NewBoltPageStore opens (creating if necessary) a bbolt database at
// filepath.Join(dir, "authpages.db"). recordsPerPage sizes every page;
// production deployments use a large page size, tests use small ones.
func NewBoltPageStore(dir string, recordsPerPage int) (*BoltPageStore, error) {
	if recordsPerPage <= 0 {
		return nil, rkeerrors.New(rkeerrors.InvalidParameter, "recordsPerPage must be positive")
	}
	db, err := bolt.Open(filepath.Join(dir, "authpages.db"), 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, rkeerrors.New(rkeerrors.StorageFail, "open authpages db: "+err.Error())
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPages)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, rkeerrors.New(rkeerrors.StorageFail, "create pages bucket: "+err.Error())
	}
	return &BoltPageStore{db: db, recordsPerPage: recordsPerPage}, nil
}

// Close releases the underlying bbolt database.
func (s *BoltPageStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordIndex returns the within-page record index for sn under this
// store's configured page size.
func (s *BoltPageStore) RecordIndex(sn uint32) int {
	return recordIndex(sn, s.recordsPerPage)
}

func encodePage(p *Page) []byte {
	out := make([]byte, len(p.Records)*RecordSize)
	for i, rec := range p.Records {
		copy(out[i*RecordSize:(i+1)*RecordSize], rec[:])
	}
	return out
}

func decodePage(raw []byte) *Page {
	n := len(raw) / RecordSize
	p := &Page{Records: make([][RecordSize]byte, n)}
	for i := 0; i < n; i++ {
		copy(p.Records[i][:], raw[i*RecordSize:(i+1)*RecordSize])
	}
	return p
}

// TakeLock loads (or lazily creates, zero-filled) the page for (den, sn)
// and locks it for the caller's exclusive use.
func (s *BoltPageStore) TakeLock(den uint8, sn uint32) (*Page, error) {
	key := pageKey(den, sn, s.recordsPerPage)
	var page *Page
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketPages).Get([]byte(key))
		if raw == nil {
			return nil
		}
		page = decodePage(raw)
		return nil
	})
	if err != nil {
		return nil, rkeerrors.New(rkeerrors.StorageFail, "read page: "+err.Error())
	}
	if page == nil {
		page = &Page{Records: make([][RecordSize]byte, s.recordsPerPage)}
	}
	page.key = key
	page.mu.Lock()
	return page, nil
}

// Release persists p (if dirty) and unlocks it.
func (s *BoltPageStore) Release(p *Page) error {
	if p == nil {
		return nil
	}
	defer p.mu.Unlock()
	if !p.Dirty {
		return nil
	}
	raw := encodePage(p)
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPages).Put([]byte(p.key), raw)
	}); err != nil {
		return rkeerrors.New(rkeerrors.StorageFail, "persist page: "+err.Error())
	}
	p.Dirty = false
	return nil
}
