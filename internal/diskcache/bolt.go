package diskcache

import (
	"fmt"

	"go.etcd.io/bbolt"
)

var bucketName = []byte("protocols")

// BoltStore persists known peer protocols in a bbolt database, for
// deployments that already keep other state in bbolt and would rather not
// introduce a second on-disk format. The caller owns the *bbolt.DB's
// lifetime; BoltStore only ever opens the one bucket it needs.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore wraps db, creating the backing bucket if it doesn't exist.
func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("avrorpc: diskcache: create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Get implements protocol.HandshakeCache.
func (s *BoltStore) Get(fingerprint [16]byte) (string, bool) {
	var text string
	var ok bool

	_ = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		value := b.Get(fingerprint[:])
		if value == nil {
			return nil
		}
		ok = true
		text = string(value)
		return nil
	})

	return text, ok
}

// Put implements protocol.HandshakeCache. A write failure leaves the cache
// unchanged rather than propagating, since a missed cache write only costs
// one extra NONE round trip the next time this peer connects, not a
// correctness problem.
func (s *BoltStore) Put(fingerprint [16]byte, protocolText string) {
	_ = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			var err error
			b, err = tx.CreateBucketIfNotExists(bucketName)
			if err != nil {
				return err
			}
		}
		return b.Put(fingerprint[:], []byte(protocolText))
	})
}
