/*
Package strtable implements the process-wide string, domain, and email
intern tables (spec §3/§5 "Global state"): insert-or-get by text, and
reverse lookup by the stable number every Object Container slot actually
stores. Backed by bbolt so interned numbers survive a process restart,
repurposing the teacher's bucket-per-kind BoltDB pattern for a concern the
teacher never had (no fixed wire/file format applies, unlike the
repository/blob-store/ISAM layers).
*/
package strtable

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/hadronzoo/deltadb/pkg/dberr"
	bolt "go.etcd.io/bbolt"
)

// Kind names one of the three process-wide intern tables (spec §3
// "string table, domain table, email table").
type Kind string

const (
	KindString Kind = "string"
	KindDomain Kind = "domain"
	KindEmail  Kind = "email"
)

var kinds = []Kind{KindString, KindDomain, KindEmail}

func bucketName(k Kind) []byte {
	return []byte("strtable_" + string(k))
}

func reverseBucketName(k Kind) []byte {
	return []byte("strtable_rev_" + string(k))
}

// Table is one process-wide intern table, backed by a bbolt database.
// Every repository sharing the same open process shares the same Table
// instances (spec §9 "Global state... structured as explicit singletons
// owned by the host process").
type Table struct {
	mu sync.Mutex
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt database at path and prepares
// buckets for every intern kind.
func Open(path string) (*Table, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindIO, "strtable.Open", "open bbolt db", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, k := range kinds {
			if _, err := tx.CreateBucketIfNotExists(bucketName(k)); err != nil {
				return err
			}
			if _, err := tx.CreateBucketIfNotExists(reverseBucketName(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, dberr.Wrap(dberr.KindIO, "strtable.Open", "create buckets", err)
	}
	return &Table{db: db}, nil
}

// Close closes the underlying bbolt database.
func (t *Table) Close() error {
	return t.db.Close()
}

// InternOrGet returns the stable number for text under kind, assigning a
// new one (the bucket's next sequence number, starting at 1) if text has
// never been interned before.
func (t *Table) InternOrGet(kind Kind, text string) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var num uint32
	err := t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(kind))
		rb := tx.Bucket(reverseBucketName(kind))
		if v := b.Get([]byte(text)); v != nil {
			num = binary.BigEndian.Uint32(v)
			return nil
		}
		n, err := b.NextSequence()
		if err != nil {
			return err
		}
		num = uint32(n)
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], num)
		if err := b.Put([]byte(text), buf[:]); err != nil {
			return err
		}
		return rb.Put(buf[:], []byte(text))
	})
	if err != nil {
		return 0, dberr.Wrap(dberr.KindIO, "strtable.InternOrGet", fmt.Sprintf("kind=%s", kind), err)
	}
	return num, nil
}

// TextOf reverse-looks-up the text behind a previously interned number.
func (t *Table) TextOf(kind Kind, num uint32) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var text string
	var found bool
	err := t.db.View(func(tx *bolt.Tx) error {
		rb := tx.Bucket(reverseBucketName(kind))
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], num)
		if v := rb.Get(buf[:]); v != nil {
			text = string(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, dberr.Wrap(dberr.KindIO, "strtable.TextOf", fmt.Sprintf("kind=%s", kind), err)
	}
	return text, found, nil
}
