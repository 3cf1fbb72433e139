package session

import (
	"encoding/json"

	"go.etcd.io/bbolt"
)

var sessionsBucket = []byte("sessions")

// BoltPersister is the optional on-disk implementation of Persister. It
// follows the same failed-write-logs-and-continues policy as the
// Gemini-OAuth daily counter file: a write error here never blocks the
// in-memory snapshot from advancing, it only means the on-disk copy lags.
type BoltPersister struct {
	db       *bbolt.DB
	onError  func(error)
}

// OpenBoltPersister opens (creating if necessary) a bbolt database at path
// for session snapshot persistence. onError, if non-nil, is invoked with any
// write failure; it must not block.
func OpenBoltPersister(path string, onError func(error)) (*BoltPersister, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(sessionsBucket)
		return e
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltPersister{db: db, onError: onError}, nil
}

// Close releases the underlying database handle.
func (p *BoltPersister) Close() error {
	return p.db.Close()
}

// Save writes a JSON-encoded snapshot under the session id. A marshal or
// write failure is reported via onError and otherwise swallowed: the
// in-memory snapshot has already advanced regardless.
func (p *BoltPersister) Save(id string, snap *Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		p.report(err)
		return
	}
	err = p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(id), data)
	})
	if err != nil {
		p.report(err)
	}
}

// Delete removes the persisted snapshot for id, if any.
func (p *BoltPersister) Delete(id string) {
	err := p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(id))
	})
	if err != nil {
		p.report(err)
	}
}

// Load returns the persisted snapshot for id, or nil if none is stored.
func (p *BoltPersister) Load(id string) (*Snapshot, error) {
	var snap *Snapshot
	err := p.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get([]byte(id))
		if data == nil {
			return nil
		}
		var s Snapshot
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		snap = &s
		return nil
	})
	return snap, err
}

func (p *BoltPersister) report(err error) {
	if p.onError != nil {
		p.onError(err)
	}
}
