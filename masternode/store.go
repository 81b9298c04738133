package masternode

import (
	"encoding/json"

	"github.com/go-errors/errors"
	"github.com/syndtr/goleveldb/leveldb"
)

// Store persists the registry to a local leveldb database so membership
// survives a daemon restart. Like the output snapshot store, this is a
// cache of local state: the authoritative record of each masternode's
// collateral lives on chain.
type Store struct {
	db *leveldb.DB
}

// OpenStore opens (creating if necessary) a leveldb database at path.
func OpenStore(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes every registered masternode, active or not, in a single
// batch.
func (r *Registry) Save(store *Store) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	batch := new(leveldb.Batch)
	for id, mn := range r.nodes {
		payload, err := json.Marshal(mn)
		if err != nil {
			return errors.Wrap(err, 0)
		}
		batch.Put([]byte(id), payload)
	}

	if err := store.db.Write(batch, nil); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

// Load restores every masternode recorded in store, overwriting any
// in-memory entry with the same ID. Intended to be called once, against
// an empty Registry, during daemon startup.
func (r *Registry) Load(store *Store) error {
	iter := store.db.NewIterator(nil, nil)
	defer iter.Release()

	r.mu.Lock()
	defer r.mu.Unlock()

	for iter.Next() {
		var mn Masternode
		if err := json.Unmarshal(iter.Value(), &mn); err != nil {
			return errors.Wrap(err, 0)
		}
		r.nodes[mn.ID] = mn
	}

	return iter.Error()
}
