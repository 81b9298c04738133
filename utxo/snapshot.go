package utxo

import (
	"encoding/binary"
	"encoding/json"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/go-errors/errors"
	"github.com/syndtr/goleveldb/leveldb"
)

// SnapshotStore persists the Manager's output records to a local
// leveldb database so that state survives a daemon restart without
// requiring the caller to replay every transaction from genesis. This is
// an optimization, not a source of truth: the persisted records are a
// cache of in-memory state, and long-term authoritative block storage
// lives in a separate chain component.
type SnapshotStore struct {
	db *leveldb.DB
}

// OpenSnapshotStore opens (creating if necessary) a leveldb database at
// path.
func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return &SnapshotStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// persistedRecord is the on-disk shape of a record, independent of the
// in-memory lock channel. Spender, Votes, and BlockHeight are only
// meaningful for SpentFinalized/Confirmed records.
type persistedRecord struct {
	State       State          `json:"state"`
	Amount      int64          `json:"amount"`
	Address     string         `json:"address"`
	Spender     chainhash.Hash `json:"spender,omitempty"`
	Votes       uint64         `json:"votes,omitempty"`
	TotalWeight uint64         `json:"total_weight,omitempty"`
	BlockHeight uint32         `json:"block_height,omitempty"`
}

func outRefKey(ref OutRef) []byte {
	key := make([]byte, chainhashSize+4)
	copy(key, ref.TxID[:])
	binary.BigEndian.PutUint32(key[chainhashSize:], ref.Index)
	return key
}

const chainhashSize = 32

// Save writes every currently tracked output to the snapshot store in a
// single leveldb batch. Only the durable states are written as-is:
// Locked and SpentPending records are persisted as Unspent, so a
// restarted daemon never resurrects a half-voted spend. Senders of
// transactions caught mid-vote by a crash must rebroadcast, which is
// safe because nothing treats SpentPending as final.
func (m *Manager) Save(store *SnapshotStore) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	batch := new(leveldb.Batch)
	for ref, rec := range m.records {
		pr := persistedRecord{
			State:   rec.state,
			Amount:  rec.amount,
			Address: rec.address,
		}
		switch rec.state {
		case Locked, SpentPending:
			pr.State = Unspent
		case SpentFinalized, Confirmed:
			pr.Spender = rec.spender
			pr.Votes = rec.approveWeight
			pr.TotalWeight = rec.totalWeight
			pr.BlockHeight = rec.blockHeight
		}

		payload, err := json.Marshal(pr)
		if err != nil {
			return errors.Wrap(err, 0)
		}
		batch.Put(outRefKey(ref), payload)
	}

	if err := store.db.Write(batch, nil); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

// Load restores every output recorded in store into m, overwriting any
// in-memory record with the same OutRef. Intended to be called once,
// against an empty Manager, during daemon startup.
func (m *Manager) Load(store *SnapshotStore) error {
	iter := store.db.NewIterator(nil, nil)
	defer iter.Release()

	m.mu.Lock()
	defer m.mu.Unlock()

	for iter.Next() {
		key := iter.Key()
		if len(key) != chainhashSize+4 {
			continue
		}

		var ref OutRef
		copy(ref.TxID[:], key[:chainhashSize])
		ref.Index = binary.BigEndian.Uint32(key[chainhashSize:])

		var pr persistedRecord
		if err := json.Unmarshal(iter.Value(), &pr); err != nil {
			return errors.Wrap(err, 0)
		}

		rec := newRecord(pr.Amount, pr.Address)
		rec.state = pr.State
		rec.spender = pr.Spender
		rec.approveWeight = pr.Votes
		rec.totalWeight = pr.TotalWeight
		rec.blockHeight = pr.BlockHeight
		m.records[ref] = rec
	}

	return iter.Error()
}
