package utxo

import (
	"context"
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/go-errors/errors"
)

// record is the manager's internal bookkeeping for one output. lock is a
// binary semaphore implemented as a capacity-1 channel rather than
// sync.Mutex so that AcquireAll can attempt a non-blocking acquisition of
// several locks and back out cleanly if any one of them is unavailable.
//
// The remaining fields past address are only meaningful in the state
// noted on each; Reject clears them when an output returns to Unspent.
type record struct {
	state   State
	amount  int64
	address string

	spender  chainhash.Hash // Locked and later
	lockedAt time.Time      // Locked

	approveWeight uint64    // SpentPending, frozen at Finalize
	totalWeight   uint64    // SpentPending and later
	votingStarted time.Time // SpentPending

	finalizedAt time.Time // SpentFinalized

	blockHeight uint32    // Confirmed
	confirmedAt time.Time // Confirmed

	lock chan struct{}
}

func newRecord(amount int64, address string) *record {
	r := &record{
		state:   Unspent,
		amount:  amount,
		address: address,
		lock:    make(chan struct{}, 1),
	}
	r.lock <- struct{}{}
	return r
}

func (r *record) tryLock() bool {
	select {
	case <-r.lock:
		return true
	default:
		return false
	}
}

func (r *record) unlock() {
	r.lock <- struct{}{}
}

// Entry is a point-in-time copy of one output's record, safe to hold
// after the operation that produced it returns.
type Entry struct {
	State   State
	Amount  int64
	Address string

	Spender       chainhash.Hash
	ApproveWeight uint64
	TotalWeight   uint64
	BlockHeight   uint32
}

// Manager is the authoritative in-memory store of every tracked output
// and its current state. It is safe for concurrent use: reads may run
// concurrently, and each mutating operation serializes on the manager's
// write lock. The per-record locks are taken only by AcquireAll, which
// holds them for the span of a whole-transaction operation.
type Manager struct {
	mu       sync.RWMutex
	records  map[OutRef]*record
	notifier Notifier
}

// NewManager returns an empty Manager that fans every transition out to
// notifier. A nil notifier is replaced with a no-op one.
func NewManager(notifier Notifier) *Manager {
	if notifier == nil {
		notifier = ChainNotifiers()
	}
	return &Manager{
		records:  make(map[OutRef]*record),
		notifier: notifier,
	}
}

// CreateOutput registers a brand-new Unspent output, either because its
// producing transaction finalized or during startup replay.
func (m *Manager) CreateOutput(ref OutRef, amount int64, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[ref]; ok {
		return errors.Wrap(ErrAlreadyExists, 0)
	}
	m.records[ref] = newRecord(amount, address)
	return nil
}

// GetState returns the current state of ref.
func (m *Manager) GetState(ref OutRef) (State, bool) {
	m.mu.RLock()
	rec, ok := m.records[ref]
	m.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return rec.state, true
}

// Get returns a copy of ref's full record.
func (m *Manager) Get(ref OutRef) (Entry, bool) {
	m.mu.RLock()
	rec, ok := m.records[ref]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	return Entry{
		State:         rec.state,
		Amount:        rec.amount,
		Address:       rec.address,
		Spender:       rec.spender,
		ApproveWeight: rec.approveWeight,
		TotalWeight:   rec.totalWeight,
		BlockHeight:   rec.blockHeight,
	}, true
}

// Amount returns the value of ref, for conservation checks.
func (m *Manager) Amount(ref OutRef) (int64, bool) {
	m.mu.RLock()
	rec, ok := m.records[ref]
	m.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return rec.amount, true
}

// Balance sums the Unspent outputs held by address.
func (m *Manager) Balance(address string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, rec := range m.records {
		if rec.address == address && rec.state == Unspent {
			total += rec.amount
		}
	}
	return total
}

// UTXOsForAddress returns the OutRefs of every Unspent output held by
// address, in canonical sorted order.
func (m *Manager) UTXOsForAddress(address string) []OutRef {
	m.mu.RLock()
	var refs []OutRef
	for ref, rec := range m.records {
		if rec.address == address && rec.state == Unspent {
			refs = append(refs, ref)
		}
	}
	m.mu.RUnlock()
	return SortOutRefs(refs)
}

// Acquisition holds the locks obtained by AcquireAll. It must be released
// exactly once.
type Acquisition struct {
	manager *Manager
	refs    []OutRef
	held    []OutRef
}

// Release unlocks every output held by this acquisition. Safe to call
// exactly once; calling it twice will attempt to send on an already-full
// channel and block, so callers should always pair AcquireAll with a
// single deferred Release.
func (a *Acquisition) Release() {
	a.manager.mu.RLock()
	defer a.manager.mu.RUnlock()
	for _, ref := range a.held {
		if rec, ok := a.manager.records[ref]; ok {
			rec.unlock()
		}
	}
}

// AcquireAll locks every output in refs, in the deterministic order
// SortOutRefs defines, and returns an Acquisition covering all of them.
// Locking is all-or-nothing: if any output cannot be locked immediately,
// every lock already obtained during this call is released before
// returning ErrLockTimeout, so a transaction can never hold a partial
// set of its inputs' locks.
//
// ctx is honored between attempts; a transaction that cannot acquire its
// locks promptly should not wedge the caller indefinitely.
func (m *Manager) AcquireAll(ctx context.Context, refs []OutRef) (*Acquisition, error) {
	ordered := SortOutRefs(refs)

	m.mu.RLock()
	recs := make([]*record, 0, len(ordered))
	for _, ref := range ordered {
		rec, ok := m.records[ref]
		if !ok {
			m.mu.RUnlock()
			return nil, errors.Wrap(ErrNotFound, 0)
		}
		recs = append(recs, rec)
	}
	m.mu.RUnlock()

	acq := &Acquisition{manager: m, refs: ordered}
	for i, rec := range recs {
		if ctx.Err() != nil {
			releaseHeld(recs[:i])
			return nil, ctx.Err()
		}
		if !rec.tryLock() {
			releaseHeld(recs[:i])
			return nil, errors.Wrap(ErrLockTimeout, 0)
		}
		acq.held = append(acq.held, ordered[i])
	}

	return acq, nil
}

func releaseHeld(recs []*record) {
	for _, rec := range recs {
		rec.unlock()
	}
}

// lookup fetches ref's record or fails with ErrNotFound. The caller must
// hold m.mu.
func (m *Manager) lookup(ref OutRef) (*record, error) {
	rec, ok := m.records[ref]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, 0)
	}
	return rec, nil
}

// commit applies a validated transition and emits the notification. The
// caller must hold m.mu.
func (m *Manager) commit(ref OutRef, rec *record, next State, originator string) error {
	old := rec.state
	if !old.CanTransition(next) {
		return &ErrIllegalTransition{From: old, To: next}
	}
	rec.state = next
	log.Debugf("%s: %s -> %s (%s)", ref, old, next, originator)

	m.notifier.Notify(Transition{
		OutRef:     ref,
		Address:    rec.address,
		OldState:   old,
		NewState:   next,
		Originator: originator,
		Timestamp:  time.Now(),
	})
	return nil
}

// Lock reserves ref for the spending transaction txid. Re-locking for
// the same txid is idempotent; a different txid fails with ErrDoubleLock
// while any later state fails with ErrAlreadySpent. Callers spending a
// whole transaction reserve every input via AcquireAll first so the set
// of locks is all-or-nothing.
func (m *Manager) Lock(ref OutRef, txid chainhash.Hash, originator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.lookup(ref)
	if err != nil {
		return err
	}

	switch rec.state {
	case Unspent:
	case Locked:
		if rec.spender == txid {
			return nil
		}
		return errors.Wrap(ErrDoubleLock, 0)
	default:
		return errors.Wrap(ErrAlreadySpent, 0)
	}

	rec.spender = txid
	rec.lockedAt = time.Now()
	return m.commit(ref, rec, Locked, originator)
}

// BeginVoting moves a Locked output into SpentPending, recording the
// total voting weight of the masternode snapshot the quorum for this
// spend will be evaluated against.
func (m *Manager) BeginVoting(ref OutRef, totalWeight uint64, originator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.lookup(ref)
	if err != nil {
		return err
	}
	if rec.state != Locked {
		return &ErrIllegalTransition{From: rec.state, To: SpentPending}
	}

	rec.approveWeight = 0
	rec.totalWeight = totalWeight
	rec.votingStarted = time.Now()
	return m.commit(ref, rec, SpentPending, originator)
}

// AddApproval credits weight toward the spend of ref. It does not change
// state and therefore emits no notification.
func (m *Manager) AddApproval(ref OutRef, weight uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.lookup(ref)
	if err != nil {
		return err
	}
	if rec.state != SpentPending {
		return &ErrIllegalTransition{From: rec.state, To: SpentPending}
	}
	rec.approveWeight += weight
	return nil
}

// Finalize irrevocably commits the spend of ref. The accumulated
// approval weight is frozen as the final vote count.
func (m *Manager) Finalize(ref OutRef, originator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.lookup(ref)
	if err != nil {
		return err
	}
	if rec.state != SpentPending {
		return &ErrIllegalTransition{From: rec.state, To: SpentFinalized}
	}

	rec.finalizedAt = time.Now()
	return m.commit(ref, rec, SpentFinalized, originator)
}

// Confirm records that the spending transaction was included in the
// block at height.
func (m *Manager) Confirm(ref OutRef, height uint32, originator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.lookup(ref)
	if err != nil {
		return err
	}
	if rec.state != SpentFinalized {
		return &ErrIllegalTransition{From: rec.state, To: Confirmed}
	}

	rec.blockHeight = height
	rec.confirmedAt = time.Now()
	return m.commit(ref, rec, Confirmed, originator)
}

// Reject releases a Locked or SpentPending output back to Unspent, e.g.
// because voting was rejected or the finality window expired.
func (m *Manager) Reject(ref OutRef, originator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.lookup(ref)
	if err != nil {
		return err
	}

	if err := m.commit(ref, rec, Unspent, originator); err != nil {
		return err
	}
	rec.spender = chainhash.Hash{}
	rec.lockedAt = time.Time{}
	rec.approveWeight = 0
	rec.totalWeight = 0
	rec.votingStarted = time.Time{}
	return nil
}

// Len returns the number of outputs currently tracked, regardless of
// state.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
