package utxo

import (
	"context"
	"sync"
	"testing"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func ref(seed string, index uint32) OutRef {
	return OutRef{TxID: chainhash.HashH([]byte(seed)), Index: index}
}

func txid(seed string) chainhash.Hash {
	return chainhash.HashH([]byte(seed))
}

func TestCreateAndGetState(t *testing.T) {
	m := NewManager(nil)
	r := ref("tx1", 0)

	require.NoError(t, m.CreateOutput(r, 1000, "addr1"))

	state, ok := m.GetState(r)
	require.True(t, ok)
	require.Equal(t, Unspent, state)
}

func TestCreateDuplicateErrors(t *testing.T) {
	m := NewManager(nil)
	r := ref("tx1", 0)

	require.NoError(t, m.CreateOutput(r, 1000, "addr1"))
	require.ErrorIs(t, m.CreateOutput(r, 1000, "addr1"), ErrAlreadyExists)
}

func TestFullLifecycle(t *testing.T) {
	m := NewManager(nil)
	r := ref("tx1", 0)
	spend := txid("spend")
	require.NoError(t, m.CreateOutput(r, 1000, "addr1"))

	require.NoError(t, m.Lock(r, spend, "mn-1"))
	require.NoError(t, m.BeginVoting(r, 30, "mn-1"))
	require.NoError(t, m.AddApproval(r, 10))
	require.NoError(t, m.AddApproval(r, 10))
	require.NoError(t, m.Finalize(r, "mn-1"))
	require.NoError(t, m.Confirm(r, 42, "chain"))

	entry, ok := m.Get(r)
	require.True(t, ok)
	require.Equal(t, Confirmed, entry.State)
	require.Equal(t, spend, entry.Spender)
	require.Equal(t, uint64(20), entry.ApproveWeight)
	require.Equal(t, uint64(30), entry.TotalWeight)
	require.Equal(t, uint32(42), entry.BlockHeight)
}

func TestLockIsIdempotentForSameTx(t *testing.T) {
	m := NewManager(nil)
	r := ref("tx1", 0)
	spend := txid("spend")
	require.NoError(t, m.CreateOutput(r, 1000, "addr1"))

	require.NoError(t, m.Lock(r, spend, "mn-1"))
	require.NoError(t, m.Lock(r, spend, "mn-1"))

	state, _ := m.GetState(r)
	require.Equal(t, Locked, state)
}

func TestLockByDifferentTxFails(t *testing.T) {
	m := NewManager(nil)
	r := ref("tx1", 0)
	require.NoError(t, m.CreateOutput(r, 1000, "addr1"))

	require.NoError(t, m.Lock(r, txid("spend-a"), "mn-1"))
	require.ErrorIs(t, m.Lock(r, txid("spend-b"), "mn-1"), ErrDoubleLock)
}

func TestLockAfterFinalizeFails(t *testing.T) {
	m := NewManager(nil)
	r := ref("tx1", 0)
	require.NoError(t, m.CreateOutput(r, 1000, "addr1"))
	require.NoError(t, m.Lock(r, txid("spend-a"), "mn-1"))
	require.NoError(t, m.BeginVoting(r, 3, "mn-1"))

	require.ErrorIs(t, m.Lock(r, txid("spend-b"), "mn-1"), ErrAlreadySpent)

	require.NoError(t, m.Finalize(r, "mn-1"))
	require.ErrorIs(t, m.Lock(r, txid("spend-b"), "mn-1"), ErrAlreadySpent)
}

func TestFinalizeRequiresVoting(t *testing.T) {
	m := NewManager(nil)
	r := ref("tx1", 0)
	require.NoError(t, m.CreateOutput(r, 1000, "addr1"))

	err := m.Finalize(r, "mn-1")
	var target *ErrIllegalTransition
	require.ErrorAs(t, err, &target)
	require.Equal(t, Unspent, target.From)
}

func TestRejectReleasesLock(t *testing.T) {
	m := NewManager(nil)
	r := ref("tx1", 0)
	require.NoError(t, m.CreateOutput(r, 1000, "addr1"))
	require.NoError(t, m.Lock(r, txid("spend-a"), "mn-1"))
	require.NoError(t, m.Reject(r, "mn-1"))

	entry, _ := m.Get(r)
	require.Equal(t, Unspent, entry.State)
	require.Equal(t, chainhash.Hash{}, entry.Spender)

	// The output is spendable again, by a different transaction.
	require.NoError(t, m.Lock(r, txid("spend-b"), "mn-1"))
}

func TestRejectFromPendingClearsWeights(t *testing.T) {
	m := NewManager(nil)
	r := ref("tx1", 0)
	require.NoError(t, m.CreateOutput(r, 1000, "addr1"))
	require.NoError(t, m.Lock(r, txid("spend-a"), "mn-1"))
	require.NoError(t, m.BeginVoting(r, 5, "mn-1"))
	require.NoError(t, m.AddApproval(r, 2))
	require.NoError(t, m.Reject(r, "mn-1"))

	entry, _ := m.Get(r)
	require.Equal(t, Unspent, entry.State)
	require.Zero(t, entry.ApproveWeight)
	require.Zero(t, entry.TotalWeight)
}

func TestBalanceCountsOnlyUnspent(t *testing.T) {
	m := NewManager(nil)
	r1 := ref("tx1", 0)
	r2 := ref("tx1", 1)
	r3 := ref("tx2", 0)
	require.NoError(t, m.CreateOutput(r1, 100, "addr1"))
	require.NoError(t, m.CreateOutput(r2, 250, "addr1"))
	require.NoError(t, m.CreateOutput(r3, 999, "addr2"))

	require.NoError(t, m.Lock(r2, txid("spend"), "mn-1"))

	require.Equal(t, int64(100), m.Balance("addr1"))
	require.Equal(t, int64(999), m.Balance("addr2"))
	require.Zero(t, m.Balance("addr3"))
}

func TestUTXOsForAddressSortedAndFiltered(t *testing.T) {
	m := NewManager(nil)
	r1 := ref("tx1", 1)
	r2 := ref("tx1", 0)
	require.NoError(t, m.CreateOutput(r1, 1, "addr1"))
	require.NoError(t, m.CreateOutput(r2, 1, "addr1"))

	refs := m.UTXOsForAddress("addr1")
	require.Equal(t, []OutRef{r2, r1}, refs)

	require.NoError(t, m.Lock(r2, txid("spend"), "mn-1"))
	require.Equal(t, []OutRef{r1}, m.UTXOsForAddress("addr1"))
}

func TestNotifierReceivesTransitions(t *testing.T) {
	var mu sync.Mutex
	var seen []Transition

	notifier := NotifierFunc(func(tr Transition) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, tr)
	})

	m := NewManager(notifier)
	r := ref("tx1", 0)
	require.NoError(t, m.CreateOutput(r, 1000, "addr1"))
	require.NoError(t, m.Lock(r, txid("spend"), "mn-1"))
	require.NoError(t, m.Reject(r, "mn-1"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	require.Equal(t, Unspent, seen[0].OldState)
	require.Equal(t, Locked, seen[0].NewState)
	require.Equal(t, "addr1", seen[0].Address)
	require.False(t, seen[0].Timestamp.IsZero())
	require.Equal(t, Locked, seen[1].OldState)
	require.Equal(t, Unspent, seen[1].NewState)
}

func TestAddApprovalEmitsNoNotification(t *testing.T) {
	var count int
	m := NewManager(NotifierFunc(func(Transition) { count++ }))
	r := ref("tx1", 0)
	require.NoError(t, m.CreateOutput(r, 1000, "addr1"))
	require.NoError(t, m.Lock(r, txid("spend"), "mn-1"))
	require.NoError(t, m.BeginVoting(r, 3, "mn-1"))

	before := count
	require.NoError(t, m.AddApproval(r, 1))
	require.Equal(t, before, count)
}

func TestAcquireAllIsAllOrNothing(t *testing.T) {
	m := NewManager(nil)
	r1 := ref("tx1", 0)
	r2 := ref("tx1", 1)
	require.NoError(t, m.CreateOutput(r1, 1000, "addr1"))
	require.NoError(t, m.CreateOutput(r2, 1000, "addr1"))

	ctx := context.Background()
	acq1, err := m.AcquireAll(ctx, []OutRef{r1})
	require.NoError(t, err)
	defer acq1.Release()

	_, err = m.AcquireAll(ctx, []OutRef{r1, r2})
	require.ErrorIs(t, err, ErrLockTimeout)

	// r2 must not have been left locked by the failed attempt.
	acq2, err := m.AcquireAll(ctx, []OutRef{r2})
	require.NoError(t, err)
	acq2.Release()
}

func TestAcquireAllUnknownOutputErrors(t *testing.T) {
	m := NewManager(nil)
	_, err := m.AcquireAll(context.Background(), []OutRef{ref("ghost", 0)})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAcquireAllDeterministicOrderAvoidsDeadlock(t *testing.T) {
	m := NewManager(nil)
	r1 := ref("a", 0)
	r2 := ref("b", 0)
	require.NoError(t, m.CreateOutput(r1, 1, "x"))
	require.NoError(t, m.CreateOutput(r2, 1, "x"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)

	go func() {
		defer wg.Done()
		acq, err := m.AcquireAll(context.Background(), []OutRef{r1, r2})
		errs[0] = err
		if err == nil {
			acq.Release()
		}
	}()
	go func() {
		defer wg.Done()
		acq, err := m.AcquireAll(context.Background(), []OutRef{r2, r1})
		errs[1] = err
		if err == nil {
			acq.Release()
		}
	}()

	wg.Wait()
	// At least one must succeed; the deterministic order means neither
	// goroutine can hold one lock while waiting on the other.
	require.True(t, errs[0] == nil || errs[1] == nil)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenSnapshotStore(dir)
	require.NoError(t, err)
	defer store.Close()

	m := NewManager(nil)
	spent := ref("tx1", 0)
	free := ref("tx2", 0)
	spend := txid("spend")
	require.NoError(t, m.CreateOutput(spent, 500, "addr1"))
	require.NoError(t, m.CreateOutput(free, 700, "addr2"))
	require.NoError(t, m.Lock(spent, spend, "mn-1"))
	require.NoError(t, m.BeginVoting(spent, 3, "mn-1"))
	require.NoError(t, m.AddApproval(spent, 2))
	require.NoError(t, m.Finalize(spent, "mn-1"))
	require.NoError(t, m.Save(store))

	loaded := NewManager(nil)
	require.NoError(t, loaded.Load(store))

	entry, ok := loaded.Get(spent)
	require.True(t, ok)
	require.Equal(t, SpentFinalized, entry.State)
	require.Equal(t, spend, entry.Spender)
	require.Equal(t, uint64(2), entry.ApproveWeight)
	require.Equal(t, int64(500), entry.Amount)

	state, ok := loaded.GetState(free)
	require.True(t, ok)
	require.Equal(t, Unspent, state)
}

func TestSaveRevertsNonDurableStates(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenSnapshotStore(dir)
	require.NoError(t, err)
	defer store.Close()

	m := NewManager(nil)
	locked := ref("tx1", 0)
	pending := ref("tx2", 0)
	require.NoError(t, m.CreateOutput(locked, 100, "addr1"))
	require.NoError(t, m.CreateOutput(pending, 200, "addr1"))
	require.NoError(t, m.Lock(locked, txid("spend-a"), "mn-1"))
	require.NoError(t, m.Lock(pending, txid("spend-b"), "mn-1"))
	require.NoError(t, m.BeginVoting(pending, 3, "mn-1"))
	require.NoError(t, m.Save(store))

	loaded := NewManager(nil)
	require.NoError(t, loaded.Load(store))

	for _, r := range []OutRef{locked, pending} {
		state, ok := loaded.GetState(r)
		require.True(t, ok)
		require.Equal(t, Unspent, state)
	}

	// Reverted outputs must be spendable again after the restart.
	require.NoError(t, loaded.Lock(locked, txid("spend-c"), "mn-1"))
}
