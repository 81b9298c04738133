package finality

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/txscript/v4/stdaddr"
	"github.com/decred/slog"
	"github.com/go-errors/errors"

	"github.com/time-coin/timecoin/masternode"
	"github.com/time-coin/timecoin/tcwire"
	"github.com/time-coin/timecoin/utxo"
	"github.com/time-coin/timecoin/vote"
)

// DefaultFinalityWindow bounds how long a transaction's inputs sit in
// SpentPending collecting votes before the spend is treated as rejected
// and the inputs are released.
const DefaultFinalityWindow = 3 * time.Second

// ErrUnknownTransaction is returned when a vote or cancellation names a
// transaction the Coordinator is not currently tracking.
var ErrUnknownTransaction = errors.New("finality: unknown transaction")

// ErrDoubleSpend is returned when one or more of a transaction's inputs
// is not Unspent, i.e. another transaction already reserved or consumed
// it.
var ErrDoubleSpend = errors.New("finality: input not unspent")

// Outcome is how an in-flight transaction ultimately resolved.
type Outcome int

const (
	// OutcomeFinalized means quorum approved and the spend is
	// irrevocable.
	OutcomeFinalized Outcome = iota
	// OutcomeRejected means quorum rejected, or approval became
	// mathematically impossible.
	OutcomeRejected
	// OutcomeTimedOut means the finality window closed without quorum.
	OutcomeTimedOut
	// OutcomeCanceled means CancelPending reverted the transaction.
	OutcomeCanceled
)

// inFlight is the coordinator's bookkeeping for one transaction between
// broadcast and final commit.
type inFlight struct {
	pending PendingTx
	acq     *utxo.Acquisition
	tally   *vote.Tally
	signal  chan struct{}
	cancel  chan struct{}
}

// Coordinator drives a transaction from broadcast through voting to a
// final commit or rejection. One Coordinator serves an entire node; it
// holds no per-connection state, so it is shared across every peer
// handler.
type Coordinator struct {
	utxoMgr  *utxo.Manager
	registry *masternode.Registry
	tracker  *vote.Tracker

	window        time.Duration
	currentHeight func() uint32
	addrParams    stdaddr.AddressParams
	broadcast     func(tcwire.Message)
	observe       func(chainhash.Hash, Outcome)

	log slog.Logger

	mu     sync.Mutex
	active map[chainhash.Hash]*inFlight
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithFinalityWindow overrides DefaultFinalityWindow.
func WithFinalityWindow(d time.Duration) Option {
	return func(c *Coordinator) { c.window = d }
}

// WithHeightSource sets the function the Coordinator calls to resolve
// the current chain height when taking a masternode weight snapshot. If
// unset, height 0 is used, which is only correct in tests and networks
// with no masternode maturity delay.
func WithHeightSource(f func() uint32) Option {
	return func(c *Coordinator) { c.currentHeight = f }
}

// WithAddressParams enables destination-address validation on every
// broadcast transaction's outputs. If unset, addresses are treated as
// opaque strings.
func WithAddressParams(params stdaddr.AddressParams) Option {
	return func(c *Coordinator) { c.addrParams = params }
}

// WithBroadcaster sets the function used to relay an admitted
// transaction to connected peers so their masternodes can vote on it.
// If unset, the transaction is only tracked locally.
func WithBroadcaster(f func(tcwire.Message)) Option {
	return func(c *Coordinator) { c.broadcast = f }
}

// WithOutcomeObserver registers a function called once per transaction
// when its finality decision resolves, e.g. to drive metrics.
func WithOutcomeObserver(f func(chainhash.Hash, Outcome)) Option {
	return func(c *Coordinator) { c.observe = f }
}

// WithLogger attaches a subsystem logger.
func WithLogger(log slog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// NewCoordinator builds a Coordinator over an existing output manager and
// masternode registry.
func NewCoordinator(utxoMgr *utxo.Manager, registry *masternode.Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		utxoMgr:       utxoMgr,
		registry:      registry,
		tracker:       vote.NewTracker(),
		window:        DefaultFinalityWindow,
		currentHeight: func() uint32 { return 0 },
		log:           defaultLog,
		active:        make(map[chainhash.Hash]*inFlight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BroadcastTransaction admits a new transaction into the voting pipeline.
// It validates signatures, addresses, and conservation, atomically locks
// every input output for this transaction, moves each input into
// SpentPending against the current masternode weight snapshot, relays the
// transaction to peers, and returns once the transaction is registered.
// The vote outcome is resolved asynchronously by awaitOutcome.
func (c *Coordinator) BroadcastTransaction(ctx context.Context, pending PendingTx) error {
	if err := pending.VerifySignatures(); err != nil {
		return err
	}

	if c.addrParams != nil {
		if err := pending.CheckOutputs(c.addrParams); err != nil {
			return err
		}
	}

	if err := pending.CheckConservation(c.utxoMgr); err != nil {
		return err
	}

	acq, err := c.utxoMgr.AcquireAll(ctx, pending.Inputs)
	if err != nil {
		if errors.Is(err, utxo.ErrLockTimeout) {
			return fmt.Errorf("%s: %w", err.Error(), ErrDoubleSpend)
		}
		return err
	}

	if err := c.lockInputs(pending); err != nil {
		acq.Release()
		return err
	}

	snap := c.registry.TakeSnapshot(c.currentHeight())
	for _, ref := range pending.Inputs {
		if err := c.utxoMgr.BeginVoting(ref, snap.TotalWeight, "coordinator"); err != nil {
			c.rollback(pending.Inputs)
			acq.Release()
			return err
		}
	}

	tally := c.tracker.Open(pending.TxID(), snap)

	flight := &inFlight{
		pending: pending,
		acq:     acq,
		tally:   tally,
		signal:  make(chan struct{}, 1),
		cancel:  make(chan struct{}, 1),
	}

	c.mu.Lock()
	c.active[pending.TxID()] = flight
	c.mu.Unlock()

	go c.awaitOutcome(flight)

	if c.broadcast != nil {
		c.broadcast(&tcwire.TransactionBroadcast{Tx: pending.Tx})
	}

	c.log.Debugf("admitted tx %s: %d inputs locked, quorum weight %d",
		pending.TxID(), len(pending.Inputs), snap.TotalWeight)
	return nil
}

// lockInputs reserves every input for this transaction, rolling the
// already-locked ones back if any single input is unavailable so a
// failed admission never leaves a partial reservation behind.
func (c *Coordinator) lockInputs(pending PendingTx) error {
	txid := pending.TxID()
	for i, ref := range pending.Inputs {
		if err := c.utxoMgr.Lock(ref, txid, "coordinator"); err != nil {
			c.rollback(pending.Inputs[:i])
			if errors.Is(err, utxo.ErrDoubleLock) || errors.Is(err, utxo.ErrAlreadySpent) {
				return fmt.Errorf("%s: %w", ref.String(), ErrDoubleSpend)
			}
			return err
		}
	}
	return nil
}

// rollback releases inputs this admission attempt had already moved out
// of Unspent.
func (c *Coordinator) rollback(refs []utxo.OutRef) {
	for _, ref := range refs {
		if err := c.utxoMgr.Reject(ref, "coordinator"); err != nil {
			c.log.Errorf("rollback %s: %v", ref, err)
		}
	}
}

// RecordVote feeds one masternode's vote into the tally for txid,
// verifying sig against the voter's registered public key. Approvals are
// credited to every input's pending record. It is safe to call from any
// peer's receive loop concurrently.
func (c *Coordinator) RecordVote(txid chainhash.Hash, voterID string, approve bool, timestamp int64, sig []byte) error {
	c.mu.Lock()
	flight, ok := c.active[txid]
	c.mu.Unlock()
	if !ok {
		return errors.Wrap(ErrUnknownTransaction, 0)
	}

	decision, err := flight.tally.RecordVote(voterID, approve, timestamp, sig)
	if err != nil {
		if errors.Is(err, vote.ErrDuplicateVote) {
			return nil
		}
		return err
	}

	if approve {
		weight := flight.tally.Snapshot.WeightOf(voterID)
		for _, ref := range flight.pending.Inputs {
			if err := c.utxoMgr.AddApproval(ref, weight); err != nil {
				c.log.Warnf("credit approval on %s: %v", ref, err)
			}
		}
	}

	if decision != vote.Pending {
		select {
		case flight.signal <- struct{}{}:
		default:
		}
	}
	return nil
}

// CancelPending reverts a transaction whose inputs are in SpentPending
// back to Unspent, e.g. because a conflicting transaction was finalized
// first. It is a no-op if the transaction has already finalized or is
// not tracked.
func (c *Coordinator) CancelPending(txid chainhash.Hash) {
	c.mu.Lock()
	flight, ok := c.active[txid]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case flight.cancel <- struct{}{}:
	default:
	}
}

// awaitOutcome blocks until the vote tally for flight resolves, a
// cancellation arrives, or the finality window expires, then commits the
// resulting state transition: a select composing event arrival against a
// window timer.
func (c *Coordinator) awaitOutcome(flight *inFlight) {
	defer c.finish(flight.pending.TxID())
	defer flight.acq.Release()

	deadline := time.NewTimer(c.window)
	defer deadline.Stop()

	for {
		select {
		case <-flight.signal:
			switch flight.tally.Decision() {
			case vote.Approved:
				c.commitFinalized(flight)
				return
			case vote.Rejected:
				c.revertToUnspent(flight, "quorum rejected", OutcomeRejected)
				return
			default:
				// Spurious wakeup; keep waiting.
			}
		case <-deadline.C:
			c.revertToUnspent(flight, "finality window expired", OutcomeTimedOut)
			return
		case <-flight.cancel:
			c.revertToUnspent(flight, "canceled", OutcomeCanceled)
			return
		}
	}
}

// commitFinalized irrevocably finalizes the spend of every input and
// creates the transaction's outputs as immediately spendable.
func (c *Coordinator) commitFinalized(flight *inFlight) {
	for _, ref := range flight.pending.Inputs {
		if err := c.utxoMgr.Finalize(ref, "coordinator"); err != nil {
			c.log.Errorf("finalize %s for tx %s: %v", ref, flight.pending.TxID(), err)
			return
		}
	}
	c.createOutputs(flight.pending)
	c.notifyOutcome(flight.pending.TxID(), OutcomeFinalized)
	c.log.Infof("tx %s finalized with approve weight %d/%d",
		flight.pending.TxID(), flight.tally.ApproveWeight(), flight.tally.Snapshot.TotalWeight)
}

func (c *Coordinator) revertToUnspent(flight *inFlight, reason string, outcome Outcome) {
	for _, ref := range flight.pending.Inputs {
		if err := c.utxoMgr.Reject(ref, "coordinator"); err != nil {
			c.log.Errorf("revert %s for tx %s (%s): %v", ref, flight.pending.TxID(), reason, err)
			return
		}
	}
	c.notifyOutcome(flight.pending.TxID(), outcome)
	c.log.Debugf("tx %s reverted to unspent: %s", flight.pending.TxID(), reason)
}

func (c *Coordinator) notifyOutcome(txid chainhash.Hash, outcome Outcome) {
	if c.observe != nil {
		c.observe(txid, outcome)
	}
}

func (c *Coordinator) createOutputs(pending PendingTx) {
	for i, out := range pending.Tx.Outputs {
		ref := pending.Outputs[i]
		if err := c.utxoMgr.CreateOutput(ref, out.Amount, out.Address); err != nil {
			c.log.Errorf("create output %s: %v", ref, err)
		}
	}
}

func (c *Coordinator) finish(txid chainhash.Hash) {
	c.tracker.Close(txid)
	c.mu.Lock()
	delete(c.active, txid)
	c.mu.Unlock()
}

// ActiveCount returns the number of transactions currently in flight.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}
