// Package vote tallies masternode votes on a transaction's finality and
// decides when a quorum has been reached.
//
// The tally/dedup shape follows the instant-send vote pool pattern
// (redundancy check and vote-count cap before a lock is confirmed),
// generalized from a fixed vote count to weighted quorum against a
// masternode.Snapshot.
package vote

import (
	"encoding/binary"
	"sync"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/go-errors/errors"

	"github.com/time-coin/timecoin/masternode"
	"github.com/time-coin/timecoin/sigverify"
)

// ErrDuplicateVote is returned when the same voter casts a second vote on
// the same transaction; the second vote is dropped, not an error condition
// callers need to react to beyond logging.
var ErrDuplicateVote = errors.New("vote: duplicate vote from voter")

// ErrUnknownVoter is returned when a vote names a voter not present in the
// snapshot this tally is evaluated against.
var ErrUnknownVoter = errors.New("vote: voter not in snapshot")

// ErrBadSignature is returned when a vote's signature does not verify
// against the voter's registered public key.
var ErrBadSignature = errors.New("vote: signature verification failed")

// Digest returns the byte string a vote's signature is computed over:
// the txid, the approve flag, and the timestamp. Both the voter and the
// tally must agree on this exact encoding.
func Digest(txid chainhash.Hash, approve bool, timestamp int64) []byte {
	buf := make([]byte, chainhash.HashSize+1+8)
	copy(buf, txid[:])
	if approve {
		buf[chainhash.HashSize] = 1
	}
	binary.BigEndian.PutUint64(buf[chainhash.HashSize+1:], uint64(timestamp))
	return buf
}

// Decision is the outcome of tallying a transaction's votes once quorum
// is reached.
type Decision int

const (
	// Pending means quorum has not yet been reached in either direction.
	Pending Decision = iota
	// Approved means at least two-thirds of the voting weight approved.
	Approved
	// Rejected means two-thirds approval has become impossible given the
	// remaining unvoted weight. Expiry of the finality window is not
	// tracked here.
	Rejected
)

// Ballot is one recorded vote.
type Ballot struct {
	VoterID   string
	Approve   bool
	Timestamp int64
	Signature []byte
}

// Tally holds the votes cast so far for one transaction against a fixed
// masternode weight snapshot: quorum is evaluated against the snapshot
// taken when voting opened, not against late-joining weight.
type Tally struct {
	TxID     chainhash.Hash
	Snapshot masternode.Snapshot

	mu            sync.Mutex
	ballots       map[string]Ballot
	approveWeight uint64
	rejectWeight  uint64
}

// NewTally starts a fresh tally for txid against snap.
func NewTally(txid chainhash.Hash, snap masternode.Snapshot) *Tally {
	return &Tally{
		TxID:     txid,
		Snapshot: snap,
		ballots:  make(map[string]Ballot),
	}
}

// RecordVote verifies sig against voterID's registered public key, then
// adds the ballot to the tally and returns the resulting Decision. A
// duplicate vote from the same voter is ignored and reported via
// ErrDuplicateVote; the previously recorded Decision for this tally is
// still returned so callers can keep acting on it. A vote from a voter
// not present in the snapshot (unregistered or immature) is recorded for
// audit but never moves the tally and is not signature-checked, since
// there is no registered key to check it against.
func (t *Tally) RecordVote(voterID string, approve bool, timestamp int64, sig []byte) (Decision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.ballots[voterID]; dup {
		log.Debugf("duplicate vote from %s on %s ignored", voterID, t.TxID)
		return t.decisionLocked(), errors.Wrap(ErrDuplicateVote, 0)
	}

	mn, known := t.Snapshot.Nodes[voterID]
	if !known {
		t.ballots[voterID] = Ballot{VoterID: voterID, Approve: approve, Timestamp: timestamp, Signature: sig}
		return t.decisionLocked(), errors.Wrap(ErrUnknownVoter, 0)
	}

	ok, err := sigverify.Verify(mn.PublicKey, Digest(t.TxID, approve, timestamp), sig)
	if err != nil || !ok {
		log.Debugf("bad signature from %s on %s", voterID, t.TxID)
		return t.decisionLocked(), errors.Wrap(ErrBadSignature, 0)
	}

	weight := t.Snapshot.WeightOf(voterID)
	t.ballots[voterID] = Ballot{VoterID: voterID, Approve: approve, Timestamp: timestamp, Signature: sig}
	if approve {
		t.approveWeight += weight
	} else {
		t.rejectWeight += weight
	}

	return t.decisionLocked(), nil
}

// Decision returns the current tally outcome without recording a vote.
func (t *Tally) Decision() Decision {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.decisionLocked()
}

// decisionLocked implements the inclusive two-thirds quorum rule,
// 3*approveWeight >= 2*totalWeight. It also detects the symmetric case
// where approval has become mathematically impossible, so that rejection
// can be signaled before every masternode has voted.
func (t *Tally) decisionLocked() Decision {
	total := t.Snapshot.TotalWeight
	if total == 0 {
		return Pending
	}

	if 3*t.approveWeight >= 2*total {
		return Approved
	}

	remaining := total - t.approveWeight - t.rejectWeight
	// Approval is impossible once even every remaining uncommitted vote
	// going to approve could not reach 2/3.
	if 3*(t.approveWeight+remaining) < 2*total {
		return Rejected
	}

	return Pending
}

// ApproveWeight returns the total weight of recorded approvals.
func (t *Tally) ApproveWeight() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.approveWeight
}

// RejectWeight returns the total weight of recorded rejections.
func (t *Tally) RejectWeight() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rejectWeight
}

// BallotCount returns the number of distinct voters recorded, including
// votes from unknown or immature masternodes.
func (t *Tally) BallotCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ballots)
}

// Tracker owns one Tally per in-flight transaction and is the unit other
// packages (finality.Coordinator) interact with.
type Tracker struct {
	mu      sync.Mutex
	tallies map[chainhash.Hash]*Tally
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		tallies: make(map[chainhash.Hash]*Tally),
	}
}

// Open starts tracking votes for txid against snap, replacing any
// previous tally for the same txid.
func (tr *Tracker) Open(txid chainhash.Hash, snap masternode.Snapshot) *Tally {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	t := NewTally(txid, snap)
	tr.tallies[txid] = t
	return t
}

// Get returns the tally for txid, if one is open.
func (tr *Tracker) Get(txid chainhash.Hash) (*Tally, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	t, ok := tr.tallies[txid]
	return t, ok
}

// Close stops tracking txid, e.g. once it is finalized or rejected.
func (tr *Tracker) Close(txid chainhash.Hash) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	delete(tr.tallies, txid)
}

// Len returns the number of transactions currently being voted on.
func (tr *Tracker) Len() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.tallies)
}
