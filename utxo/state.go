// Package utxo implements the instant-finality core's output lifecycle:
// the five-state machine each transaction output moves through, the
// exclusive-lock discipline that makes multi-input transactions atomic,
// and the notification hooks other packages hang subscriptions off of.
//
// The resolver-style state machine here follows the contract resolver
// pattern (each resolver owns a small enum of states and the legal
// transitions between them); the lock-then-mutate shape around spends
// follows the tx lock pool's AddHeight/Confirm bookkeeping, adapted from
// vote counts to this package's explicit state enum.
package utxo

import "fmt"

// State is one point in an output's lifecycle.
type State uint8

const (
	// Unspent means the output exists and is available to be spent.
	Unspent State = iota
	// Locked means a transaction spending this output has been
	// broadcast and accepted into voting; the output is reserved for
	// that transaction.
	Locked
	// SpentPending means voting on the spending transaction is under
	// way and approvals are accumulating against the weight snapshot
	// taken when voting began.
	SpentPending
	// SpentFinalized means the spending transaction reached quorum;
	// the output can never return to Unspent.
	SpentFinalized
	// Confirmed means the spending transaction was additionally
	// included in a mined block. Block production is driven by a
	// separate chain-sync component; this package only records the
	// height it reports.
	Confirmed
)

func (s State) String() string {
	switch s {
	case Unspent:
		return "Unspent"
	case Locked:
		return "Locked"
	case SpentPending:
		return "SpentPending"
	case SpentFinalized:
		return "SpentFinalized"
	case Confirmed:
		return "Confirmed"
	default:
		return "Unknown"
	}
}

// CanTransition reports whether moving from s to next is a legal
// transition. The graph is linear except for two retrograde edges:
// Locked->Unspent and SpentPending->Unspent, taken only on rejection or
// voting-window expiry. Nothing leaves SpentFinalized except Confirmed,
// and nothing leaves Confirmed.
func (s State) CanTransition(next State) bool {
	switch s {
	case Unspent:
		return next == Locked
	case Locked:
		return next == SpentPending || next == Unspent
	case SpentPending:
		return next == SpentFinalized || next == Unspent
	case SpentFinalized:
		return next == Confirmed
	case Confirmed:
		return false
	default:
		return false
	}
}

// ErrIllegalTransition is returned when a caller asks for a state change
// that CanTransition forbids.
type ErrIllegalTransition struct {
	From, To State
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("utxo: illegal transition %s -> %s", e.From, e.To)
}
