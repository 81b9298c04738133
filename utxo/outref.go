package utxo

import (
	"fmt"
	"sort"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// OutRef identifies a single output by the transaction that created it
// and the output's index within that transaction. It is the primary key
// of the entire state store.
type OutRef struct {
	TxID  chainhash.Hash
	Index uint32
}

func (o OutRef) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Index)
}

// Less orders OutRefs first by TxID bytes, then by Index. Used to fix a
// deterministic acquisition order across a transaction's inputs so that
// concurrent multi-input spends can never deadlock against each other;
// inputs are always locked in this order, never in the order they happen
// to appear in the transaction.
func (o OutRef) Less(other OutRef) bool {
	if cmp := o.TxID.String(); cmp != other.TxID.String() {
		return cmp < other.TxID.String()
	}
	return o.Index < other.Index
}

// SortOutRefs returns a copy of refs sorted into the canonical lock
// acquisition order.
func SortOutRefs(refs []OutRef) []OutRef {
	sorted := make([]OutRef, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Less(sorted[j])
	})
	return sorted
}
