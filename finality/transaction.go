// Package finality coordinates the instant-finality decision for a
// single transaction: locking its inputs, opening a vote tally, waiting
// for quorum or the finality window to expire, and committing the
// resulting state transitions.
package finality

import (
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/txscript/v4/stdaddr"
	"github.com/go-errors/errors"

	"github.com/time-coin/timecoin/sigverify"
	"github.com/time-coin/timecoin/tcwire"
	"github.com/time-coin/timecoin/utxo"
)

// ErrConservationViolation is returned when a transaction's inputs do not
// cover its declared outputs.
var ErrConservationViolation = errors.New("finality: sum of inputs is less than sum of outputs")

// ErrUnknownInput is returned when a transaction spends an output this
// core has no record of.
var ErrUnknownInput = errors.New("finality: input references unknown output")

// ErrInvalidSignature is returned when an input's signature does not
// verify against the public key carried alongside it.
var ErrInvalidSignature = errors.New("finality: invalid input signature")

// ErrInvalidAddress is returned when a transaction output names a
// destination that does not decode as an address on this network.
var ErrInvalidAddress = errors.New("finality: undecodable output address")

// PendingTx is the finality coordinator's working copy of a broadcast
// transaction: its wire form plus the OutRefs derived from it.
type PendingTx struct {
	Tx      tcwire.Tx
	Inputs  []utxo.OutRef
	Outputs []utxo.OutRef
}

// NewPendingTx derives a PendingTx from a wire Tx, computing the OutRef
// of each of its own outputs (txid:index) up front.
func NewPendingTx(tx tcwire.Tx) PendingTx {
	outputs := make([]utxo.OutRef, len(tx.Outputs))
	for i := range tx.Outputs {
		outputs[i] = utxo.OutRef{TxID: tx.ID, Index: uint32(i)}
	}

	inputs := make([]utxo.OutRef, len(tx.Inputs))
	for i, in := range tx.Inputs {
		inputs[i] = utxo.OutRef{TxID: in.PrevOut.TxID, Index: in.PrevOut.Index}
	}

	return PendingTx{Tx: tx, Inputs: inputs, Outputs: outputs}
}

// CheckConservation verifies that the sum of the transaction's declared
// inputs (looked up in mgr) is at least the sum of its declared outputs;
// the difference is the fee. It returns ErrUnknownInput if an input does
// not resolve, wrapping the specific missing OutRef.
func (p PendingTx) CheckConservation(mgr *utxo.Manager) error {
	var inputTotal int64
	for _, ref := range p.Inputs {
		amount, ok := mgr.Amount(ref)
		if !ok {
			return fmt.Errorf("%s: %w", ref.String(), ErrUnknownInput)
		}
		inputTotal += amount
	}

	var outputTotal int64
	for _, out := range p.Tx.Outputs {
		outputTotal += out.Amount
	}

	if inputTotal < outputTotal {
		return errors.Wrap(ErrConservationViolation, 0)
	}
	return nil
}

// VerifySignatures checks every input's signature against the public key
// carried alongside it, over the transaction id.
func (p PendingTx) VerifySignatures() error {
	digest := p.Tx.ID[:]
	for i, in := range p.Tx.Inputs {
		ok, err := sigverify.Verify(in.PubKey, digest, in.Signature)
		if err != nil || !ok {
			return fmt.Errorf("input %d (%s): %w", i, p.Inputs[i], ErrInvalidSignature)
		}
	}
	return nil
}

// CheckOutputs verifies that every output's destination decodes as a
// valid address under params.
func (p PendingTx) CheckOutputs(params stdaddr.AddressParams) error {
	for i, out := range p.Tx.Outputs {
		if _, err := stdaddr.DecodeAddress(out.Address, params); err != nil {
			return fmt.Errorf("output %d (%q): %w", i, out.Address, ErrInvalidAddress)
		}
	}
	return nil
}

// TxID returns the transaction's identifying hash.
func (p PendingTx) TxID() chainhash.Hash { return p.Tx.ID }
