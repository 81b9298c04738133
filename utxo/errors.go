package utxo

import "github.com/go-errors/errors"

// ErrNotFound is returned when an operation names an OutRef this store
// has never seen.
var ErrNotFound = errors.New("utxo: output not found")

// ErrAlreadyExists is returned from CreateOutput when the OutRef is
// already tracked.
var ErrAlreadyExists = errors.New("utxo: output already exists")

// ErrLockTimeout is returned by AcquireAll when one of the requested
// locks is already held, e.g. by another in-flight transaction spending
// the same output. AcquireAll does not wait for the lock to be released.
var ErrLockTimeout = errors.New("utxo: timed out acquiring output locks")

// ErrDoubleLock is returned from Lock when the output is already Locked
// by a different transaction. Re-locking for the same transaction is
// idempotent and not an error.
var ErrDoubleLock = errors.New("utxo: output locked by another transaction")

// ErrAlreadySpent is returned from Lock when the output has progressed
// past Locked (SpentPending, SpentFinalized, or Confirmed) and can never
// be reserved again.
var ErrAlreadySpent = errors.New("utxo: output already spent")

// ErrInsufficientInputs describes a transaction whose declared inputs do
// not cover its declared outputs. No function in this package returns it;
// admission reports that case as finality.ErrConservationViolation.
var ErrInsufficientInputs = errors.New("utxo: inputs do not cover outputs")
