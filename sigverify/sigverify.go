// Package sigverify checks vote and transaction signatures against a
// known public key. Every vote is verified on arrival, without
// exception; this is the one place that check happens.
package sigverify

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v3"
	"github.com/decred/dcrd/dcrec/secp256k1/v3/ecdsa"
	"github.com/go-errors/errors"
)

// ErrMalformedPubKey is returned when a masternode's registered public
// key cannot be parsed as a secp256k1 point.
var ErrMalformedPubKey = errors.New("sigverify: malformed public key")

// ErrMalformedSignature is returned when a vote's signature bytes are
// not a valid DER-encoded ECDSA signature.
var ErrMalformedSignature = errors.New("sigverify: malformed signature")

// Verify reports whether sig is a valid DER-encoded ECDSA signature over
// digest made with the private key corresponding to pubKey.
func Verify(pubKey, digest, sig []byte) (bool, error) {
	pub, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return false, errors.Wrap(ErrMalformedPubKey, 0)
	}

	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false, errors.Wrap(ErrMalformedSignature, 0)
	}

	return parsed.Verify(digest, pub), nil
}
