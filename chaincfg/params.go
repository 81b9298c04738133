// Package chaincfg defines the handful of network-level parameters the
// instant-finality core needs in order to tell peers apart and refuse to
// talk across networks: the wire magic, the genesis hash used during the
// handshake, the address prefixes, and the minimum protocol version this
// build still speaks to.
//
// Unlike a full node's chaincfg package, this one carries no proof-of-work
// limits, subsidy schedules, or a materialized genesis block -- mining and
// block validation are handled by components outside the core.
package chaincfg

import "github.com/decred/dcrd/chaincfg/chainhash"

// Net identifies which network a set of Params describes.
type Net uint32

const (
	// MainNet represents the main time-coin network.
	MainNet Net = 0xc01d7e4d

	// TestNet represents the test time-coin network.
	TestNet Net = 0x7e577e4d
)

// String returns the human readable name of the network.
func (n Net) String() string {
	switch n {
	case MainNet:
		return "mainnet"
	case TestNet:
		return "testnet"
	default:
		return "unknown"
	}
}

// Params holds the network parameters relevant to the wire protocol
// handshake, peer admission, and address encoding. DNS seeds,
// checkpoints, and difficulty parameters belong to the full-node/mining
// components and are deliberately not modeled here.
type Params struct {
	// Name is the human readable network name, e.g. "mainnet".
	Name string

	// Net is the magic value placed at the start of every wire frame
	// exchanged on this network. Peers that send a different magic are
	// disconnected without a response.
	Net Net

	// GenesisHash is exchanged during the handshake; a mismatch closes
	// the connection.
	GenesisHash chainhash.Hash

	// DefaultPeerPort is the default TCP port masternodes listen on for
	// this network.
	DefaultPeerPort uint16

	// MinSupportedProtocolVersion is the oldest handshake protocol
	// version this build will still accept connections from.
	MinSupportedProtocolVersion uint32

	// PubKeyAddrID etc. are the two-byte magic prefixes that identify
	// this network's version-0 address formats in base58.
	PubKeyAddrID     [2]byte
	PubKeyHashAddrID [2]byte
	PKHEdwardsAddrID [2]byte
	PKHSchnorrAddrID [2]byte
	ScriptHashAddrID [2]byte
}

// AddrIDPubKeyV0 returns the magic prefix bytes for version 0 pay-to-pubkey
// addresses.
func (p Params) AddrIDPubKeyV0() [2]byte { return p.PubKeyAddrID }

// AddrIDPubKeyHashECDSAV0 returns the magic prefix bytes for version 0
// pay-to-pubkey-hash addresses where the underlying pubkey is secp256k1
// and the signature algorithm is ECDSA.
func (p Params) AddrIDPubKeyHashECDSAV0() [2]byte { return p.PubKeyHashAddrID }

// AddrIDPubKeyHashEd25519V0 returns the magic prefix bytes for version 0
// pay-to-pubkey-hash addresses where the underlying pubkey and signature
// algorithm are Ed25519.
func (p Params) AddrIDPubKeyHashEd25519V0() [2]byte { return p.PKHEdwardsAddrID }

// AddrIDPubKeyHashSchnorrV0 returns the magic prefix bytes for version 0
// pay-to-pubkey-hash addresses where the underlying pubkey is secp256k1
// and the signature algorithm is Schnorr.
func (p Params) AddrIDPubKeyHashSchnorrV0() [2]byte { return p.PKHSchnorrAddrID }

// AddrIDScriptHashV0 returns the magic prefix bytes for version 0
// pay-to-script-hash addresses.
func (p Params) AddrIDScriptHashV0() [2]byte { return p.ScriptHashAddrID }

// ParamsForNet returns the registered Params for the given Net, or false if
// the network is unrecognized.
func ParamsForNet(n Net) (Params, bool) {
	switch n {
	case MainNet:
		return MainNetParams, true
	case TestNet:
		return TestNetParams, true
	default:
		return Params{}, false
	}
}
