package chaincfg

import "github.com/decred/dcrd/chaincfg/chainhash"

// MainNetParams defines the network parameters for the main time-coin
// network.
var MainNetParams = Params{
	Name:                        "mainnet",
	Net:                         MainNet,
	GenesisHash:                 mainNetGenesisHash,
	DefaultPeerPort:             9108,
	MinSupportedProtocolVersion: 1,

	PubKeyAddrID:     [2]byte{0x1b, 0xc5},
	PubKeyHashAddrID: [2]byte{0x0f, 0x21},
	PKHEdwardsAddrID: [2]byte{0x0f, 0x01},
	PKHSchnorrAddrID: [2]byte{0x0e, 0xe3},
	ScriptHashAddrID: [2]byte{0x0e, 0xfc},
}

// mainNetGenesisHash is the hash of the mainnet genesis block. Block
// construction and validation are out of scope for the core; only the hash
// is needed here, to be compared against a peer's advertised genesis during
// the handshake.
var mainNetGenesisHash = chainhash.Hash{
	0x6f, 0x4a, 0x2a, 0x6f, 0x89, 0xae, 0x0e, 0x8e,
	0x22, 0x6a, 0x83, 0x35, 0x01, 0x6e, 0x27, 0x49,
	0xb1, 0x2c, 0x8d, 0x8d, 0xb8, 0x1a, 0x27, 0xa1,
	0x44, 0x2d, 0xbe, 0x2d, 0x4f, 0x95, 0xb1, 0x0e,
}
