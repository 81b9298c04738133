package chaincfg

import "github.com/decred/dcrd/chaincfg/chainhash"

// TestNetParams defines the network parameters for the test time-coin
// network.
var TestNetParams = Params{
	Name:                        "testnet",
	Net:                         TestNet,
	GenesisHash:                 testNetGenesisHash,
	DefaultPeerPort:             19108,
	MinSupportedProtocolVersion: 1,

	PubKeyAddrID:     [2]byte{0x28, 0xf7},
	PubKeyHashAddrID: [2]byte{0x0f, 0x0d},
	PKHEdwardsAddrID: [2]byte{0x0e, 0xed},
	PKHSchnorrAddrID: [2]byte{0x0e, 0xcf},
	ScriptHashAddrID: [2]byte{0x0e, 0xe8},
}

var testNetGenesisHash = chainhash.Hash{
	0x2d, 0x06, 0x77, 0x99, 0xd1, 0x35, 0x00, 0x31,
	0x4b, 0xfd, 0x95, 0x7e, 0x96, 0x9c, 0x24, 0x15,
	0x6b, 0x3c, 0x14, 0x3f, 0xbc, 0x44, 0x0a, 0x4c,
	0x1d, 0x70, 0xb5, 0x0f, 0xc3, 0x1c, 0xc1, 0x4d,
}
