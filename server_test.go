package timecoin

import (
	"context"
	"encoding/hex"
	"net"
	"testing"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v3"
	"github.com/decred/dcrd/dcrec/secp256k1/v3/ecdsa"
	"github.com/stretchr/testify/require"

	"github.com/time-coin/timecoin/chaincfg"
	"github.com/time-coin/timecoin/masternode"
	"github.com/time-coin/timecoin/peer"
	"github.com/time-coin/timecoin/tcwire"
	"github.com/time-coin/timecoin/utxo"
)

func testServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()

	cfg := DefaultConfig()
	cfg.NetParams = chaincfg.TestNetParams
	cfg.FinalityWindow = 200 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := NewServer(cfg, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Stop() })
	return s
}

func testPeer(t *testing.T) *peer.Peer {
	t.Helper()
	connA, connB := net.Pipe()
	t.Cleanup(func() { connA.Close(); connB.Close() })
	return peer.NewPeer(connA, peer.Config{Params: chaincfg.TestNetParams}, true)
}

func signedSpend(t *testing.T, src utxo.OutRef, seed string, amount int64) tcwire.Tx {
	t.Helper()
	txID := chainhash.HashH([]byte(seed))
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	sig := ecdsa.Sign(priv, txID[:])

	return tcwire.Tx{
		ID: txID,
		Inputs: []tcwire.TxInput{
			{
				PrevOut:   tcwire.OutRef{TxID: src.TxID, Index: src.Index},
				PubKey:    priv.PubKey().SerializeCompressed(),
				Signature: sig.Serialize(),
			},
		},
		Outputs: []tcwire.TxOutput{{Amount: amount, Address: "addr-dst"}},
	}
}

func TestNewServerWiring(t *testing.T) {
	s := testServer(t, nil)
	require.NotNil(t, s.UTXO)
	require.NotNil(t, s.Masternodes)
	require.NotNil(t, s.Coordinator)
	require.NotNil(t, s.Fanout)
	require.NotNil(t, s.Peers)
}

func TestNewServerRejectsMalformedVoteKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NetParams = chaincfg.TestNetParams
	cfg.VotePrivKey = "not-hex"

	_, err := NewServer(cfg, nil, nil)
	require.ErrorIs(t, err, ErrBadVoteKey)
}

func TestOnTransactionBroadcastAdmitsToVoting(t *testing.T) {
	s := testServer(t, nil)

	srcRef := utxo.OutRef{TxID: chainhash.HashH([]byte("src")), Index: 0}
	require.NoError(t, s.UTXO.CreateOutput(srcRef, 1000, "addr-src"))

	tx := signedSpend(t, srcRef, "spend", 500)

	p := testPeer(t)
	s.OnTransactionBroadcast(p, &tcwire.TransactionBroadcast{Tx: tx})

	require.Eventually(t, func() bool {
		state, ok := s.UTXO.GetState(srcRef)
		return ok && state == utxo.SpentPending
	}, time.Second, 5*time.Millisecond)
}

func TestSubmitTransactionSelfVoteFinalizes(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	s := testServer(t, func(cfg *Config) {
		cfg.VotePrivKey = hex.EncodeToString(priv.Serialize())
	})

	// This node is the network's only masternode, so its own approval is
	// the whole quorum.
	pub := priv.PubKey().SerializeCompressed()
	require.NoError(t, s.Masternodes.Register(masternode.Masternode{
		ID:         masternode.NodeID(pub),
		Tier:       masternode.TierBronze,
		Collateral: masternode.TierBronze.Collateral(),
		PublicKey:  pub,
	}))
	s.SetHeight(1000)

	srcRef := utxo.OutRef{TxID: chainhash.HashH([]byte("src")), Index: 0}
	require.NoError(t, s.UTXO.CreateOutput(srcRef, 1000, "addr-src"))

	tx := signedSpend(t, srcRef, "spend", 500)
	require.NoError(t, s.SubmitTransaction(context.Background(), tx))

	require.Eventually(t, func() bool {
		state, ok := s.UTXO.GetState(srcRef)
		return ok && state == utxo.SpentFinalized
	}, time.Second, 5*time.Millisecond)

	outState, ok := s.UTXO.GetState(utxo.OutRef{TxID: tx.ID, Index: 0})
	require.True(t, ok)
	require.Equal(t, utxo.Unspent, outState)
}

func TestValidateAddressesRejectsOpaqueDestination(t *testing.T) {
	s := testServer(t, func(cfg *Config) {
		cfg.ValidateAddresses = true
	})

	srcRef := utxo.OutRef{TxID: chainhash.HashH([]byte("src")), Index: 0}
	require.NoError(t, s.UTXO.CreateOutput(srcRef, 1000, "addr-src"))

	tx := signedSpend(t, srcRef, "spend", 500)
	require.Error(t, s.SubmitTransaction(context.Background(), tx))

	state, _ := s.UTXO.GetState(srcRef)
	require.Equal(t, utxo.Unspent, state)
}

func TestOnRelayUpdateTipAdvancesHeight(t *testing.T) {
	s := testServer(t, nil)
	p := testPeer(t)

	s.OnRelay(p, &tcwire.UpdateTip{Height: 42})
	require.Equal(t, uint32(42), s.currentHeight())

	// A stale tip never moves the height backwards.
	s.OnRelay(p, &tcwire.UpdateTip{Height: 7})
	require.Equal(t, uint32(42), s.currentHeight())
}

func TestConfirmSpendUpgradesFinalized(t *testing.T) {
	s := testServer(t, nil)

	ref := utxo.OutRef{TxID: chainhash.HashH([]byte("c")), Index: 0}
	require.NoError(t, s.UTXO.CreateOutput(ref, 100, "addr"))
	require.NoError(t, s.UTXO.Lock(ref, chainhash.HashH([]byte("spend")), "test"))
	require.NoError(t, s.UTXO.BeginVoting(ref, 1, "test"))
	require.NoError(t, s.UTXO.Finalize(ref, "test"))

	require.NoError(t, s.ConfirmSpend(ref, 77))

	entry, ok := s.UTXO.Get(ref)
	require.True(t, ok)
	require.Equal(t, utxo.Confirmed, entry.State)
	require.Equal(t, uint32(77), entry.BlockHeight)
}

func TestOnUTXOStateQueryRespondsOverPeer(t *testing.T) {
	s := testServer(t, nil)
	ref := utxo.OutRef{TxID: chainhash.HashH([]byte("q")), Index: 0}
	require.NoError(t, s.UTXO.CreateOutput(ref, 100, "addr"))

	connA, connB := net.Pipe()
	defer connA.Close()
	defer connB.Close()

	p := peer.NewPeer(connA, peer.Config{Params: chaincfg.TestNetParams}, true)

	done := make(chan struct{})
	go func() {
		s.OnUTXOStateQuery(p, &tcwire.UTXOStateQuery{
			OutRefs: []tcwire.OutRef{{TxID: ref.TxID, Index: ref.Index}},
		})
		close(done)
	}()

	raw, err := tcwire.ReadFrame(connB, tcwire.TestNetMagic)
	require.NoError(t, err)
	msg, ok, err := tcwire.Decode(raw)
	require.NoError(t, err)
	require.True(t, ok)

	resp, ok := msg.(*tcwire.UTXOStateResponse)
	require.True(t, ok)
	require.Len(t, resp.Entries, 1)
	require.Equal(t, "Unspent", resp.Entries[0].State)

	<-done
}
