package peer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/time-coin/timecoin/chaincfg"
	"github.com/time-coin/timecoin/tcwire"
)

type fakeDispatcher struct {
	txs     chan *tcwire.TransactionBroadcast
	votes   chan *tcwire.VoteMsg
	queries chan *tcwire.UTXOStateQuery
	subs    chan *tcwire.UTXOSubscribe
	unsubs  chan *tcwire.UTXOUnsubscribe
	relayed chan tcwire.Message
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		txs:     make(chan *tcwire.TransactionBroadcast, 4),
		votes:   make(chan *tcwire.VoteMsg, 4),
		queries: make(chan *tcwire.UTXOStateQuery, 4),
		subs:    make(chan *tcwire.UTXOSubscribe, 4),
		unsubs:  make(chan *tcwire.UTXOUnsubscribe, 4),
		relayed: make(chan tcwire.Message, 4),
	}
}

func (d *fakeDispatcher) OnTransactionBroadcast(_ *Peer, m *tcwire.TransactionBroadcast) { d.txs <- m }
func (d *fakeDispatcher) OnVote(_ *Peer, m *tcwire.VoteMsg)                              { d.votes <- m }
func (d *fakeDispatcher) OnUTXOStateQuery(_ *Peer, m *tcwire.UTXOStateQuery)             { d.queries <- m }
func (d *fakeDispatcher) OnUTXOSubscribe(_ *Peer, m *tcwire.UTXOSubscribe)               { d.subs <- m }
func (d *fakeDispatcher) OnUTXOUnsubscribe(_ *Peer, m *tcwire.UTXOUnsubscribe)           { d.unsubs <- m }
func (d *fakeDispatcher) OnRelay(_ *Peer, m tcwire.Message)                              { d.relayed <- m }

func testConfig(disp Dispatcher) Config {
	return Config{
		Params:          chaincfg.TestNetParams,
		ProtocolVersion: 1,
		CommitID:        "test",
		HeightSource:    func() uint64 { return 0 },
		Dispatcher:      disp,
	}
}

func TestHandshakeSucceedsBetweenCompatiblePeers(t *testing.T) {
	connA, connB := net.Pipe()

	dispA := newFakeDispatcher()
	dispB := newFakeDispatcher()

	peerA := NewPeer(connA, testConfig(dispA), true)
	peerB := NewPeer(connB, testConfig(dispB), false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errA := make(chan error, 1)
	errB := make(chan error, 1)
	go func() { errA <- peerA.Run(ctx) }()
	go func() { errB <- peerB.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, "test", peerA.RemoteHandshake.CommitID)
	require.Equal(t, "test", peerB.RemoteHandshake.CommitID)

	peerA.Close()
	peerB.Close()
}

func TestTransactionBroadcastDispatches(t *testing.T) {
	connA, connB := net.Pipe()
	dispA := newFakeDispatcher()
	dispB := newFakeDispatcher()

	peerA := NewPeer(connA, testConfig(dispA), true)
	peerB := NewPeer(connB, testConfig(dispB), false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go peerA.Run(ctx)
	go peerB.Run(ctx)

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, peerA.Send(&tcwire.TransactionBroadcast{}))

	select {
	case <-dispB.txs:
	case <-time.After(time.Second):
		t.Fatal("transaction broadcast not dispatched")
	}

	peerA.Close()
	peerB.Close()
}

func TestPongClearsPendingPing(t *testing.T) {
	p := &Peer{}
	nonce := uint64(7)
	p.pendingPing = &nonce

	p.handlePong(&tcwire.Pong{Nonce: 7})

	require.Nil(t, p.pendingPing)
	require.Equal(t, 0, p.missedPongs)
}

func TestGenesisMatches(t *testing.T) {
	require.True(t, genesisMatches(chaincfg.TestNetParams.GenesisHash, chaincfg.TestNetParams.GenesisHash))
	require.False(t, genesisMatches(chaincfg.TestNetParams.GenesisHash, chaincfg.MainNetParams.GenesisHash))
}
