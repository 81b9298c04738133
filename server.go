// Package timecoin wires together the masternode registry, the output
// state machine, the vote tracker, the subscriber fan-out, and the peer
// transport into one running instant-finality node.
package timecoin

import (
	"context"
	"encoding/hex"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v3"
	"github.com/decred/dcrd/dcrec/secp256k1/v3/ecdsa"
	"github.com/go-errors/errors"

	"github.com/time-coin/timecoin/chainquery"
	"github.com/time-coin/timecoin/finality"
	"github.com/time-coin/timecoin/masternode"
	"github.com/time-coin/timecoin/metrics"
	"github.com/time-coin/timecoin/peer"
	"github.com/time-coin/timecoin/subscription"
	"github.com/time-coin/timecoin/tcwire"
	"github.com/time-coin/timecoin/utxo"
	"github.com/time-coin/timecoin/vote"
)

// ErrBadVoteKey is returned from NewServer when cfg.VotePrivKey is set
// but does not decode as a secp256k1 private key.
var ErrBadVoteKey = errors.New("timecoin: malformed vote private key")

// Server is one running timecoind node: everything needed to accept
// peers, admit transactions, tally votes, and notify subscribers.
type Server struct {
	cfg Config

	UTXO        *utxo.Manager
	Masternodes *masternode.Registry
	Coordinator *finality.Coordinator
	Fanout      *subscription.Fanout
	Peers       *peer.Manager
	Chain       *chainquery.Client
	Metrics     *metrics.Registry

	snapshots *utxo.SnapshotStore
	mnStore   *masternode.Store

	voteKey *secp256k1.PrivateKey
	voterID string

	height int64 // atomic

	stopping sync.Once
	stopped  chan struct{}
}

// NewServer builds a Server from cfg. Chain may be nil if no backing
// node RPC connection is configured; masternode maturity then evaluates
// against the height set by SetHeight or by relayed tip updates.
func NewServer(cfg Config, chain *chainquery.Client, metricsReg *metrics.Registry) (*Server, error) {
	registry := masternode.NewRegistry()
	fanout := subscription.NewFanout(nil)
	mgr := utxo.NewManager(fanout)

	s := &Server{
		cfg:         cfg,
		UTXO:        mgr,
		Masternodes: registry,
		Fanout:      fanout,
		Chain:       chain,
		Metrics:     metricsReg,
		stopped:     make(chan struct{}),
	}

	if cfg.VotePrivKey != "" {
		keyBytes, err := hex.DecodeString(cfg.VotePrivKey)
		if err != nil || len(keyBytes) != 32 {
			return nil, errors.Wrap(ErrBadVoteKey, 0)
		}
		s.voteKey = secp256k1.PrivKeyFromBytes(keyBytes)
		s.voterID = masternode.NodeID(s.voteKey.PubKey().SerializeCompressed())
	}

	if cfg.SnapshotDir != "" {
		store, err := utxo.OpenSnapshotStore(filepath.Join(cfg.SnapshotDir, "utxo"))
		if err != nil {
			return nil, err
		}
		s.snapshots = store
		if err := mgr.Load(store); err != nil {
			return nil, err
		}

		mnStore, err := masternode.OpenStore(filepath.Join(cfg.SnapshotDir, "masternodes"))
		if err != nil {
			return nil, err
		}
		s.mnStore = mnStore
		if err := registry.Load(mnStore); err != nil {
			return nil, err
		}
	}

	if metricsReg != nil {
		fanout.ObserveDrops(metricsReg.NotificationsDropped.Inc)
	}

	coordOpts := []finality.Option{
		finality.WithFinalityWindow(cfg.FinalityWindow),
		finality.WithHeightSource(s.currentHeight),
		finality.WithBroadcaster(s.broadcastToPeers),
		finality.WithOutcomeObserver(s.observeOutcome),
	}
	if cfg.ValidateAddresses {
		coordOpts = append(coordOpts, finality.WithAddressParams(cfg.NetParams))
	}
	s.Coordinator = finality.NewCoordinator(mgr, registry, coordOpts...)

	peerCfg := peer.Config{
		Params:          cfg.NetParams,
		ProtocolVersion: cfg.NetParams.MinSupportedProtocolVersion,
		CommitID:        "dev",
		HeightSource:    func() uint64 { return uint64(atomic.LoadInt64(&s.height)) },
		Dispatcher:      s,
	}

	listeners, err := openListeners(cfg.ListenAddrs)
	if err != nil {
		return nil, err
	}

	peerMgr, err := peer.NewManager(peerCfg, peer.ManagerConfig{
		TargetOutbound: cfg.TargetOutboundPeers,
		Listeners:      listeners,
	})
	if err != nil {
		return nil, err
	}
	s.Peers = peerMgr

	return s, nil
}

func openListeners(addrs []string) ([]net.Listener, error) {
	listeners := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			for _, opened := range listeners {
				opened.Close()
			}
			return nil, err
		}
		listeners = append(listeners, l)
	}
	return listeners, nil
}

// broadcastToPeers satisfies finality.WithBroadcaster. It is installed
// before the peer manager exists, so it must tolerate a nil Peers.
func (s *Server) broadcastToPeers(msg tcwire.Message) {
	if s.Peers != nil {
		s.Peers.Broadcast(msg)
	}
}

// currentHeight satisfies finality.WithHeightSource's func() uint32
// signature.
func (s *Server) currentHeight() uint32 {
	return uint32(atomic.LoadInt64(&s.height))
}

// SetHeight updates the height the server reports in handshakes and
// evaluates masternode maturity against. Callers wire this to whatever
// chain-sync component tracks the tip.
func (s *Server) SetHeight(height int64) {
	atomic.StoreInt64(&s.height, height)
}

// Start brings up the peer manager and dials any statically configured
// peers.
func (s *Server) Start() error {
	s.Peers.Start()
	for _, addr := range s.cfg.ConnectPeers {
		if err := s.Peers.Connect(addr); err != nil {
			return err
		}
	}
	return nil
}

// Stop tears the server down, persisting a final UTXO snapshot if
// snapshotting is enabled.
func (s *Server) Stop() error {
	var err error
	s.stopping.Do(func() {
		close(s.stopped)
		s.Peers.Stop()
		if s.snapshots != nil {
			if saveErr := s.UTXO.Save(s.snapshots); saveErr != nil {
				err = saveErr
			}
			_ = s.snapshots.Close()
		}
		if s.mnStore != nil {
			if saveErr := s.Masternodes.Save(s.mnStore); saveErr != nil && err == nil {
				err = saveErr
			}
			_ = s.mnStore.Close()
		}
	})
	return err
}

// SubmitTransaction is the local-wallet entry point for a new
// transaction: it runs the same admission pipeline a peer broadcast
// does, then casts this node's own vote if it is a masternode.
func (s *Server) SubmitTransaction(ctx context.Context, tx tcwire.Tx) error {
	select {
	case <-s.stopped:
		return errors.Wrap(ErrShuttingDown, 0)
	default:
	}

	pending := finality.NewPendingTx(tx)
	if err := s.Coordinator.BroadcastTransaction(ctx, pending); err != nil {
		return err
	}
	s.castOwnVote(tx)
	s.updateVoteMetrics()
	return nil
}

// castOwnVote validates nothing beyond what admission already checked:
// an admitted transaction locked cleanly on first sight, which is
// exactly the condition an honest masternode approves.
func (s *Server) castOwnVote(tx tcwire.Tx) {
	if s.voteKey == nil {
		return
	}

	timestamp := time.Now().Unix()
	sig := ecdsa.Sign(s.voteKey, vote.Digest(tx.ID, true, timestamp))
	msg := &tcwire.VoteMsg{
		TxID:      tx.ID,
		VoterID:   s.voterID,
		Approve:   true,
		Signature: sig.Serialize(),
		Timestamp: timestamp,
	}

	if err := s.Coordinator.RecordVote(msg.TxID, msg.VoterID, msg.Approve, msg.Timestamp, msg.Signature); err != nil {
		log.Debugf("own vote on %s not counted: %v", tx.ID, err)
	}
	s.broadcastToPeers(msg)
}

// ConfirmSpend records that the transaction consuming ref was included
// in the block at height, upgrading its finalized inputs to Confirmed.
// The chain-sync component calls this as blocks are accepted.
func (s *Server) ConfirmSpend(ref utxo.OutRef, height uint32) error {
	if err := s.UTXO.Confirm(ref, height, "chain"); err != nil {
		return err
	}
	if s.Chain != nil {
		s.Chain.InvalidateUTXO(ref.TxID, ref.Index)
	}
	return nil
}

func (s *Server) updateVoteMetrics() {
	if s.Metrics != nil {
		s.Metrics.InFlightVotes.Set(float64(s.Coordinator.ActiveCount()))
		snap := s.Masternodes.TakeSnapshot(s.currentHeight())
		s.Metrics.ActiveMasternodes.Set(float64(len(snap.Nodes)))
	}
}

// observeOutcome satisfies finality.WithOutcomeObserver and drives the
// per-outcome transaction counters.
func (s *Server) observeOutcome(txid chainhash.Hash, outcome finality.Outcome) {
	if s.Metrics == nil {
		return
	}
	switch outcome {
	case finality.OutcomeFinalized:
		s.Metrics.TxFinalized.Inc()
	case finality.OutcomeTimedOut:
		s.Metrics.TxTimedOut.Inc()
	default:
		s.Metrics.TxRejected.Inc()
	}
	s.Metrics.InFlightVotes.Set(float64(s.Coordinator.ActiveCount()))
}

// OnTransactionBroadcast implements peer.Dispatcher.
func (s *Server) OnTransactionBroadcast(p *peer.Peer, m *tcwire.TransactionBroadcast) {
	pending := finality.NewPendingTx(m.Tx)
	if err := s.Coordinator.BroadcastTransaction(context.Background(), pending); err != nil {
		log.Debugf("rejecting tx %s from %s: %v", m.Tx.ID, p.Addr(), err)
		log.Tracef("rejected tx dump: %v", newLogClosure(func() string {
			return spew.Sdump(m.Tx)
		}))
	} else {
		s.castOwnVote(m.Tx)
	}
	s.updateVoteMetrics()
}

// OnVote implements peer.Dispatcher.
func (s *Server) OnVote(p *peer.Peer, m *tcwire.VoteMsg) {
	if err := s.Coordinator.RecordVote(m.TxID, m.VoterID, m.Approve, m.Timestamp, m.Signature); err != nil {
		log.Debugf("vote from %s on %s rejected: %v", p.Addr(), m.TxID, err)
	}
}

// OnUTXOStateQuery implements peer.Dispatcher.
func (s *Server) OnUTXOStateQuery(p *peer.Peer, m *tcwire.UTXOStateQuery) {
	resp := &tcwire.UTXOStateResponse{}
	for _, wireRef := range m.OutRefs {
		ref := utxo.OutRef{TxID: wireRef.TxID, Index: wireRef.Index}
		state, ok := s.UTXO.GetState(ref)
		if !ok {
			// Not in memory; fall back to the backing node's view for
			// outputs created before this daemon started tracking.
			if s.Chain == nil {
				continue
			}
			exists, err := s.Chain.UTXOExists(context.Background(), ref.TxID, ref.Index)
			if err != nil || !exists {
				continue
			}
			state = utxo.Unspent
		}
		resp.Entries = append(resp.Entries, tcwire.StateEntry{
			OutRef: wireRef,
			State:  state.String(),
		})
	}
	if err := p.Send(resp); err != nil {
		log.Debugf("send state response to %s: %v", p.Addr(), err)
	}
}

// OnUTXOSubscribe implements peer.Dispatcher.
func (s *Server) OnUTXOSubscribe(p *peer.Peer, m *tcwire.UTXOSubscribe) {
	refs := make([]utxo.OutRef, len(m.OutRefs))
	for i, r := range m.OutRefs {
		refs[i] = utxo.OutRef{TxID: r.TxID, Index: r.Index}
	}
	transport := &peerTransport{peer: p}
	s.Fanout.Subscribe(m.SubscriberID, transport, refs, m.Addresses)
	if s.Metrics != nil {
		s.Metrics.SubscriberCount.Set(float64(s.Fanout.Len()))
	}
}

// OnUTXOUnsubscribe implements peer.Dispatcher.
func (s *Server) OnUTXOUnsubscribe(p *peer.Peer, m *tcwire.UTXOUnsubscribe) {
	s.Fanout.Unsubscribe(m.SubscriberID)
	if s.Metrics != nil {
		s.Metrics.SubscriberCount.Set(float64(s.Fanout.Len()))
	}
}

// OnRelay implements peer.Dispatcher for the chain-sync message types.
// UpdateTip moves the height the server evaluates maturity against; the
// block payloads themselves belong to the chain-sync component and are
// only logged here.
func (s *Server) OnRelay(p *peer.Peer, m tcwire.Message) {
	if tip, ok := m.(*tcwire.UpdateTip); ok {
		if tip.Height > atomic.LoadInt64(&s.height) {
			s.SetHeight(tip.Height)
		}
		log.Debugf("peer %s advertises tip height %d", p.Addr(), tip.Height)
		return
	}
	log.Debugf("relaying %s from %s unhandled", m.MsgType(), p.Addr())
}

// peerTransport adapts a *peer.Peer to subscription.Transport so the
// fan-out can deliver notifications directly over the peer connection
// that subscribed.
type peerTransport struct {
	peer *peer.Peer
}

func (t *peerTransport) Send(n tcwire.UTXOStateNotification) error {
	return t.peer.Send(&n)
}
