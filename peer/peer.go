// Package peer implements one masternode-to-masternode or
// masternode-to-wallet connection: the handshake, the framed message
// read/write loops, and the ping/pong keepalive that detects a stalled
// peer.
package peer

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/go-errors/errors"

	"github.com/time-coin/timecoin/chaincfg"
	"github.com/time-coin/timecoin/tcwire"
)

// PingInterval is how often an idle connection sends a keepalive Ping.
const PingInterval = 30 * time.Second

// MaxMissedPongs is the number of consecutive unanswered pings after
// which a peer is considered stale and disconnected.
const MaxMissedPongs = 3

// ErrHandshakeMismatch is returned when a peer's handshake fails
// network, genesis, or minimum protocol version validation.
var ErrHandshakeMismatch = errors.New("peer: handshake mismatch")

// ErrStale describes a peer that missed MaxMissedPongs pongs in a row.
// The keepalive loop closes such a peer directly; no function in this
// package returns ErrStale.
var ErrStale = errors.New("peer: connection went stale")

// Dispatcher is implemented by whatever owns the node's business logic;
// each method is called synchronously from the peer's read loop and
// must not block for long.
type Dispatcher interface {
	OnTransactionBroadcast(*Peer, *tcwire.TransactionBroadcast)
	OnVote(*Peer, *tcwire.VoteMsg)
	OnUTXOStateQuery(*Peer, *tcwire.UTXOStateQuery)
	OnUTXOSubscribe(*Peer, *tcwire.UTXOSubscribe)
	OnUTXOUnsubscribe(*Peer, *tcwire.UTXOUnsubscribe)
	// OnRelay is called for message types the core does not itself
	// interpret (GetBlocks, BlocksData, UpdateTip) so an out-of-scope
	// chain-sync component can still ride this connection.
	OnRelay(*Peer, tcwire.Message)
}

// Config carries the per-node parameters every Peer validates its
// counterpart's handshake against.
type Config struct {
	Params          chaincfg.Params
	ProtocolVersion uint32
	CommitID        string
	HeightSource    func() uint64
	Dispatcher      Dispatcher
}

// Peer is one live connection to another node.
type Peer struct {
	conn     net.Conn
	cfg      Config
	addr     string
	outbound bool

	writeMu sync.Mutex

	pingMu      sync.Mutex
	pendingPing *uint64
	missedPongs int

	RemoteHandshake tcwire.Handshake

	closeOnce sync.Once
	closed    chan struct{}
}

// NewPeer wraps an already-connected conn. outbound indicates which side
// initiated the connection, which decides who sends the first handshake
// frame.
func NewPeer(conn net.Conn, cfg Config, outbound bool) *Peer {
	return &Peer{
		conn:     conn,
		cfg:      cfg,
		addr:     conn.RemoteAddr().String(),
		outbound: outbound,
		closed:   make(chan struct{}),
	}
}

// Addr returns the remote address of this connection.
func (p *Peer) Addr() string { return p.addr }

// Run performs the handshake and then blocks, servicing the read loop
// and keepalive ticker, until the connection closes or ctx is canceled.
func (p *Peer) Run(ctx context.Context) error {
	if err := p.handshake(); err != nil {
		p.Close()
		return err
	}

	go p.keepaliveLoop(ctx)

	return p.readLoop(ctx)
}

// handshake exchanges Handshake frames and validates the peer's
// advertised network, genesis hash, and protocol version.
func (p *Peer) handshake() error {
	local := &tcwire.Handshake{
		ProtocolVersion: p.cfg.ProtocolVersion,
		Network:         p.cfg.Params.Name,
		GenesisHash:     p.cfg.Params.GenesisHash,
		Height:          p.cfg.HeightSource(),
		CommitID:        p.cfg.CommitID,
	}

	magic := magicFor(p.cfg.Params)

	if p.outbound {
		if err := p.sendRaw(magic, local); err != nil {
			return err
		}
	}

	remote, err := p.readHandshake(magic)
	if err != nil {
		return err
	}
	p.RemoteHandshake = *remote

	if !p.outbound {
		if err := p.sendRaw(magic, local); err != nil {
			return err
		}
	}

	if remote.Network != p.cfg.Params.Name {
		return errors.Wrap(ErrHandshakeMismatch, 0)
	}
	if !genesisMatches(remote.GenesisHash, p.cfg.Params.GenesisHash) {
		return errors.Wrap(ErrHandshakeMismatch, 0)
	}
	if remote.ProtocolVersion < p.cfg.Params.MinSupportedProtocolVersion {
		return errors.Wrap(ErrHandshakeMismatch, 0)
	}

	log.Infof("handshake complete with %s (height %d, commit %s)", p.addr, remote.Height, remote.CommitID)
	return nil
}

func (p *Peer) readHandshake(magic tcwire.Magic) (*tcwire.Handshake, error) {
	raw, err := tcwire.ReadFrame(p.conn, magic)
	if err != nil {
		return nil, err
	}
	msg, ok, err := tcwire.Decode(raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrap(ErrHandshakeMismatch, 0)
	}
	hs, ok := msg.(*tcwire.Handshake)
	if !ok {
		return nil, errors.Wrap(ErrHandshakeMismatch, 0)
	}
	return hs, nil
}

// Send encodes and frames msg and writes it to the connection. Safe for
// concurrent use; writes are serialized.
func (p *Peer) Send(msg tcwire.Message) error {
	return p.sendRaw(magicFor(p.cfg.Params), msg)
}

func (p *Peer) sendRaw(magic tcwire.Magic, msg tcwire.Message) error {
	payload, err := tcwire.Encode(msg)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return tcwire.WriteFrame(p.conn, magic, payload)
}

// readLoop decodes frames and dispatches them until the connection
// closes. An unrecognized tag is skipped, never fatal.
func (p *Peer) readLoop(ctx context.Context) error {
	magic := magicFor(p.cfg.Params)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, err := tcwire.ReadFrame(p.conn, magic)
		if err != nil {
			p.Close()
			return err
		}

		msg, ok, err := tcwire.Decode(raw)
		if err != nil {
			log.Warnf("malformed frame from %s: %v", p.addr, err)
			continue
		}
		if !ok {
			continue
		}

		p.dispatch(msg)
	}
}

func (p *Peer) dispatch(msg tcwire.Message) {
	switch m := msg.(type) {
	case *tcwire.Ping:
		_ = p.Send(&tcwire.Pong{Nonce: m.Nonce})
	case *tcwire.Pong:
		p.handlePong(m)
	case *tcwire.TransactionBroadcast:
		p.cfg.Dispatcher.OnTransactionBroadcast(p, m)
	case *tcwire.VoteMsg:
		p.cfg.Dispatcher.OnVote(p, m)
	case *tcwire.UTXOStateQuery:
		p.cfg.Dispatcher.OnUTXOStateQuery(p, m)
	case *tcwire.UTXOSubscribe:
		p.cfg.Dispatcher.OnUTXOSubscribe(p, m)
	case *tcwire.UTXOUnsubscribe:
		p.cfg.Dispatcher.OnUTXOUnsubscribe(p, m)
	case *tcwire.Handshake:
		// A second handshake mid-session is ignored; renegotiation is
		// not supported.
	default:
		p.cfg.Dispatcher.OnRelay(p, msg)
	}
}

func (p *Peer) keepaliveLoop(ctx context.Context) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	var nonce uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.closed:
			return
		case <-ticker.C:
			p.pingMu.Lock()
			if p.pendingPing != nil {
				p.missedPongs++
				if p.missedPongs >= MaxMissedPongs {
					p.pingMu.Unlock()
					log.Warnf("peer %s missed %d pongs, closing", p.addr, p.missedPongs)
					p.Close()
					return
				}
			}
			nonce++
			n := nonce
			p.pendingPing = &n
			p.pingMu.Unlock()

			if err := p.Send(&tcwire.Ping{Nonce: n}); err != nil {
				p.Close()
				return
			}
		}
	}
}

func (p *Peer) handlePong(pong *tcwire.Pong) {
	p.pingMu.Lock()
	defer p.pingMu.Unlock()
	if p.pendingPing != nil && *p.pendingPing == pong.Nonce {
		p.pendingPing = nil
		p.missedPongs = 0
	}
}

// Close shuts down the connection. Safe to call multiple times.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.conn.Close()
	})
	return err
}

func magicFor(params chaincfg.Params) tcwire.Magic {
	switch params.Net {
	case chaincfg.TestNet:
		return tcwire.TestNetMagic
	default:
		return tcwire.MainNetMagic
	}
}

// genesisMatches is a small helper kept separate from handshake() so
// tests can exercise the comparison in isolation.
func genesisMatches(a, b chainhash.Hash) bool {
	return a == b
}
