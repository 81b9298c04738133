package peer

import (
	"context"
	"net"
	"sync"

	"github.com/decred/dcrd/connmgr"

	"github.com/time-coin/timecoin/tcwire"
)

// Manager owns every live Peer and uses connmgr.ConnManager to keep a
// target number of outbound connections up, retrying with its built-in
// backoff when a dial fails.
type Manager struct {
	cfg    Config
	cm     *connmgr.ConnManager
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	peers map[string]*Peer
}

// ManagerConfig bundles the connmgr knobs a daemon operator controls.
type ManagerConfig struct {
	TargetOutbound uint32
	Listeners      []net.Listener
}

// NewManager constructs a Manager. cfg is applied to every Peer this
// Manager creates, whether inbound or outbound.
func NewManager(cfg Config, mcfg ManagerConfig) (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		peers:  make(map[string]*Peer),
	}

	connCfg := &connmgr.Config{
		TargetOutbound: mcfg.TargetOutbound,
		Listeners:      mcfg.Listeners,
		OnAccept:       m.onAccept,
		DialAddr:       dialNetAddr,
		OnConnection:   m.onConnection,
	}

	cm, err := connmgr.New(connCfg)
	if err != nil {
		cancel()
		return nil, err
	}
	m.cm = cm

	return m, nil
}

// Start begins accepting inbound connections and dialing out to reach
// TargetOutbound.
func (m *Manager) Start() {
	m.cm.Start()
}

// Stop tears down every connection and stops the underlying connmgr.
func (m *Manager) Stop() {
	m.cancel()
	m.cm.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for addr, p := range m.peers {
		p.Close()
		delete(m.peers, addr)
	}
}

// Connect requests an outbound connection to addr. connmgr retries with
// backoff on failure until Remove is called for the same request.
func (m *Manager) Connect(addr string) error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return err
	}

	m.cm.Connect(&connmgr.ConnReq{
		Addr:      tcpAddr,
		Permanent: true,
	})
	return nil
}

func dialNetAddr(addr net.Addr) (net.Conn, error) {
	return net.Dial(addr.Network(), addr.String())
}

func (m *Manager) onAccept(conn net.Conn) {
	p := NewPeer(conn, m.cfg, false)
	m.register(p)
	go m.serve(p)
}

func (m *Manager) onConnection(_ *connmgr.ConnReq, conn net.Conn) {
	p := NewPeer(conn, m.cfg, true)
	m.register(p)
	go m.serve(p)
}

func (m *Manager) serve(p *Peer) {
	defer m.unregister(p)
	if err := p.Run(m.ctx); err != nil {
		log.Debugf("peer %s disconnected: %v", p.Addr(), err)
	}
}

func (m *Manager) register(p *Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[p.Addr()] = p
}

func (m *Manager) unregister(p *Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, p.Addr())
}

// Peers returns a snapshot of currently connected peers.
func (m *Manager) Peers() []*Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p)
	}
	return out
}

// Broadcast sends msg to every connected peer, best effort; a single
// peer's send error is logged and does not stop delivery to the rest.
func (m *Manager) Broadcast(msg tcwire.Message) {
	for _, p := range m.Peers() {
		if err := p.Send(msg); err != nil {
			log.Debugf("broadcast to %s failed: %v", p.Addr(), err)
		}
	}
}
