// Package masternode tracks the set of masternodes eligible to vote on
// transaction finality: their collateral tier, voting weight, activity,
// and the height at which each becomes eligible to vote.
//
// The Registry/Snapshot shape here follows the membership-set pattern
// used for BFT validator sets elsewhere in the ecosystem, adapted from
// an account-weight model to time-coin's collateral-tier model.
package masternode

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/decred/dcrd/crypto/ripemd160"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/go-errors/errors"
)

// Tier is a masternode collateral tier. Higher tiers post more collateral,
// carry more voting weight, and must wait longer after registering before
// their votes count, as an anti-takeover measure.
type Tier uint8

const (
	// TierBronze is the minimum collateral tier.
	TierBronze Tier = iota
	// TierSilver requires a larger collateral commitment than TierBronze.
	TierSilver
	// TierGold is the maximum collateral tier.
	TierGold
)

func (t Tier) String() string {
	switch t {
	case TierBronze:
		return "bronze"
	case TierSilver:
		return "silver"
	case TierGold:
		return "gold"
	default:
		return "unknown"
	}
}

// Weight returns the voting weight associated with a tier. Weight, not
// raw masternode count, is what quorum is computed against.
func (t Tier) Weight() uint64 {
	switch t {
	case TierBronze:
		return 1
	case TierSilver:
		return 4
	case TierGold:
		return 10
	default:
		return 0
	}
}

// Collateral returns the minimum amount, in atoms, that must be bound to
// a confirmed collateral-locking transaction for a masternode to register
// at this tier.
func (t Tier) Collateral() dcrutil.Amount {
	switch t {
	case TierBronze:
		return 1000 * 1e8
	case TierSilver:
		return 5000 * 1e8
	case TierGold:
		return 20000 * 1e8
	default:
		return 0
	}
}

// MaturityDelay returns the number of blocks a masternode registered at
// this tier must wait before its votes are counted toward quorum. Larger
// collateral tiers wait longer, so that a sudden influx of high-weight
// masternodes cannot immediately swing the vote on transactions already
// in flight.
func (t Tier) MaturityDelay() uint32 {
	switch t {
	case TierBronze:
		return 10
	case TierSilver:
		return 60
	case TierGold:
		return 180
	default:
		return 0
	}
}

// ErrUnknownMasternode is returned when an operation names a masternode ID
// that is not registered.
var ErrUnknownMasternode = errors.New("masternode: unknown masternode id")

// ErrAlreadyRegistered is returned from Register when the ID is already
// present in the registry.
var ErrAlreadyRegistered = errors.New("masternode: already registered")

// ErrInsufficientCollateral is returned from Register when the posted
// collateral does not meet the requested tier's requirement.
var ErrInsufficientCollateral = errors.New("masternode: collateral below tier requirement")

// NodeID derives a masternode's stable identifier from its voting public
// key: the RIPEMD-160 digest of the key's SHA-256 hash, hex encoded.
func NodeID(pubKey []byte) string {
	sha := sha256.Sum256(pubKey)
	h := ripemd160.New()
	h.Write(sha[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Masternode is one entry in the registry: its identity, collateral tier
// and posted collateral, the height at which it registered, and whether
// it is currently active. Only active masternodes count toward voting
// weight; a node that fails liveness is deactivated without forfeiting
// its registration.
type Masternode struct {
	ID            string
	Tier          Tier
	Collateral    dcrutil.Amount
	RegisteredAt  uint32
	TransportAddr string
	PublicKey     []byte
	Active        bool
}

// IsMatureAt reports whether this masternode's votes count toward quorum
// at the given chain height.
func (m Masternode) IsMatureAt(height uint32) bool {
	return height >= m.RegisteredAt+m.Tier.MaturityDelay()
}

// Registry is the authoritative, in-memory set of registered masternodes.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]Masternode
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		nodes: make(map[string]Masternode),
	}
}

// Register adds a new masternode to the registry, validating its posted
// collateral against the tier requirement. A freshly registered
// masternode starts active; liveness failures later flip the flag via
// Deactivate.
func (r *Registry) Register(mn Masternode) error {
	if mn.Collateral < mn.Tier.Collateral() {
		return errors.Wrap(ErrInsufficientCollateral, 0)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[mn.ID]; ok {
		return errors.Wrap(ErrAlreadyRegistered, 0)
	}
	mn.Active = true
	r.nodes[mn.ID] = mn
	log.Infof("registered masternode %s tier %s at height %d", mn.ID, mn.Tier, mn.RegisteredAt)
	return nil
}

// Deregister removes a masternode from the registry, e.g. after its
// collateral is withdrawn.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[id]; !ok {
		return errors.Wrap(ErrUnknownMasternode, 0)
	}
	delete(r.nodes, id)
	return nil
}

// Deactivate marks id inactive, excluding it from future snapshots until
// Activate is called. Used when a masternode fails liveness checks.
func (r *Registry) Deactivate(id string) error {
	return r.setActive(id, false)
}

// Activate marks id active again.
func (r *Registry) Activate(id string) error {
	return r.setActive(id, true)
}

func (r *Registry) setActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mn, ok := r.nodes[id]
	if !ok {
		return errors.Wrap(ErrUnknownMasternode, 0)
	}
	mn.Active = active
	r.nodes[id] = mn
	return nil
}

// Get returns the masternode registered under id.
func (r *Registry) Get(id string) (Masternode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mn, ok := r.nodes[id]
	return mn, ok
}

// CanVote reports whether id may vote at the given chain height: it must
// be registered, active, and mature.
func (r *Registry) CanVote(id string, height uint32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mn, ok := r.nodes[id]
	return ok && mn.Active && mn.IsMatureAt(height)
}

// Snapshot captures the registry membership and each masternode's weight
// at a fixed height. Quorum for a vote is evaluated against the snapshot
// taken when voting opened, never against the live set, so a shrinking
// network cannot retroactively finalize a pending transaction.
type Snapshot struct {
	Height      uint32
	Nodes       map[string]Masternode
	TotalWeight uint64
}

// TakeSnapshot returns a Snapshot of every active, mature masternode at
// height, along with the sum of their weights.
func (r *Registry) TakeSnapshot(height uint32) Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Height: height,
		Nodes:  make(map[string]Masternode, len(r.nodes)),
	}
	for id, mn := range r.nodes {
		if !mn.Active || !mn.IsMatureAt(height) {
			continue
		}
		snap.Nodes[id] = mn
		snap.TotalWeight += mn.Tier.Weight()
	}
	return snap
}

// TotalActiveWeight returns the combined voting weight of every active,
// mature masternode at height.
func (r *Registry) TotalActiveWeight(height uint32) uint64 {
	return r.TakeSnapshot(height).TotalWeight
}

// WeightOf returns the voting weight of id within this snapshot, or 0 if
// id is not a member of the snapshot.
func (s Snapshot) WeightOf(id string) uint64 {
	mn, ok := s.Nodes[id]
	if !ok {
		return 0
	}
	return mn.Tier.Weight()
}

// Len returns the number of registered masternodes, active or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
