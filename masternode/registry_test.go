package masternode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testNode(id string, tier Tier, registeredAt uint32) Masternode {
	return Masternode{
		ID:           id,
		Tier:         tier,
		Collateral:   tier.Collateral(),
		RegisteredAt: registeredAt,
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	mn := testNode("mn-1", TierGold, 100)

	require.NoError(t, r.Register(mn))

	got, ok := r.Get("mn-1")
	require.True(t, ok)
	require.True(t, got.Active)
	got.Active = false
	require.Equal(t, mn, got)
}

func TestRegisterDuplicateErrors(t *testing.T) {
	r := NewRegistry()
	mn := testNode("mn-1", TierBronze, 0)

	require.NoError(t, r.Register(mn))
	require.ErrorIs(t, r.Register(mn), ErrAlreadyRegistered)
}

func TestRegisterInsufficientCollateralErrors(t *testing.T) {
	r := NewRegistry()
	mn := testNode("mn-1", TierGold, 0)
	mn.Collateral = TierBronze.Collateral()

	require.ErrorIs(t, r.Register(mn), ErrInsufficientCollateral)
}

func TestDeregisterUnknownErrors(t *testing.T) {
	r := NewRegistry()
	require.ErrorIs(t, r.Deregister("ghost"), ErrUnknownMasternode)
}

func TestDeactivateExcludesFromSnapshot(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testNode("a", TierBronze, 0)))
	require.NoError(t, r.Register(testNode("b", TierBronze, 0)))

	require.NoError(t, r.Deactivate("a"))

	snap := r.TakeSnapshot(1000)
	require.Len(t, snap.Nodes, 1)
	require.Equal(t, TierBronze.Weight(), snap.TotalWeight)

	require.NoError(t, r.Activate("a"))
	snap = r.TakeSnapshot(1000)
	require.Len(t, snap.Nodes, 2)
}

func TestCanVote(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testNode("mn-1", TierBronze, 100)))

	require.False(t, r.CanVote("ghost", 1000))

	// Registered 2 blocks before a tier that demands 10.
	require.False(t, r.CanVote("mn-1", 102))
	require.True(t, r.CanVote("mn-1", 110))

	require.NoError(t, r.Deactivate("mn-1"))
	require.False(t, r.CanVote("mn-1", 1000))
}

func TestMaturityGatesSnapshotMembership(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testNode("mn-gold", TierGold, 100)))
	require.NoError(t, r.Register(testNode("mn-bronze", TierBronze, 100)))

	// At height 105, bronze (delay 10) is immature, gold (delay 180) is too.
	snap := r.TakeSnapshot(105)
	require.Len(t, snap.Nodes, 0)
	require.Zero(t, snap.TotalWeight)

	// At height 111, bronze has matured but gold has not.
	snap = r.TakeSnapshot(111)
	require.Len(t, snap.Nodes, 1)
	require.Equal(t, TierBronze.Weight(), snap.TotalWeight)
	require.Equal(t, TierBronze.Weight(), snap.WeightOf("mn-bronze"))
	require.Zero(t, snap.WeightOf("mn-gold"))
}

func TestSnapshotTotalWeightSumsMatureOnly(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testNode("a", TierSilver, 0)))
	require.NoError(t, r.Register(testNode("b", TierSilver, 0)))

	snap := r.TakeSnapshot(1000)
	require.Equal(t, 2*TierSilver.Weight(), snap.TotalWeight)
	require.Equal(t, snap.TotalWeight, r.TotalActiveWeight(1000))
}

func TestNodeIDDeterministic(t *testing.T) {
	id1 := NodeID([]byte("pubkey-bytes"))
	id2 := NodeID([]byte("pubkey-bytes"))
	require.Equal(t, id1, id2)
	require.Len(t, id1, 40)
	require.NotEqual(t, id1, NodeID([]byte("other-key")))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	r := NewRegistry()
	require.NoError(t, r.Register(testNode("a", TierGold, 100)))
	require.NoError(t, r.Register(testNode("b", TierBronze, 200)))
	require.NoError(t, r.Deactivate("b"))
	require.NoError(t, r.Save(store))

	loaded := NewRegistry()
	require.NoError(t, loaded.Load(store))
	require.Equal(t, 2, loaded.Len())

	a, ok := loaded.Get("a")
	require.True(t, ok)
	require.True(t, a.Active)
	require.Equal(t, TierGold, a.Tier)
	require.Equal(t, uint32(100), a.RegisteredAt)

	// Deactivation survives the restart.
	b, ok := loaded.Get("b")
	require.True(t, ok)
	require.False(t, b.Active)
}

func TestTierStringAndWeightOrdering(t *testing.T) {
	require.Equal(t, "bronze", TierBronze.String())
	require.Equal(t, "silver", TierSilver.String())
	require.Equal(t, "gold", TierGold.String())
	require.Less(t, TierBronze.Weight(), TierSilver.Weight())
	require.Less(t, TierSilver.Weight(), TierGold.Weight())
	require.Less(t, TierBronze.MaturityDelay(), TierGold.MaturityDelay())
	require.Less(t, TierBronze.Collateral(), TierGold.Collateral())
}
