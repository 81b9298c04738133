package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/time-coin/timecoin/tcwire"
	"github.com/time-coin/timecoin/utxo"
)

func TestNotifyDeliversToInterestedSubscriber(t *testing.T) {
	f := NewFanout(nil)
	transport := NewChannelTransport(4)
	ref := utxo.OutRef{Index: 0}

	f.Subscribe("sub-1", transport, []utxo.OutRef{ref}, nil)

	f.Notify(utxo.Transition{OutRef: ref, OldState: utxo.Unspent, NewState: utxo.Locked})

	select {
	case n := <-transport.C:
		require.Equal(t, "Locked", n.NewState)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestNotifyIgnoresUninterestedSubscriber(t *testing.T) {
	f := NewFanout(nil)
	transport := NewChannelTransport(4)
	watched := utxo.OutRef{Index: 0}
	unwatched := utxo.OutRef{Index: 1}

	f.Subscribe("sub-1", transport, []utxo.OutRef{watched}, nil)
	f.Notify(utxo.Transition{OutRef: unwatched, OldState: utxo.Unspent, NewState: utxo.Locked})

	select {
	case n := <-transport.C:
		t.Fatalf("unexpected notification: %+v", n)
	case <-time.After(20 * time.Millisecond):
	}
}

// blockingTransport never returns from Send, so the fanout's drain
// worker stalls on the first delivered notification and every
// subsequent one piles up in the subscriber's queue.
type blockingTransport struct {
	block chan struct{}
}

func (b *blockingTransport) Send(tcwire.UTXOStateNotification) error {
	<-b.block
	return nil
}

func TestNonCriticalNotificationDroppedWhenQueueFull(t *testing.T) {
	f := NewFanout(nil)
	transport := &blockingTransport{block: make(chan struct{})}
	ref := utxo.OutRef{Index: 0}
	f.Subscribe("sub-1", transport, []utxo.OutRef{ref}, nil)

	for i := 0; i < QueueDepth+2; i++ {
		f.Notify(utxo.Transition{OutRef: ref, OldState: utxo.Unspent, NewState: utxo.Locked})
	}

	require.Eventually(t, func() bool {
		return f.Dropped("sub-1") >= 1
	}, time.Second, 5*time.Millisecond)

	close(transport.block)
}

func TestNotifyMatchesByAddress(t *testing.T) {
	f := NewFanout(nil)
	transport := NewChannelTransport(4)
	ref := utxo.OutRef{Index: 0}

	f.Subscribe("sub-1", transport, nil, []string{"addr-watched"})

	f.Notify(utxo.Transition{OutRef: ref, Address: "addr-other", OldState: utxo.Unspent, NewState: utxo.Locked})
	f.Notify(utxo.Transition{OutRef: ref, Address: "addr-watched", OldState: utxo.Unspent, NewState: utxo.Locked})

	select {
	case n := <-transport.C:
		require.Equal(t, "Locked", n.NewState)
	case <-time.After(time.Second):
		t.Fatal("address-matched notification not delivered")
	}

	select {
	case n := <-transport.C:
		t.Fatalf("unexpected second notification: %+v", n)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestDeliveryPreservesPerOutputOrder(t *testing.T) {
	f := NewFanout(nil)
	transport := NewChannelTransport(8)
	ref := utxo.OutRef{Index: 0}
	f.Subscribe("sub-1", transport, []utxo.OutRef{ref}, nil)

	transitions := []utxo.State{utxo.Locked, utxo.SpentPending, utxo.SpentFinalized}
	prev := utxo.Unspent
	for _, next := range transitions {
		f.Notify(utxo.Transition{OutRef: ref, OldState: prev, NewState: next})
		prev = next
	}

	for _, want := range transitions {
		select {
		case n := <-transport.C:
			require.Equal(t, want.String(), n.NewState)
		case <-time.After(time.Second):
			t.Fatalf("missing %s notification", want)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	f := NewFanout(nil)
	transport := NewChannelTransport(4)
	ref := utxo.OutRef{Index: 0}
	f.Subscribe("sub-1", transport, []utxo.OutRef{ref}, nil)
	f.Unsubscribe("sub-1")

	f.Notify(utxo.Transition{OutRef: ref, OldState: utxo.Unspent, NewState: utxo.Locked})

	select {
	case n := <-transport.C:
		t.Fatalf("unexpected notification after unsubscribe: %+v", n)
	case <-time.After(20 * time.Millisecond):
	}
}
