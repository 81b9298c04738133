// Package subscription fans out UTXO state transitions to interested
// clients: wallets subscribed to specific outputs or addresses receive a
// notification on every transition, delivered over a bounded,
// never-blocking queue per subscriber.
//
// The bounded-channel-per-event-class shape is grounded on the
// ChainNotifier pattern (RegisterConfirmationsNtfn/RegisterSpendNtfn
// each hand the caller a buffered channel rather than invoking a
// callback), adapted here to a registry of many dynamic subscribers
// instead of a fixed set of notifier methods.
package subscription

import (
	"sync"

	"github.com/decred/slog"

	"github.com/time-coin/timecoin/tcwire"
	"github.com/time-coin/timecoin/utxo"
)

// QueueDepth is the default number of pending notifications buffered per
// subscriber before the priority-drop policy engages.
const QueueDepth = 256

// Transport is how one subscriber actually receives a notification, e.g.
// a websocket connection or an in-process test channel.
type Transport interface {
	Send(tcwire.UTXOStateNotification) error
}

// subscriber holds one client's interest set and delivery queue.
type subscriber struct {
	id        string
	transport Transport
	outrefs   map[utxo.OutRef]struct{}
	addresses map[string]struct{}

	queue chan tcwire.UTXOStateNotification

	mu      sync.Mutex
	dropped uint64
}

// isCritical reports whether a transition must never be dropped under
// queue pressure: SpentFinalized and any reversion to Unspent are the
// transitions a wallet cannot afford to miss. Intermediate Locked and
// SpentPending notifications may be shed under load.
func isCritical(n tcwire.UTXOStateNotification) bool {
	return n.NewState == utxo.SpentFinalized.String() || n.NewState == utxo.Unspent.String()
}

// Fanout is the subscriber registry and dedicated draining worker pool.
// It implements utxo.Notifier so a Manager can be wired directly to it.
type Fanout struct {
	log slog.Logger

	mu     sync.RWMutex
	subs   map[string]*subscriber
	onDrop func()

	wg sync.WaitGroup
}

// NewFanout returns an empty Fanout.
func NewFanout(log slog.Logger) *Fanout {
	if log == nil {
		log = defaultLog
	}
	return &Fanout{
		log:  log,
		subs: make(map[string]*subscriber),
	}
}

// ObserveDrops registers a function called once per dropped
// notification, e.g. to drive a counter. Must be set before the first
// Subscribe.
func (f *Fanout) ObserveDrops(fn func()) {
	f.onDrop = fn
}

// Len returns the number of active subscribers.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Subscribe registers a subscriber's interest and starts its dedicated
// draining worker. Re-subscribing with the same ID replaces the previous
// interest set but keeps the existing queue and worker running.
func (f *Fanout) Subscribe(id string, transport Transport, outrefs []utxo.OutRef, addresses []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.subs[id]; ok {
		existing.mu.Lock()
		existing.outrefs = outrefSet(outrefs)
		existing.addresses = addressSet(addresses)
		existing.mu.Unlock()
		return
	}

	sub := &subscriber{
		id:        id,
		transport: transport,
		outrefs:   outrefSet(outrefs),
		addresses: addressSet(addresses),
		queue:     make(chan tcwire.UTXOStateNotification, QueueDepth),
	}
	f.subs[id] = sub

	f.wg.Add(1)
	go f.drain(sub)
}

// Unsubscribe removes a subscriber and stops its worker.
func (f *Fanout) Unsubscribe(id string) {
	f.mu.Lock()
	sub, ok := f.subs[id]
	if ok {
		delete(f.subs, id)
	}
	f.mu.Unlock()

	if ok {
		close(sub.queue)
	}
}

// Notify implements utxo.Notifier. It is called synchronously from the
// Manager on every committed transition and must not block; matching and
// enqueueing is O(subscribers) but each enqueue is a non-blocking channel
// send.
func (f *Fanout) Notify(t utxo.Transition) {
	notification := tcwire.UTXOStateNotification{
		OutRef:     tcwire.OutRef{TxID: t.OutRef.TxID, Index: t.OutRef.Index},
		OldState:   t.OldState.String(),
		NewState:   t.NewState.String(),
		Originator: t.Originator,
		Timestamp:  t.Timestamp.Unix(),
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subs {
		if !sub.interestedIn(t.OutRef, t.Address) {
			continue
		}
		f.enqueue(sub, notification)
	}
}

// enqueue applies the priority-drop policy: critical notifications block
// briefly are never discarded by simply dropping, non-critical ones are
// dropped the instant the queue is full rather than applying backpressure
// to the committing goroutine.
func (f *Fanout) enqueue(sub *subscriber, n tcwire.UTXOStateNotification) {
	select {
	case sub.queue <- n:
		return
	default:
	}

	if !isCritical(n) {
		sub.mu.Lock()
		sub.dropped++
		sub.mu.Unlock()
		if f.onDrop != nil {
			f.onDrop()
		}
		f.log.Warnf("dropped %s notification for subscriber %s: queue full", n.NewState, sub.id)
		return
	}

	// Critical: evict the oldest queued entry and retry once.
	select {
	case <-sub.queue:
	default:
	}
	select {
	case sub.queue <- n:
	default:
		f.log.Errorf("could not deliver critical %s notification to subscriber %s", n.NewState, sub.id)
	}
}

// drain is the dedicated worker that delivers one subscriber's queue to
// its transport in order. Per-outref delivery order is preserved because
// Notify enqueues in the order the Manager committed the transitions; no
// ordering guarantee is made across different outrefs.
func (f *Fanout) drain(sub *subscriber) {
	defer f.wg.Done()
	for n := range sub.queue {
		if err := sub.transport.Send(n); err != nil {
			f.log.Warnf("subscriber %s transport error: %v", sub.id, err)
		}
	}
}

// Dropped returns the number of non-critical notifications dropped for
// subscriber id so far.
func (f *Fanout) Dropped(id string) uint64 {
	f.mu.RLock()
	sub, ok := f.subs[id]
	f.mu.RUnlock()
	if !ok {
		return 0
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.dropped
}

// interestedIn reports whether a transition on ref, paying address,
// matches this subscriber's interest set by either key.
func (s *subscriber) interestedIn(ref utxo.OutRef, address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outrefs[ref]; ok {
		return true
	}
	_, ok := s.addresses[address]
	return ok
}

func outrefSet(refs []utxo.OutRef) map[utxo.OutRef]struct{} {
	set := make(map[utxo.OutRef]struct{}, len(refs))
	for _, r := range refs {
		set[r] = struct{}{}
	}
	return set
}

func addressSet(addrs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		set[a] = struct{}{}
	}
	return set
}
