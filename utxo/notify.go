package utxo

import "time"

// Transition describes one state change applied to one output. It is the
// unit of notification fanned out to subscribers. Address is the
// output's destination address, carried so address-based subscriptions
// can be matched without a lookup back into the manager.
type Transition struct {
	OutRef     OutRef
	Address    string
	OldState   State
	NewState   State
	Originator string
	Timestamp  time.Time
}

// Notifier receives every committed Transition. Implementations must not
// block; the manager calls Notify synchronously before the mutating
// operation returns, so a slow or misbehaving notifier must hand off to
// its own queue rather than stall the state machine.
type Notifier interface {
	Notify(Transition)
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(Transition)

// Notify implements Notifier.
func (f NotifierFunc) Notify(t Transition) { f(t) }

// multiNotifier fans one Transition out to several Notifiers.
type multiNotifier struct {
	targets []Notifier
}

// Notify implements Notifier.
func (m *multiNotifier) Notify(t Transition) {
	for _, target := range m.targets {
		target.Notify(t)
	}
}

// ChainNotifiers combines several Notifiers into one.
func ChainNotifiers(targets ...Notifier) Notifier {
	return &multiNotifier{targets: targets}
}
