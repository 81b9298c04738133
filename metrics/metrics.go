// Package metrics exposes the daemon's Prometheus gauges and counters:
// active masternode count, in-flight vote tallies, finalized/rejected/
// timed-out transaction counters, dropped subscriber notifications, and
// subscriber count.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric the daemon emits so callers can pass one
// value around instead of a dozen globals.
type Registry struct {
	ActiveMasternodes    prometheus.Gauge
	InFlightVotes        prometheus.Gauge
	TxFinalized          prometheus.Counter
	TxRejected           prometheus.Counter
	TxTimedOut           prometheus.Counter
	NotificationsDropped prometheus.Counter
	SubscriberCount      prometheus.Gauge
}

// NewRegistry constructs and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ActiveMasternodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "timecoin",
			Name:      "active_masternodes",
			Help:      "Number of masternodes currently mature enough to vote.",
		}),
		InFlightVotes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "timecoin",
			Name:      "in_flight_votes",
			Help:      "Number of transactions currently awaiting a finality decision.",
		}),
		TxFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timecoin",
			Name:      "transactions_finalized_total",
			Help:      "Total number of transactions that reached SpentFinalized.",
		}),
		TxRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timecoin",
			Name:      "transactions_rejected_total",
			Help:      "Total number of transactions rejected by quorum vote or canceled.",
		}),
		TxTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timecoin",
			Name:      "transactions_timed_out_total",
			Help:      "Total number of transactions that exceeded the vote window without quorum.",
		}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timecoin",
			Name:      "notifications_dropped_total",
			Help:      "Total number of non-critical subscriber notifications dropped under load.",
		}),
		SubscriberCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "timecoin",
			Name:      "subscribers",
			Help:      "Number of active UTXO state subscribers.",
		}),
	}

	reg.MustRegister(
		r.ActiveMasternodes,
		r.InFlightVotes,
		r.TxFinalized,
		r.TxRejected,
		r.TxTimedOut,
		r.NotificationsDropped,
		r.SubscriberCount,
	)

	return r
}
