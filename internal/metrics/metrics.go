// Package metrics defines the Prometheus collectors for the ledger and the
// realtime hub. Collectors are registered on the default registry; expose
// them with promhttp.Handler().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LedgerAdjustments counts applied balance adjustments (one per mirrored
	// pair delta, aggregate mirrors included).
	LedgerAdjustments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_ledger_adjustments_total",
		Help: "Number of balance adjustments applied to the ledger.",
	})

	// ActiveSessions tracks currently connected realtime sessions by channel
	// kind ("group" or "user").
	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "splitledger_realtime_sessions_active",
		Help: "Number of active realtime sessions.",
	}, []string{"channel_kind"})

	// Broadcasts counts hub fan-outs (one per broadcast call, not per session).
	Broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_realtime_broadcasts_total",
		Help: "Number of messages broadcast to realtime channels.",
	})

	// DroppedSends counts per-session sends abandoned because the session's
	// buffer was full or its transport failed.
	DroppedSends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_realtime_dropped_sends_total",
		Help: "Number of realtime sends dropped due to slow or dead sessions.",
	})
)
