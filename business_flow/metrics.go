package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Quotes returned to callers
	quotesComputedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quotes_computed_total",
			Help: "Total number of quotes returned by the quote engine",
		},
	)

	// Quote requests declined because the vehicle is blacklisted
	quotesDeclinedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quotes_declined_total",
			Help: "Total number of quote requests declined for non-insurable vehicles",
		},
	)

	// Assignment attempts partitioned by outcome (assigned, no_eligible_broker, already_assigned, lost_race)
	leadAssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_assignments_total",
			Help: "Total number of lead assignment attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Ledger entries partitioned by transaction type
	ledgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_ledger_entries_total",
			Help: "Total number of broker ledger entries appended",
		},
		[]string{"type"},
	)

	// Account state transitions partitioned by target status
	accountTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_account_transitions_total",
			Help: "Total number of broker account status transitions",
		},
		[]string{"status"},
	)
)
