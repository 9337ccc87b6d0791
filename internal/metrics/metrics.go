package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsCreated tracks transaction-state objects created by the manager
	TransactionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txmanager_transactions_created_total",
			Help: "Total number of transaction-state objects created",
		},
		[]string{"dispatch"},
	)

	// BuildFailures tracks option builds that failed before a transaction existed
	BuildFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txmanager_build_failures_total",
			Help: "Total number of transaction option builds that failed",
		},
		[]string{"reason"},
	)

	// TransactionTransitions tracks lifecycle transitions by target state
	TransactionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txmanager_transaction_transitions_total",
			Help: "Total number of transaction lifecycle transitions",
		},
		[]string{"state"},
	)

	// TransactionsStored tracks Store calls on the tracker
	TransactionsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "txmanager_tracker_stored_total",
			Help: "Total number of transactions stored in the tracker",
		},
	)

	// TransactionsSwept tracks transactions removed by the expiry sweep
	TransactionsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "txmanager_tracker_swept_total",
			Help: "Total number of expired transactions removed from the tracker",
		},
	)

	// TrackedHandles tracks the number of live handles
	TrackedHandles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "txmanager_tracker_handles",
			Help: "Number of handles currently tracked",
		},
	)

	// MultipleMatches tracks lookups that found more than one transaction
	MultipleMatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "txmanager_tracker_multiple_matches_total",
			Help: "Total number of lookups that matched more than one transaction",
		},
	)

	// ListenerInvocations tracks listener calls per state
	ListenerInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txmanager_listener_invocations_total",
			Help: "Total number of lifecycle listener invocations",
		},
		[]string{"state"},
	)

	// NonceAllocations tracks nonce allocations per backend
	NonceAllocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txmanager_nonce_allocations_total",
			Help: "Total number of nonces allocated",
		},
		[]string{"backend"},
	)

	// RPCCallsTotal tracks RPC calls per provider and method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txmanager_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txmanager_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"provider", "method"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "txmanager_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// ConfirmationWait tracks how long Confirm calls take
	ConfirmationWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "txmanager_confirmation_wait_seconds",
			Help:    "Time spent waiting for transaction confirmations",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// JournalWrites tracks journal appends per backend
	JournalWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txmanager_journal_writes_total",
			Help: "Total number of lifecycle events written to the journal",
		},
		[]string{"backend", "result"},
	)

	// DBConnectionPoolUsage tracks the percentage of open connections in use
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "txmanager_db_connection_pool_usage_percent",
			Help: "Percentage of database connection pool in use",
		},
	)
)
