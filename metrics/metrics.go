// Package metrics exposes the block controller's prometheus instrumentation: pending-
// block and fork-database gauges, pipeline counters, and window-controller timing
// histograms. Collectors are package-level and registered against a shared registry
// at startup.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PendingBlockNum = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgerd",
		Subsystem: "pending",
		Name:      "block_num",
		Help:      "Block number of the pending block currently being built.",
	})

	ForkDBSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgerd",
		Subsystem: "forkdb",
		Name:      "tracked_blocks",
		Help:      "Number of block states currently tracked by the fork database.",
	})

	LastIrreversibleBlockNum = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgerd",
		Subsystem: "irreversibility",
		Name:      "lib_block_num",
		Help:      "Block number of the last-irreversible block.",
	})

	TransactionsPushed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgerd",
		Subsystem: "pipeline",
		Name:      "transactions_pushed_total",
		Help:      "Transactions pushed through the pipeline, labeled by outcome kind.",
	}, []string{"kind"})

	UnappliedQueueBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgerd",
		Subsystem: "unapplied",
		Name:      "queue_used_bytes",
		Help:      "Bytes currently held in the unapplied transaction queue.",
	})

	WriteWindowDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ledgerd",
		Subsystem: "window",
		Name:      "write_window_duration_seconds",
		Help:      "Observed duration of each write window.",
		Buckets:   prometheus.DefBuckets,
	})

	ReadWindowDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ledgerd",
		Subsystem: "window",
		Name:      "read_window_duration_seconds",
		Help:      "Observed duration of each read window.",
		Buckets:   prometheus.DefBuckets,
	})

	QuorumCertificatesFormed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ledgerd",
		Subsystem: "finality",
		Name:      "quorum_certificates_formed_total",
		Help:      "Quorum certificates that crossed weak or strong threshold.",
	})
)

// Register adds every collector above to reg. Called once from cmd/ledgerd at startup.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		PendingBlockNum,
		ForkDBSize,
		LastIrreversibleBlockNum,
		TransactionsPushed,
		UnappliedQueueBytes,
		WriteWindowDuration,
		ReadWindowDuration,
		QuorumCertificatesFormed,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
