// Command ledgerd is the block controller's standalone process shell: it binds the
// controller's flat configuration surface to CLI flags via cobra/pflag (configuration-file
// parsing is an explicit Non-goal — this module never parses a config file itself), opens
// the block log, starts the prometheus metrics endpoint, and waits for SIGINT or SIGTERM.
// It does not open the fork database or drive the write/read window alternation, and it
// does not consult TerminateAtBlock.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/erigontech/erigon-lib/log/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ledgerd-io/ledgerd/blocklog"
	"github.com/ledgerd-io/ledgerd/chainapi"
	"github.com/ledgerd-io/ledgerd/chaintypes"
	"github.com/ledgerd-io/ledgerd/metrics"
)

// parseAccountNames converts decimal CLI-supplied ids into chaintypes.AccountName,
// skipping unparsable entries rather than failing startup over a typo in an optional
// trust list.
func parseAccountNames(raw []string) []chaintypes.AccountName {
	out := make([]chaintypes.AccountName, 0, len(raw))
	for _, s := range raw {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, chaintypes.AccountName(n))
	}
	return out
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var limits chainapi.Limits
	var dataDir string
	var metricsAddr string

	var trustedProducers []string

	cmd := &cobra.Command{
		Use:   "ledgerd",
		Short: "ledgerd opens the block log and serves block-controller metrics until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			limits.TrustedProducers = parseAccountNames(trustedProducers)
			return run(cmd.Context(), dataDir, metricsAddr, limits)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&dataDir, "data-dir", "./data", "directory holding the block log and finality safety store")
	flags.StringVar(&metricsAddr, "metrics-listen", "127.0.0.1:9102", "address to serve /metrics on")

	flags.Uint32Var(&limits.MaxTransactionTimeMS, "max-transaction-time-ms", 200, "per-transaction wall-clock ceiling")
	flags.Int32Var(&limits.MaxIrreversibleBlockAgeS, "max-irreversible-block-age", -1, "disable production if LIB falls this far behind (-1 disables the check)")
	flags.Int32Var(&limits.ProduceTimeOffsetUS, "produce-time-offset-us", 0, "offset applied to the block deadline")
	flags.Int32Var(&limits.LastBlockTimeOffsetUS, "last-block-time-offset-us", 0, "offset applied on a producer's last block of its slot")
	flags.Uint32Var(&limits.CPUEffortPercent, "cpu-effort-percent", 80, "percentage of max-transaction-time-ms used for the block deadline")
	flags.Uint32Var(&limits.LastBlockCPUEffortPercent, "last-block-cpu-effort-percent", 80, "cpu-effort-percent used on a producer's last block of its slot")
	flags.Uint32Var(&limits.MaxBlockCPUUsageThresholdUS, "max-block-cpu-usage-threshold-us", 50000, "CPU budget a block is considered exhausted below")
	flags.Uint32Var(&limits.MaxBlockNetUsageThresholdBytes, "max-block-net-usage-threshold-bytes", 1048576, "NET budget a block is considered exhausted below")
	flags.Uint32Var(&limits.MaxScheduledTransactionTimePerBlockMS, "max-scheduled-transaction-time-per-block-ms", 100, "sub-deadline for draining scheduled transactions")
	flags.Uint32Var(&limits.SubjectiveCPULeewayUS, "subjective-cpu-leeway-us", 31000, "extra CPU time granted over the subjective ledger balance")
	flags.Uint32Var(&limits.SubjectiveAccountMaxFailures, "subjective-account-max-failures", 3, "local failures before an account is refused for the rest of the window")
	flags.Uint32Var(&limits.SubjectiveAccountMaxFailuresWindowSize, "subjective-account-max-failures-window-size", 1, "blocks per failure-limiter window")
	flags.Uint32Var(&limits.SubjectiveAccountDecayTimeMinutes, "subjective-account-decay-time-minutes", 1, "half-life of the subjective billing ledger")
	flags.Float64Var(&limits.IncomingDeferRatio, "incoming-defer-ratio", 1.0, "ratio of block budget reserved for newly-incoming transactions")
	flags.Uint32Var(&limits.IncomingTransactionQueueSizeMB, "incoming-transaction-queue-size-mb", 1024, "byte budget of the unapplied transaction queue")
	flags.BoolVar(&limits.DisableSubjectiveBilling, "disable-subjective-billing", false, "disable subjective CPU billing entirely")
	flags.BoolVar(&limits.DisableSubjectiveP2PBilling, "disable-subjective-p2p-billing", false, "disable subjective billing for P2P-originated transactions")
	flags.BoolVar(&limits.DisableSubjectiveAPIBilling, "disable-subjective-api-billing", false, "disable subjective billing for API-originated transactions")
	flags.IntVar(&limits.ProducerThreads, "producer-threads", 2, "worker threads available to the producing app thread")
	flags.IntVar(&limits.ReadOnlyThreads, "read-only-threads", 4, "worker goroutines draining the read-only queue")
	flags.Uint32Var(&limits.ReadOnlyWriteWindowTimeUS, "read-only-write-window-time-us", 200000, "write window duration")
	flags.Uint32Var(&limits.ReadOnlyReadWindowTimeUS, "read-only-read-window-time-us", 20000, "read window duration")
	flags.IntVar(&limits.TrxMetaCacheSize, "trx-meta-cache-size", 65536, "fork-db transaction metadata LRU cache size")
	flags.StringVar(&limits.SnapshotsDir, "snapshots-dir", "./data/snapshots", "directory holding written snapshots")

	flags.StringSliceVar(&trustedProducers, "trusted-producer", nil, "decimal account-name id trusted to skip full block validation (repeatable)")

	return cmd
}

func run(ctx context.Context, dataDir, metricsAddr string, limits chainapi.Limits) error {
	logger := log.Root()

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("ledgerd: registering metrics: %w", err)
	}

	logLog, err := blocklog.Open(dataDir)
	if err != nil {
		return fmt.Errorf("ledgerd: opening block log: %w", err)
	}
	defer logLog.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: metricsAddr, Handler: mux}

	go func() {
		logger.Info("ledgerd: metrics endpoint listening", "addr", metricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ledgerd: metrics server failed", "err", err)
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("ledgerd: started", "data_dir", dataDir, "head_block_num", logLog.HeadBlockNum())
	<-sigCtx.Done()
	logger.Info("ledgerd: shutting down")
	return server.Close()
}
