package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"kcexplore/pkg/config"
	"kcexplore/pkg/explore"
	"kcexplore/pkg/kconfig"
	"kcexplore/pkg/knowledge"
	"kcexplore/pkg/logx"
	"kcexplore/pkg/oracle"
	"kcexplore/pkg/oracle/llm"
	"kcexplore/pkg/oracle/metrics"
	"kcexplore/pkg/oracle/middleware/cache"
	"kcexplore/pkg/oracle/middleware/tracing"
	"kcexplore/pkg/persistence"
	"kcexplore/pkg/tokens"
	"kcexplore/pkg/transcript"
)

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Ask the oracle for configuration recommendations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		flags := cmd.Flags()
		if v, _ := flags.GetString("tree"); v != "" {
			cfg.Explore.TreeFile = v
		}
		if v, _ := flags.GetString("target"); v != "" {
			cfg.Explore.Target = v
		}
		if v, _ := flags.GetString("preset"); v != "" {
			if _, ok := config.LookupTarget(v); !ok {
				return fmt.Errorf("unknown preset %q, see 'kcexplore targets'", v)
			}
			cfg.Explore.Preset = v
		}
		if v, _ := flags.GetString("out"); v != "" {
			cfg.Explore.OutputFile = v
		}
		if v, _ := flags.GetInt("parallelism"); v > 0 {
			cfg.Explore.Parallelism = v
		}

		if err := unlockSecrets(cfg.Knowledge.WorkingDir); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, err = runExplore(ctx, cmd.OutOrStdout(), cfg, nil)
		return err
	},
}

func init() {
	rootCmd.AddCommand(exploreCmd)

	exploreCmd.Flags().String("tree", "", "Kconfig tree dump (YAML or JSON)")
	exploreCmd.Flags().String("target", "", "Optimization target in plain words")
	exploreCmd.Flags().String("preset", "", "Preset target key (see 'kcexplore targets')")
	exploreCmd.Flags().String("out", "", "Write the recommended .config fragment here")
	exploreCmd.Flags().Int("parallelism", 0, "Concurrent oracle queries per stage")
	exploreCmd.MarkFlagsMutuallyExclusive("target", "preset")
}

// runExplore wires the stores, sinks, metrics and oracle client around one
// exploration and writes its result. A non-nil raw replaces the provider.
func runExplore(ctx context.Context, out io.Writer, cfg *config.Config, raw llm.LLMClient) (*explore.Result, error) {
	logger := logx.NewLogger("kcexplore")
	started := time.Now().UTC().Truncate(time.Millisecond)
	ctx = logx.WithComponent(ctx, "explore")

	target, err := cfg.Explore.ResolveTarget()
	if err != nil {
		return nil, err
	}
	if cfg.Explore.TreeFile == "" {
		return nil, fmt.Errorf("no tree dump given: pass --tree or set explore.tree_file")
	}
	tree, err := kconfig.Load(cfg.Explore.TreeFile)
	if err != nil {
		return nil, err
	}

	db, err := openStore(cfg.Knowledge.DBPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	sessions := persistence.NewSessionStore(db)
	if n, err := sessions.MarkStaleSessions(ctx); err != nil {
		logger.Warn("⚠️ %v", err)
	} else if n > 0 {
		logger.Info("marked %d unfinished sessions as crashed", n)
	}

	sessionID := oracle.NewSessionID()
	writer, err := transcript.NewWriter(cfg.Logging.TranscriptDir, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = writer.Close() }()

	counter, err := tokens.NewCounter(cfg.Oracle.Model)
	if err != nil {
		logger.Warn("⚠️ token counting disabled: %v", err)
		counter = nil
	}

	summary := metrics.NewSummary()
	recorder := metrics.Fanout{summary}
	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		recorder = append(recorder, metrics.NewPrometheusRecorder(registry))
	}

	clientOpts := oracle.ClientOptions{Raw: raw, Counter: counter}
	if cfg.Cache.Enabled() {
		store := cache.New(cfg.Cache.RedisAddr, cfg.Cache.Password, cfg.Cache.DB,
			cache.WithTTL(cfg.Cache.TTL), cache.WithPrefix(cfg.Cache.Prefix))
		if err := store.Ping(ctx); err != nil {
			logger.Warn("⚠️ answer cache unavailable, continuing without it: %v", err)
			_ = store.Close()
		} else {
			clientOpts.Cache = store
			defer func() { _ = store.Close() }()
		}
	}

	if cfg.Logging.Trace {
		tp := tracing.NewLogProvider(logx.NewLogger("trace"))
		defer func() { _ = tp.Shutdown(context.WithoutCancel(ctx)) }()
		clientOpts.Tracer = tp.Tracer("kcexplore/oracle")
	}

	client, err := oracle.NewClient(cfg.Oracle, clientOpts)
	if err != nil {
		return nil, err
	}

	session := oracle.NewSession(target, client, oracle.Env{
		Sink:        oracle.MultiSink{writer, persistence.NewExchangeStore(db)},
		Prices:      cfg.Oracle.Pricing(),
		Recorder:    recorder,
		Counter:     counter,
		SessionID:   sessionID,
		MaxTokens:   cfg.Oracle.MaxTokens,
		Temperature: float32(cfg.Oracle.Temperature),
		BudgetUSD:   cfg.Oracle.BudgetUSD,
	})

	if err := sessions.Start(ctx, sessionID, target, client.GetModelName()); err != nil {
		return nil, err
	}
	logger.Info("📦 session %s, model %s, transcript %s", sessionID, client.GetModelName(), writer.Path())

	var src explore.KnowledgeSource
	if !cfg.Knowledge.Disabled {
		src = knowledge.NewStore(db)
	}
	explorer := explore.New(tree, session, src, explore.Options{
		BatchSize:      cfg.Explore.BatchSize,
		MaxBatchTokens: cfg.Explore.MaxBatchTokens,
		MaxDepth:       cfg.Explore.MaxDepth,
		Parallelism:    cfg.Explore.Parallelism,
		MaxResults:     cfg.Knowledge.MaxResults,
		KnowledgeDepth: cfg.Knowledge.Depth,
		Counter:        counter,
	})
	result, runErr := explorer.Run(ctx)

	status := persistence.SessionStatusCompleted
	if runErr != nil {
		status = persistence.SessionStatusFailed
	}
	if err := sessions.Finish(context.WithoutCancel(ctx), sessionID, status, session.Cost()); err != nil {
		logger.Warn("⚠️ failed to record session end: %v", err)
	}
	if registry != nil && cfg.Metrics.TextfilePath != "" {
		if err := metrics.WriteTextfile(registry, cfg.Metrics.TextfilePath); err != nil {
			logger.Warn("⚠️ %v", err)
		}
	}
	if runErr != nil {
		return nil, logx.Wrap(runErr, "session "+sessionID)
	}

	if err := writeFile(cfg.Explore.OutputFile, func(f *os.File) error { return result.WriteConfig(f) }); err != nil {
		return nil, err
	}

	printSummary(out, result, summary, warningsSince(started))
	fmt.Fprintf(out, "📝 wrote %s\n", cfg.Explore.OutputFile)
	return result, nil
}

// warningsSince counts the warnings logged by any component since t.
func warningsSince(t time.Time) int {
	return len(logx.GetRecentLogEntries(logx.LevelWarn, t))
}

func printSummary(w io.Writer, result *explore.Result, summary *metrics.Summary, warnings int) {
	fmt.Fprintf(w, "%-10s %8s %8s %10s %10s\n", "STAGE", "QUERIES", "FAILED", "TOKENS", "COST")
	for _, s := range summary.Stages() {
		fmt.Fprintf(w, "%-10s %8d %8d %10d %10.4f\n",
			s.Stage, s.Requests, s.Failures, s.PromptTokens+s.CompletionTokens, s.Cost)
	}
	fmt.Fprintf(w, "✅ %d recommendations over %d menus, total cost $%.4f\n",
		len(result.Recommendations), len(result.ExploredMenus), result.Cost)
	if warnings > 0 {
		fmt.Fprintf(w, "⚠️ %d warnings logged during the run, see the log for details\n", warnings)
	}
}
