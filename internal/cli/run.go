package cli

import (
	"fmt"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adhocsim/macsim/internal/tui"
	"github.com/adhocsim/macsim/metrics"
	"github.com/adhocsim/macsim/scenario"
)

var (
	outPath    string
	tickCapArg int
	watch      bool
	macOnly    bool
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.toml>",
	Short: "Run a scenario to completion",
	Long: `Run loads a scenario file, builds its simulator, steps it tick by
tick until every scheduled message reaches its route target (or the
tick cap is hit), and writes a metrics CSV.

Use --watch to attach a live table of per-node state while it runs.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&outPath, "out", "o", "metrics.csv", "metrics CSV output path")
	runCmd.Flags().IntVar(&tickCapArg, "tick-cap", 0, "override the scenario's tick cap (0 keeps the scenario's own value)")
	runCmd.Flags().BoolVarP(&watch, "watch", "w", false, "attach a live inspector while the run executes")
	runCmd.Flags().BoolVar(&macOnly, "mac-metrics", false, "write the MAC-only row shape instead of routing deliveries")
}

func buildLogger() log.Logger {
	var logger log.Logger
	if viper.GetString("logging.format") == "json" {
		logger = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	switch viper.GetString("logging.level") {
	case "debug":
		logger = level.NewFilter(logger, level.AllowDebug())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	default:
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	return logger
}

func runRun(_ *cobra.Command, args []string) error {
	logger := buildLogger()

	cfg, err := scenario.LoadScenario(args[0])
	if err != nil {
		return fmt.Errorf("failed to load scenario: %w", err)
	}
	if tickCapArg > 0 {
		cfg.TickCap = tickCapArg
	}

	level.Info(logger).Log("message", "scenario loaded", "name", cfg.Name, "nodes", len(cfg.Nodes), "tick_cap", cfg.TickCap)

	sim, err := cfg.NewSimulator(logger)
	if err != nil {
		return fmt.Errorf("failed to build simulator: %w", err)
	}

	kind := metrics.KindRouting
	if macOnly {
		kind = metrics.KindMAC
	}
	sink, err := metrics.Open(outPath, kind)
	if err != nil {
		return fmt.Errorf("failed to open metrics sink: %w", err)
	}

	if watch {
		fanDone := make(chan struct{})
		tuiFeed, logFeed := fanoutSnapshots(fanDone, sim.Snapshots)
		go logProgress(fanDone, logger, logFeed, 50)

		runDone := make(chan error, 1)
		go func() {
			_, runErr := sim.Run(sink)
			runDone <- runErr
		}()
		if tuiErr := tui.Run(cfg.Name, tuiFeed); tuiErr != nil {
			level.Warn(logger).Log("message", "inspector exited with error", "err", tuiErr)
		}
		runErr := <-runDone
		close(fanDone)
		if runErr != nil {
			_ = sink.Close()
			return fmt.Errorf("simulation failed: %w", runErr)
		}
		return sink.Close()
	}

	finalTick, err := sim.Run(sink)
	if err != nil {
		_ = sink.Close()
		return fmt.Errorf("simulation failed: %w", err)
	}
	if err := sink.Close(); err != nil {
		return fmt.Errorf("failed to close metrics sink: %w", err)
	}

	level.Info(logger).Log("message", "run complete", "final_tick", finalTick, "metrics", outPath)
	return nil
}
