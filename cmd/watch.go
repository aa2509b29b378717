package main

import (
	"context"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/refdata"
	"github.com/sells-group/tariff-cli/internal/watcher"
)

var (
	watchScenario   int
	watchNoFallback bool
	watchInterval   time.Duration
	watchApprove    []string
)

// watchReport is printed after each poll.
type watchReport struct {
	Candidates int               `json:"candidates"`
	Failed     map[string]string `json:"failed,omitempty"`
	Fallback   bool              `json:"fallback"`
	Runs       []*runReport      `json:"runs"`
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll bulletin feeds and handle confident tariff events",
	Long: "Polls the configured watcher sources once and handles every event at or above " +
		"watcher.min_confidence. With no event the demo --scenario is handled instead, " +
		"unless --no-fallback is set. With --interval the poll repeats until interrupted " +
		"and never falls back.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initSession(ctx, "watch")
		if err != nil {
			return err
		}

		approvals, err := parseApprovals(watchApprove, cfg.Pipeline.ApprovalConfidence)
		if err != nil {
			return err
		}
		if err := applyApprovals(env.Session, approvals); err != nil {
			return err
		}

		w, err := watcher.New(cfg.Watcher, cfg.Pipeline.Destination, env.Norm)
		if err != nil {
			return eris.Wrap(err, "init watcher")
		}

		out := cmd.OutOrStdout()
		if watchInterval <= 0 {
			return watchOnce(ctx, out, env, w, !watchNoFallback)
		}

		zap.L().Info("watching", zap.Duration("interval", watchInterval), zap.Int("sources", len(cfg.Watcher.Sources)))
		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()
		for {
			if err := watchOnce(ctx, out, env, w, false); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			select {
			case <-ctx.Done():
				zap.L().Info("watch stopped")
				return nil
			case <-ticker.C:
			}
		}
	},
}

func watchOnce(ctx context.Context, out io.Writer, env *sessionEnv, w *watcher.Watcher, fallback bool) error {
	res, err := w.RunOnce(ctx)
	if err != nil {
		return err
	}

	report := watchReport{Candidates: len(res.Candidates), Runs: []*runReport{}}
	if len(res.Failed) > 0 {
		report.Failed = make(map[string]string, len(res.Failed))
		for name, ferr := range res.Failed {
			report.Failed[name] = ferr.Error()
		}
	}

	events := res.Events
	if len(events) == 0 && fallback {
		ev, err := refdata.ScenarioEvent(env.Store, watchScenario, cfg.Pipeline.Destination)
		if err != nil {
			return err
		}
		zap.L().Info("no confident live event, using demo scenario", zap.Int("scenario", watchScenario))
		events = append(events, ev)
		report.Fallback = true
	}

	for _, ev := range events {
		run, err := handleEvent(ctx, env, ev, nil)
		if err != nil {
			return err
		}
		report.Runs = append(report.Runs, run)
	}
	return writeReport(out, report)
}

func init() {
	watchCmd.Flags().IntVar(&watchScenario, "scenario", 1, "demo scenario to handle when no live event is found")
	watchCmd.Flags().BoolVar(&watchNoFallback, "no-fallback", false, "do not fall back to the demo scenario")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "poll repeatedly at this interval")
	watchCmd.Flags().StringSliceVar(&watchApprove, "approve", nil, "approve an HTS classification as SKU or SKU=confidence (repeatable)")
	rootCmd.AddCommand(watchCmd)
}
