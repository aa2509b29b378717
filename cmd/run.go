package main

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/refdata"
)

var (
	runScenario  int
	runText      string
	runHSHint    string
	runEventFile string
	runBaseRoute string
	runPrice     float64
	runApprove   []string
)

// runReport is printed after an event has been handled.
type runReport struct {
	Event       model.TariffChangeEvent `json:"event"`
	Confidence  *float64                `json:"confidence,omitempty"`
	Records     []model.DecisionRecord  `json:"records"`
	ReviewQueue []model.Classification  `json:"review_queue"`
	AuditTail   []model.DecisionRecord  `json:"audit_tail"`
	Errors      []string                `json:"errors,omitempty"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Handle one tariff change event and print the decisions",
	Long: "Builds an event from --text, --event or a demo --scenario, re-costs every affected SKU " +
		"and prints the decision records, the HTS review queue and the audit tail. " +
		"Approvals given with --approve are applied before the event is handled.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initSession(ctx, "run")
		if err != nil {
			return err
		}

		approvals, err := parseApprovals(runApprove, cfg.Pipeline.ApprovalConfidence)
		if err != nil {
			return err
		}
		if err := applyApprovals(env.Session, approvals); err != nil {
			return err
		}

		ev, conf, err := resolveEvent(env)
		if err != nil {
			return err
		}

		report, err := handleEvent(ctx, env, ev, conf)
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), report)
	},
}

// resolveEvent picks the event source: --text, then --event, then --scenario.
func resolveEvent(env *sessionEnv) (model.TariffChangeEvent, *float64, error) {
	switch {
	case runText != "":
		ev, conf, _ := env.Norm.Normalize(runText, runHSHint, cfg.Pipeline.Destination)
		if ev == nil {
			return model.TariffChangeEvent{}, nil, eris.Errorf("no event could be extracted from text (confidence %.2f)", conf)
		}
		return *ev, &conf, nil
	case runEventFile != "":
		ev, err := readEventFile(runEventFile)
		return ev, nil, err
	default:
		ev, err := refdata.ScenarioEvent(env.Store, runScenario, cfg.Pipeline.Destination)
		return ev, nil, err
	}
}

func readEventFile(path string) (model.TariffChangeEvent, error) {
	var ev model.TariffChangeEvent
	data, err := os.ReadFile(path)
	if err != nil {
		return ev, eris.Wrap(err, "read event file")
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, eris.Wrapf(err, "parse event file %s", path)
	}
	if ev.Source == "" {
		ev.Source = "file:" + path
	}
	if ev.EffectiveDate == "" {
		ev.EffectiveDate = model.UnknownEffectiveDate
	}
	if ev.Destination == "" {
		ev.Destination = cfg.Pipeline.Destination
	}
	return ev, ev.Validate()
}

// handleEvent runs ev through the session. Per-SKU failures are reported in
// the result; only cancellation is returned as an error.
func handleEvent(ctx context.Context, env *sessionEnv, ev model.TariffChangeEvent, conf *float64) (*runReport, error) {
	baseRoute := runBaseRoute
	if baseRoute == "" {
		baseRoute = cfg.Pipeline.BaseRoute
	}
	price := runPrice
	if price == 0 {
		price = cfg.Pipeline.PriceUSD
	}
	if !(price > 0) || math.IsInf(price, 1) {
		return nil, eris.New("--price must be > 0")
	}

	records, err := env.Session.HandleEvent(ctx, ev, baseRoute, price)
	if err != nil && ctx.Err() != nil {
		return nil, eris.Wrap(err, "handle event")
	}

	report := &runReport{
		Event:       ev,
		Confidence:  conf,
		Records:     records,
		ReviewQueue: env.Session.ReviewQueue(),
		AuditTail:   env.Session.AuditTail(cfg.Pipeline.AuditTail),
	}
	if report.Records == nil {
		report.Records = []model.DecisionRecord{}
	}
	for _, e := range multierr.Errors(err) {
		report.Errors = append(report.Errors, e.Error())
	}

	zap.L().Info("event handled",
		zap.String("hs_code", ev.HSCode),
		zap.String("source", ev.Source),
		zap.Int("records", len(report.Records)),
		zap.Int("review_queue", len(report.ReviewQueue)),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

func writeReport(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	runCmd.Flags().IntVar(&runScenario, "scenario", 1, "demo scenario id from scenarios.csv")
	runCmd.Flags().StringVar(&runText, "text", "", "bulletin text to normalize into an event")
	runCmd.Flags().StringVar(&runHSHint, "hs-hint", "", "HS code to use when --text has none")
	runCmd.Flags().StringVar(&runEventFile, "event", "", "path to a JSON tariff change event")
	runCmd.Flags().StringVar(&runBaseRoute, "base-route", "", "baseline route id (default from config)")
	runCmd.Flags().Float64Var(&runPrice, "price", 0, "selling price in USD (default from config)")
	runCmd.Flags().StringSliceVar(&runApprove, "approve", nil, "approve an HTS classification as SKU or SKU=confidence (repeatable)")
	runCmd.MarkFlagsMutuallyExclusive("text", "event")
	rootCmd.AddCommand(runCmd)
}
