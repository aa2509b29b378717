package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/normalize"
)

var (
	normalizeHSHint string
	normalizeDest   string
)

type normalizeReport struct {
	Event      *model.TariffChangeEvent `json:"event"`
	Confidence float64                  `json:"confidence"`
	Meta       normalize.Meta           `json:"meta"`
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize TEXT...",
	Short: "Extract a tariff change event from bulletin text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			return eris.New("text is required")
		}

		dest := normalizeDest
		if dest == "" {
			dest = cfg.Pipeline.Destination
		}

		ev, conf, meta := normalize.New(cfg.Pipeline.DefaultOrigin).Normalize(text, normalizeHSHint, dest)
		return writeReport(cmd.OutOrStdout(), normalizeReport{Event: ev, Confidence: conf, Meta: meta})
	},
}

func init() {
	normalizeCmd.Flags().StringVar(&normalizeHSHint, "hs-hint", "", "HS code to use when the text has none")
	normalizeCmd.Flags().StringVar(&normalizeDest, "dest", "", "destination market (default from config)")
	rootCmd.AddCommand(normalizeCmd)
}
