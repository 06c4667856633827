package cli

import (
	"fmt"
	"time"

	"github.com/fjod/go_pos/internal/billing"
	"github.com/fjod/go_pos/internal/config"
	"github.com/spf13/cobra"
)

type QuoteOptions struct {
	*RootOptions
	Minutes   int
	Rates     string
	RatesFile string
}

type quoteResult struct {
	Tariff          string `json:"tariff"`
	ElapsedMinutes  int    `json:"elapsed_minutes"`
	BillableMinutes int    `json:"billable_minutes"`
	Amount          string `json:"amount"`
}

func NewQuoteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QuoteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a coworking stay",
		Long: `Price a coworking stay of the given length with one of the tariffs.

Example:
  terminal quote --minutes 95
  terminal quote --minutes 200 --rates in-session --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuote(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Minutes, "minutes", 0, "elapsed minutes (required)")
	cmd.Flags().StringVar(&opts.Rates, "rates", "general", "tariff (general|in-session)")
	cmd.Flags().StringVar(&opts.RatesFile, "rates-file", "", "YAML file overriding the built-in tariffs")
	_ = cmd.MarkFlagRequired("minutes")

	return cmd
}

func runQuote(opts *QuoteOptions, cmd *cobra.Command) error {
	if opts.Minutes < 0 {
		return fmt.Errorf("minutes must not be negative")
	}
	rates, err := config.LoadRates(opts.RatesFile)
	if err != nil {
		return err
	}
	table, err := rates.Table(opts.Rates)
	if err != nil {
		return err
	}

	billable := billing.BillableMinutes(time.Duration(opts.Minutes)*time.Minute, table.ToleranceMinutes)
	res := quoteResult{
		Tariff:          table.Name,
		ElapsedMinutes:  opts.Minutes,
		BillableMinutes: billable,
		Amount:          table.Price(billable).StringFixed(2),
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d min elapsed, %d billable, %s\n",
		res.Tariff, res.ElapsedMinutes, res.BillableMinutes, res.Amount)
	return err
}
