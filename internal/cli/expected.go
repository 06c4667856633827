package cli

import (
	"fmt"

	"github.com/fjod/go_pos/internal/billing"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type ExpectedOptions struct {
	*RootOptions
	Start       string
	Sales       string
	Expenses    string
	Withdrawals string
	Counted     string
}

type expectedResult struct {
	ExpectedCash string `json:"expected_cash"`
	Counted      string `json:"counted,omitempty"`
	Difference   string `json:"difference,omitempty"`
}

func NewExpectedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExpectedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "expected",
		Short: "Compute the cash expected in the drawer",
		Long: `Compute start + cash sales - expenses - withdrawals, and the
difference against a counted amount when one is given.

Example:
  terminal expected --start 300 --sales 500 --expenses 120 --withdrawals 50 --counted 600`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpected(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Start, "start", "0", "starting float")
	cmd.Flags().StringVar(&opts.Sales, "sales", "0", "cash sales")
	cmd.Flags().StringVar(&opts.Expenses, "expenses", "0", "expenses paid from the drawer")
	cmd.Flags().StringVar(&opts.Withdrawals, "withdrawals", "0", "cash withdrawals")
	cmd.Flags().StringVar(&opts.Counted, "counted", "", "counted amount")

	return cmd
}

func runExpected(opts *ExpectedOptions, cmd *cobra.Command) error {
	amounts := make([]decimal.Decimal, 4)
	for i, f := range []struct{ name, value string }{
		{"start", opts.Start},
		{"sales", opts.Sales},
		{"expenses", opts.Expenses},
		{"withdrawals", opts.Withdrawals},
	} {
		d, err := decimal.NewFromString(f.value)
		if err != nil {
			return fmt.Errorf("--%s: %w", f.name, err)
		}
		amounts[i] = d
	}

	expected := billing.ExpectedCash(amounts[0], amounts[1], amounts[2], amounts[3])
	res := expectedResult{ExpectedCash: expected.StringFixed(2)}
	if opts.Counted != "" {
		counted, err := decimal.NewFromString(opts.Counted)
		if err != nil {
			return fmt.Errorf("--counted: %w", err)
		}
		res.Counted = counted.StringFixed(2)
		res.Difference = billing.Difference(counted, expected).StringFixed(2)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	out := fmt.Sprintf("expected %s", res.ExpectedCash)
	if res.Difference != "" {
		out += fmt.Sprintf(", counted %s, difference %s", res.Counted, res.Difference)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}
