package cli

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/greenpass/greenpass/internal/money"
	"github.com/greenpass/greenpass/internal/reconciliation"
)

func newReconcileCommand() *cobra.Command {
	var (
		float    string
		expected string
		counts   []string
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compute a cash drawer variance offline",
		Long: `Compute the variance between a counted drawer and the cash the ledger expects.

Each --count takes DENOMINATIONxCOUNT, e.g. 50x13 or 0.50x4.`,
		Example: `  greenpassctl reconcile --float 100 --expected 600 --count 50x13 --count 0.50x4`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := reconciliation.Input{}
			var err error
			if in.OpeningFloat, err = money.Parse(float); err != nil {
				return fmt.Errorf("--float: %w", err)
			}
			if in.ExpectedCash, err = money.Parse(expected); err != nil {
				return fmt.Errorf("--expected: %w", err)
			}
			for _, raw := range counts {
				c, err := parseCount(raw)
				if err != nil {
					return err
				}
				in.Counts = append(in.Counts, c)
			}
			res, err := reconciliation.Calculate(in)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, c := range res.Counts {
				sub, err := c.Subtotal()
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\tx %d\t%s\n", c.Denomination, c.Count, sub)
			}
			fmt.Fprintf(w, "Counted\t\t%s\n", res.CountedTotal)
			fmt.Fprintf(w, "Expected\t\t%s\n", res.Expected)
			fmt.Fprintf(w, "Variance\t\t%s (%s)\n", res.Variance, res.Classification)
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&float, "float", "0", "opening float")
	cmd.Flags().StringVar(&expected, "expected", "0", "cash takings recorded for the period")
	cmd.Flags().StringArrayVar(&counts, "count", nil, "denomination count as DENOMINATIONxCOUNT")
	return cmd
}

func parseCount(raw string) (reconciliation.DenominationCount, error) {
	denom, n, ok := strings.Cut(strings.ToLower(strings.TrimSpace(raw)), "x")
	if !ok {
		return reconciliation.DenominationCount{}, fmt.Errorf("count %q: want DENOMINATIONxCOUNT", raw)
	}
	d, err := money.Parse(denom)
	if err != nil {
		return reconciliation.DenominationCount{}, fmt.Errorf("count %q: %w", raw, err)
	}
	c, err := strconv.ParseInt(n, 10, 64)
	if err != nil {
		return reconciliation.DenominationCount{}, fmt.Errorf("count %q: %w", raw, err)
	}
	return reconciliation.DenominationCount{Denomination: d, Count: c}, nil
}
