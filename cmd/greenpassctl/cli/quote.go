package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/greenpass/greenpass/internal/app"
	"github.com/greenpass/greenpass/internal/invoice"
	"github.com/greenpass/greenpass/internal/money"
)

type quoteOptions struct {
	count    int
	unit     string
	discount string
	gst      string
}

func newQuoteCommand(load func() (*app.Config, error)) *cobra.Command {
	var opts quoteOptions
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a voucher order with the configured fee and GST",
		Example: `  greenpassctl quote --count 10 --discount 10
  greenpassctl quote --count 3 --unit-price 45 --gst 10`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			snap, err := cfg.Settings()
			if err != nil {
				return err
			}
			if opts.count < 1 || opts.count > invoice.MaxVouchersPerDocument {
				return fmt.Errorf("count must be between 1 and %d", invoice.MaxVouchersPerDocument)
			}
			unit := snap.DefaultFee
			if opts.unit != "" {
				if unit, err = money.Parse(opts.unit); err != nil {
					return err
				}
			}
			discount, err := money.ParseRate(opts.discount)
			if err != nil {
				return err
			}
			if opts.gst != "" {
				if snap.GSTRate, err = money.ParseRate(opts.gst); err != nil {
					return err
				}
				snap.GSTEnabled = snap.GSTRate > 0
			}

			subtotal, err := unit.Mul(int64(opts.count))
			if err != nil {
				return err
			}
			t := invoice.ComputeTotals(subtotal, discount, snap)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Vouchers\t%d x %s\n", opts.count, unit.Format(snap.Currency))
			fmt.Fprintf(w, "Subtotal\t%s\n", t.Subtotal.Format(snap.Currency))
			fmt.Fprintf(w, "Discount (%s)\t%s\n", t.DiscountRate, t.DiscountAmount.Format(snap.Currency))
			fmt.Fprintf(w, "GST (%s)\t%s\n", t.GSTRate, t.GSTAmount.Format(snap.Currency))
			fmt.Fprintf(w, "Total\t%s\n", t.Total.Format(snap.Currency))
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&opts.count, "count", "n", 1, "number of vouchers")
	cmd.Flags().StringVar(&opts.unit, "unit-price", "", "unit price in major units (default DEFAULT_VOUCHER_FEE)")
	cmd.Flags().StringVar(&opts.discount, "discount", "0", "discount percent")
	cmd.Flags().StringVar(&opts.gst, "gst", "", "GST percent, overrides GST_ENABLED/GST_RATE")
	return cmd
}
