package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/greenpass/greenpass/internal/voucher"
)

func newCodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "code",
		Short: "Generate or check voucher codes",
	}

	var count int
	generate := &cobra.Command{
		Use:     "generate",
		Short:   "Print random voucher codes",
		Example: `  greenpassctl code generate --count 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 || count > 1000 {
				return fmt.Errorf("count must be between 1 and 1000")
			}
			gen := voucher.NewCodeGenerator()
			for i := 0; i < count; i++ {
				code, err := gen.Generate()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), code)
			}
			return nil
		},
	}
	generate.Flags().IntVarP(&count, "count", "n", 1, "number of codes")

	check := &cobra.Command{
		Use:   "check CODE...",
		Short: "Report whether codes are well formed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bad := 0
			for _, raw := range args {
				code := voucher.NormalizeCode(raw)
				if voucher.ValidFormat(code) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tok\n", code)
					continue
				}
				bad++
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tinvalid\n", code)
			}
			if bad > 0 {
				return fmt.Errorf("%d of %d codes invalid", bad, len(args))
			}
			return nil
		},
	}

	cmd.AddCommand(generate, check)
	return cmd
}
