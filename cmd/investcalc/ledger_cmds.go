package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"investcalc/pkg/investcalc"
)

func newRecordCmd(a *app) *cobra.Command {
	var day, comment string
	var force bool
	cmd := &cobra.Command{
		Use:   "record [flags] <stock> <shares> <money>",
		Short: "Record a signed flow",
		Long: `Record a signed flow: positive shares are bought, negative shares sold,
and money is negative when paid out. Selling more than is held on the day,
or at any later flow, is refused unless --force is given.

Flags go before the stock, so amounts such as -1000 are read as values:

  investcalc record --day 2024-01-01 -c "first buy" ACME 10 -1000`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.parseDay(day)
			if err != nil {
				return err
			}
			shares, err := investcalc.ParseAmount(args[1])
			if err != nil {
				return fmt.Errorf("invalid shares %q: %w", args[1], err)
			}
			money, err := investcalc.ParseAmount(args[2])
			if err != nil {
				return fmt.Errorf("invalid money %q: %w", args[2], err)
			}
			return a.withCore(func(ctx context.Context, core *investcalc.Core) error {
				if shares.IsNegative() && !force {
					if err := core.CheckHeld(ctx, args[0], d, shares.Negated()); err != nil {
						return err
					}
				}
				id, err := core.Record(ctx, investcalc.RecordRequest{
					Stock: args[0], Day: d, Shares: shares, Money: money, Comment: optional(comment),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "recorded flow %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day of the flow (default today)")
	cmd.Flags().StringVarP(&comment, "comment", "c", "", "free-text comment")
	cmd.Flags().BoolVar(&force, "force", false, "record even if it sells more than is held")
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newTradeCmd(a *app) *cobra.Command {
	var day, comment string
	cmd := &cobra.Command{
		Use:   "trade [flags] <buy|sell|dividend|cost> <stock> <shares> <total>",
		Short: "Record an operation with unsigned amounts",
		Long: `Record an operation entered with unsigned amounts; the sign is derived
from the operation. Dividend and cost ignore shares, pass 0.

Flags go before the operation; everything after it is taken as arguments.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := investcalc.ParseOperation(args[0])
			if err != nil {
				return err
			}
			d, err := a.parseDay(day)
			if err != nil {
				return err
			}
			shares, err := investcalc.ParseAmount(args[2])
			if err != nil {
				return fmt.Errorf("invalid shares %q: %w", args[2], err)
			}
			total, err := investcalc.ParseAmount(args[3])
			if err != nil {
				return fmt.Errorf("invalid total %q: %w", args[3], err)
			}
			return a.withCore(func(ctx context.Context, core *investcalc.Core) error {
				id, err := core.RecordOperation(ctx, investcalc.OperationRequest{
					Operation: op, Stock: args[1], Day: d, Shares: shares, Total: total, Comment: optional(comment),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "recorded %s as flow %d\n", op.Name, id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day of the operation (default today)")
	cmd.Flags().StringVarP(&comment, "comment", "c", "", "free-text comment")
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List flows in chronological order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := ff.filter()
			if err != nil {
				return err
			}
			return a.withCore(func(ctx context.Context, core *investcalc.Core) error {
				rows, err := core.GetHistory(ctx, filter)
				if err != nil {
					return err
				}
				renderHistory(a.out, rows)
				return nil
			})
		},
	}
	ff.register(cmd, true)
	return cmd
}

func newFlowsCmd(a *app) *cobra.Command {
	var stocks []string
	cmd := &cobra.Command{
		Use:   "flows",
		Short: "List money flows, pooled by day across stocks when no stock is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCore(func(ctx context.Context, core *investcalc.Core) error {
				flows, err := core.GetFlows(ctx, stocks...)
				if err != nil {
					return err
				}
				renderFlows(a.out, flows)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&stocks, "stock", "s", nil, "restrict to these stocks")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "delete <flow-id>...",
		Short: "Delete the latest flows of stocks",
		Long: `Delete flows by id. For every stock the deleted flows must be its most
recent ones: an earlier flow cannot go while a later one of the same stock
stays. --stock and --from narrow the rows the selection is checked against.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid flow id %q", arg)
				}
				ids = append(ids, id)
			}
			filter, err := ff.filter()
			if err != nil {
				return err
			}
			return a.withCore(func(ctx context.Context, core *investcalc.Core) error {
				n, err := core.DeleteSelection(ctx, filter, ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "deleted %d flow(s)\n", n)
				return nil
			})
		},
	}
	ff.register(cmd, false)
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var delimiter string
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import delimited flow lines, all or nothing",
		Long: `Import lines of "day, stock, shares, money[, comment]" from file, or
from standard input when file is omitted or "-". Nothing is recorded if
any line fails to parse or the batch would sell more than is held.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := a.readInput(args)
			if err != nil {
				return err
			}
			delim := a.delimiter(delimiter)
			return a.withCore(func(ctx context.Context, core *investcalc.Core) error {
				n, err := core.ImportBatch(ctx, text, delim)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "imported %d flow(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&delimiter, "delimiter", "", `field delimiter (default from config, "\t")`)
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var ff filterFlags
	var delimiter, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export flows in the import format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := ff.filter()
			if err != nil {
				return err
			}
			delim := a.delimiter(delimiter)
			return a.withCore(func(ctx context.Context, core *investcalc.Core) error {
				text, err := core.ExportHistory(ctx, filter, delim)
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					_, err = io.WriteString(a.out, text)
					return err
				}
				return os.WriteFile(output, []byte(text), 0o644)
			})
		},
	}
	ff.register(cmd, true)
	cmd.Flags().StringVar(&delimiter, "delimiter", "", "field delimiter (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of standard output")
	return cmd
}

func (a *app) readInput(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(a.in)
		if err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
