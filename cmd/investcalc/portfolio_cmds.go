package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"investcalc/internal/config"
	"investcalc/pkg/investcalc"
)

func newPortfolioCmd(a *app) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Show holdings with their value and annualized return",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCore(func(ctx context.Context, core *investcalc.Core) error {
				view := investcalc.NewView(core)
				if err := view.Reload(ctx); err != nil {
					return err
				}
				if refresh {
					if err := a.refresh(view); err != nil {
						return err
					}
				}
				renderPortfolio(a.out, view.Snapshot())
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "fetch missing prices before showing")
	return cmd
}

func newPriceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Set or fetch current prices",
	}
	set := &cobra.Command{
		Use:   "set <stock> <price>",
		Short: "Enter a price by hand",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", args[1], err)
			}
			return a.withCore(func(ctx context.Context, core *investcalc.Core) error {
				if _, err := core.GetStock(ctx, args[0]); err != nil {
					return err
				}
				view := investcalc.NewView(core)
				if err := view.Reload(ctx); err != nil {
					return err
				}
				if err := view.SetManualPrice(ctx, args[0], price); err != nil {
					return err
				}
				renderPortfolio(a.out, view.Snapshot())
				return nil
			})
		},
	}
	// Negative prices reach validation instead of flag parsing.
	set.Flags().SetInterspersed(false)

	cmd.AddCommand(
		set,
		&cobra.Command{
			Use:   "refresh",
			Short: "Fetch prices of holdings that have none",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withCore(func(ctx context.Context, core *investcalc.Core) error {
					view := investcalc.NewView(core)
					if err := view.Reload(ctx); err != nil {
						return err
					}
					return a.refresh(view)
				})
			},
		},
	)
	return cmd
}

// refresh runs one refresh cycle over view and prints its report.
func (a *app) refresh(view *investcalc.View) error {
	cfg := config.LoadUserConfig()
	refresher := investcalc.NewRefresher(a.quoteProvider(cfg), view, investcalc.RefresherOptions{
		Logger:       a.logger,
		FetchTimeout: cfg.QuoteTimeout(),
	})
	reports, ok := view.RefreshPrices(refresher)
	if !ok {
		return fmt.Errorf("a price refresh is already running")
	}
	report := <-reports
	renderRefreshReport(a.errOut, report)
	return nil
}

func newQuoteCodeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "quote-code <stock> [code]",
		Short: `Set the "provider symbol" price lookup code of a stock`,
		Long: `Set the price lookup code of a stock, e.g. "yahoo AAPL" or
"eastmoney 510300". Omit code to clear it.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := ""
			if len(args) == 2 {
				code = args[1]
			}
			return a.withCore(func(ctx context.Context, core *investcalc.Core) error {
				if err := core.SetQuoteCode(ctx, args[0], code); err != nil {
					return err
				}
				stock, err := core.GetStock(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s: %s\n", stock.Name, orDash(stock.QuoteCode))
				return nil
			})
		},
	}
}

func newLogsCmd(a *app) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the operation log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCore(func(ctx context.Context, core *investcalc.Core) error {
				logs, err := core.GetOperationLogs(ctx, limit, offset)
				if err != nil {
					return err
				}
				renderOperationLogs(a.out, logs)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	cmd.Flags().IntVar(&offset, "offset", 0, "entries to skip")
	return cmd
}
