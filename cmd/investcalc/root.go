package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"investcalc/internal/config"
	"investcalc/internal/logging"
	"investcalc/pkg/investcalc"
	"investcalc/pkg/quote"
)

// app carries what every subcommand needs. Tests replace now and quotes.
type app struct {
	dbPath   string
	logLevel string

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	now    func() time.Time
	quotes investcalc.QuoteProvider
	logger *slog.Logger
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	return newAppCmd(&app{in: in, out: out, errOut: errOut})
}

func newAppCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "investcalc",
		Short: "Record stock cash flows and track portfolio returns",
		Long: `investcalc keeps a ledger of (shares, money) flows per stock and
derives share balances, valuations and annualized returns from it.

Examples:
  investcalc trade buy ACME 10 1000 --day 2024-01-01
  investcalc import flows.tsv
  investcalc portfolio --refresh`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, ok := logging.ParseLevel(a.logLevel)
			if !ok {
				return fmt.Errorf("invalid log level %q", a.logLevel)
			}
			a.logger = logging.NewConsoleLogger(a.errOut, level)
			return nil
		},
	}
	cmd.SetIn(a.in)
	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)
	cmd.PersistentFlags().StringVarP(&a.dbPath, "db", "d", "", "ledger database path (default from config)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn or error")

	cmd.AddCommand(
		newRecordCmd(a),
		newTradeCmd(a),
		newHistoryCmd(a),
		newFlowsCmd(a),
		newDeleteCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newPortfolioCmd(a),
		newPriceCmd(a),
		newQuoteCodeCmd(a),
		newLogsCmd(a),
	)
	return cmd
}

func (a *app) openCore() (*investcalc.Core, error) {
	path := a.dbPath
	if path == "" {
		var err error
		if path, err = config.GetDBPath(); err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	core, err := investcalc.OpenWithOptions(investcalc.Options{DBPath: path, Logger: a.logger, Now: a.now})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return core, nil
}

// withCore opens the ledger for the duration of fn.
func (a *app) withCore(fn func(ctx context.Context, core *investcalc.Core) error) error {
	core, err := a.openCore()
	if err != nil {
		return err
	}
	defer func() {
		if err := core.Close(); err != nil {
			a.logger.Error("failed to close ledger", "err", err)
		}
	}()
	return fn(context.Background(), core)
}

func (a *app) quoteProvider(cfg config.UserConfig) investcalc.QuoteProvider {
	if a.quotes != nil {
		return a.quotes
	}
	return quote.NewDefaultRegistry(quote.DefaultConfig{
		Options:     quote.Options{Logger: a.logger, CacheTTL: cfg.QuoteCacheTTL()},
		EODHDAPIKey: cfg.APIKey(),
	})
}

func (a *app) delimiter(flag string) string {
	if flag != "" {
		return flag
	}
	return config.LoadUserConfig().Delimiter()
}

// today returns the ledger's notion of today for defaulting --day.
func (a *app) today() investcalc.Day {
	if a.now != nil {
		return investcalc.DayOf(a.now())
	}
	return investcalc.DayOf(time.Now())
}

func (a *app) parseDay(value string) (investcalc.Day, error) {
	if value == "" {
		return a.today(), nil
	}
	d, err := investcalc.ParseDay(value)
	if err != nil {
		return investcalc.Day{}, fmt.Errorf("invalid day %q: %w", value, err)
	}
	return d, nil
}

type filterFlags struct {
	stocks []string
	from   string
	to     string
}

func (f *filterFlags) register(cmd *cobra.Command, withTo bool) {
	cmd.Flags().StringSliceVarP(&f.stocks, "stock", "s", nil, "restrict to these stocks (repeatable or comma-separated)")
	cmd.Flags().StringVar(&f.from, "from", "", "first day to include (YYYY-MM-DD)")
	if withTo {
		cmd.Flags().StringVar(&f.to, "to", "", "last day to include (YYYY-MM-DD)")
	}
}

func (f *filterFlags) filter() (investcalc.HistoryFilter, error) {
	filter := investcalc.HistoryFilter{Stocks: f.stocks}
	var err error
	if f.from != "" {
		if filter.From, err = investcalc.ParseDay(f.from); err != nil {
			return filter, fmt.Errorf("invalid --from %q: %w", f.from, err)
		}
	}
	if f.to != "" {
		if filter.To, err = investcalc.ParseDay(f.to); err != nil {
			return filter, fmt.Errorf("invalid --to %q: %w", f.to, err)
		}
	}
	return filter, nil
}
