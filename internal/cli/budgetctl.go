package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"budgetbook/internal/auth"
	"budgetbook/internal/backend"
	"budgetbook/internal/core"
	"budgetbook/internal/ledger"
	applog "budgetbook/internal/log"
	"budgetbook/internal/services"
	"budgetbook/internal/view"
)

// App is what every budgetctl command runs against.
type App struct {
	Months       *services.MonthService
	Transactions *services.TransactionService
	Currency     string
	Close        func() error
}

// Opener builds the App once flags are parsed.
type Opener func(ctx context.Context) (*App, error)

// OpenFromConfig opens the configured backend. Logs go to stderr so command
// output stays machine readable.
func OpenFromConfig(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := SetupLogger(cfg, applog.ComponentCLI, os.Stderr)
	res, err := backend.NewFactory(logger.Slog()).Create(ctx, cfg)
	if err != nil {
		return nil, err
	}
	months := services.NewMonthService(res.Backend, cfg.CacheSize, cfg.CacheTTL, logger.Slog())
	return &App{
		Months:       months,
		Transactions: services.NewTransactionService(res.Backend, months, logger.Slog()),
		Currency:     cfg.CurrencySymbol,
		Close:        res.Close,
	}, nil
}

type rootOptions struct {
	month  string
	filter string
	output string
	user   string
}

func (o *rootOptions) yearMonth(now time.Time) (core.YearMonth, error) {
	if o.month == "" {
		return core.NewYearMonth(now.Year(), int(now.Month()))
	}
	return core.ParseYearMonth(o.month)
}

// NewRootCommand builds budgetctl. open is called once per command run.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &rootOptions{}
	var app *App

	root := &cobra.Command{
		Use:           "budgetctl",
		Short:         "Inspect and edit monthly transactions from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			app = a
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if app != nil && app.Close != nil {
				return app.Close()
			}
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&opts.month, "month", "m", "", "month as YYYY-MM (default: current month)")
	pf.StringVarP(&opts.filter, "type", "t", "all", "type filter: all, expense, income, savings or payoff")
	pf.StringVarP(&opts.output, "output", "o", "text", "output format for reports: text, json or yaml")
	pf.StringVar(&opts.user, "user", auth.Anonymous.ID, "cache namespace of the caller")

	getApp := func() *App { return app }
	root.AddCommand(
		newSummaryCmd(opts, getApp),
		newListCmd(opts, getApp),
		newHintsCmd(opts, getApp),
		newExportCmd(opts, getApp),
		newCategoriesCmd(opts, getApp),
		newBudgetCmd(getApp),
	)
	return root
}

// loadMonth resolves the month flag and fetches it.
func loadMonth(ctx context.Context, opts *rootOptions, app *App) (view.MonthData, core.Filter, error) {
	ym, err := opts.yearMonth(time.Now())
	if err != nil {
		return view.MonthData{}, "", err
	}
	filter, err := core.ParseFilter(opts.filter)
	if err != nil {
		return view.MonthData{}, "", err
	}
	data, err := app.Months.Load(ctx, opts.user, ym)
	if err != nil {
		return view.MonthData{}, "", err
	}
	return data, filter, nil
}

func newSummaryCmd(opts *rootOptions, app func() *App) *cobra.Command {
	var expand bool
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Totals per category, largest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			data, filter, err := loadMonth(cmd.Context(), opts, a)
			if err != nil {
				return err
			}
			expanded := make(map[ledger.CategoryKey]bool)
			if expand {
				for _, tx := range ledger.Filtered(data.Records, filter) {
					expanded[ledger.KeyOf(tx)] = true
				}
			}
			rows := ledger.Summarize(data.Records, filter, expanded)
			return render(cmd.OutOrStdout(), opts.output, rows, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "%s\t\t\t\n", data.Month)
				if len(rows) == 0 {
					fmt.Fprintln(tw, "No transactions.")
				}
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Key.Category, r.Key.Type.Label(), r.Count, r.Total.Format(a.Currency))
					if !r.Expanded {
						continue
					}
					for _, tx := range r.Transactions {
						fmt.Fprintf(tw, "  %s\t%s\t\t%s\n", tx.Date, tx.Notes, tx.Amount.Format(a.Currency))
					}
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVarP(&expand, "expand", "e", false, "show the transactions of every category")
	return cmd
}

func newListCmd(opts *rootOptions, app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Transactions grouped by date, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			data, filter, err := loadMonth(cmd.Context(), opts, a)
			if err != nil {
				return err
			}
			agg := ledger.Aggregate(data.Records, filter)
			return render(cmd.OutOrStdout(), opts.output, agg, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				switch agg.List.Empty {
				case ledger.EmptyNoData:
					fmt.Fprintf(tw, "No transactions in %s.\n", data.Month)
				case ledger.EmptyNoMatch:
					fmt.Fprintf(tw, "No %s transactions in %s.\n", filter, data.Month)
				}
				for _, g := range agg.List.Groups {
					fmt.Fprintf(tw, "%s\t\t\t\n", g.Date)
					for _, tx := range g.Transactions {
						fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", tx.Type.Label(), tx.Category, tx.Amount.Format(a.Currency), tx.Notes)
					}
				}
				fmt.Fprintln(tw)
				for _, t := range core.KnownTypes {
					fmt.Fprintf(tw, "%s\t%s\t\t\n", t.Label(), agg.Totals.Get(t).Format(a.Currency))
				}
				tw.Flush()
			})
		},
	}
}

func newHintsCmd(opts *rootOptions, app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "hints",
		Short: "Month totals against the monthly budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			data, _, err := loadMonth(cmd.Context(), opts, a)
			if err != nil {
				return err
			}
			hints := ledger.BudgetHints(ledger.ComputeTotals(data.Records), data.Budget)
			return render(cmd.OutOrStdout(), opts.output, hints, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				for _, t := range core.KnownTypes {
					h := hints[t]
					if !h.Visible {
						fmt.Fprintf(tw, "%s\t%s\tno budget\t\n", t.Label(), h.Actual.Format(a.Currency))
						continue
					}
					fmt.Fprintf(tw, "%s\t%s / %s\t%d%%\t%s\n", t.Label(), h.Actual.Format(a.Currency), h.Budget.Format(a.Currency), h.Percentage, h.Status)
				}
				tw.Flush()
			})
		},
	}
}

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var errUnknownFormat = errors.New("unknown format")

func newExportCmd(opts *rootOptions, app func() *App) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the month's transactions, newest first, as csv, json or yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, filter, err := loadMonth(cmd.Context(), opts, app())
			if err != nil {
				return err
			}
			return Export(cmd.OutOrStdout(), format, ledger.NewestFirst(ledger.Filtered(data.Records, filter)))
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", FormatCSV, "csv, json or yaml")
	return cmd
}

// Export writes txs in format. A CSV export always has a header row.
func Export(w io.Writer, format string, txs []core.Transaction) error {
	if txs == nil {
		txs = []core.Transaction{}
	}
	switch strings.ToLower(format) {
	case FormatCSV:
		return gocsv.Marshal(txs, w)
	case FormatJSON, FormatYAML:
		return encode(w, strings.ToLower(format), txs)
	}
	return fmt.Errorf("%w %q: must be csv, json or yaml", errUnknownFormat, format)
}

func newCategoriesCmd(opts *rootOptions, app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "Known categories and their budgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			cats, err := a.Transactions.Categories(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, cats, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				for _, c := range cats {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Name, c.Type.Label(), c.MonthlyBudget.Format(a.Currency), c.YearlyBudget().Format(a.Currency))
				}
				tw.Flush()
			})
		},
	}
}

func newBudgetCmd(app func() *App) *cobra.Command {
	budget := &cobra.Command{Use: "budget", Short: "Manage monthly budgets"}

	var typ string
	set := &cobra.Command{
		Use:   "set CATEGORY AMOUNT",
		Short: "Set the monthly budget of a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseMoney(args[1])
			if err != nil {
				return err
			}
			cat := core.Category{Name: strings.TrimSpace(args[0]), Type: core.ParseTxType(typ), MonthlyBudget: amount}
			if err := app().Transactions.SaveBudget(cmd.Context(), []core.Category{cat}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Budget for %s (%s) set to %s per month\n", cat.Name, cat.Type.Label(), amount.Format(app().Currency))
			return nil
		},
	}
	set.Flags().StringVarP(&typ, "category-type", "c", string(core.TypeExpense), "category type")
	budget.AddCommand(set)
	return budget
}

// render writes v as json or yaml, or calls text for the text format.
func render(w io.Writer, format string, v any, text func(io.Writer)) error {
	switch f := strings.ToLower(format); f {
	case "", "text":
		text(w)
		return nil
	case FormatJSON, FormatYAML:
		return encode(w, f, v)
	default:
		return fmt.Errorf("%w %q: must be text, json or yaml", errUnknownFormat, format)
	}
}

func encode(w io.Writer, format string, v any) error {
	if format == FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
