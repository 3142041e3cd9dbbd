package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"investcalc/pkg/investcalc"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	return table
}

func renderPortfolio(w io.Writer, snap investcalc.PortfolioSnapshot) {
	table := newTable(w, "Stock", "Shares", "Price", "Value", "Return", "Quote code")
	for _, h := range snap.Holdings {
		price := orDashFloat(h.Price)
		if h.Fetching {
			price = "fetching"
		} else if h.FetchError != "" {
			price += " (!)"
		}
		table.Append([]string{
			h.Stock,
			h.Shares.String(),
			price,
			orDashFloat(h.Value),
			formatRate(h.Return),
			orDash(h.QuoteCode),
		})
	}
	total := formatMoney(snap.Total)
	if !snap.Complete {
		total += " (partial)"
	}
	table.SetFooter([]string{"Total", "", "", total, formatRate(snap.PooledReturn), ""})
	table.Render()
	for _, h := range snap.Holdings {
		if h.FetchError != "" {
			fmt.Fprintf(w, "%s: %s\n", h.Stock, h.FetchError)
		}
	}
}

func renderHistory(w io.Writer, rows []investcalc.HistoryRow) {
	table := newTable(w, "ID", "Day", "Stock", "Shares", "Money", "Avg price", "Comment")
	for _, r := range rows {
		table.Append([]string{
			strconv.FormatInt(r.ID, 10),
			r.Day.String(),
			r.Stock,
			r.Shares.String(),
			r.Money.String(),
			r.AvgPrice.StringFixed(4),
			orDash(r.Comment),
		})
	}
	table.Render()
}

func renderFlows(w io.Writer, flows []investcalc.CashFlow) {
	table := newTable(w, "Day", "Amount")
	for _, f := range flows {
		table.Append([]string{f.Day.String(), formatMoney(f.Amount)})
	}
	table.Render()
}

func renderOperationLogs(w io.Writer, logs []investcalc.OperationLog) {
	table := newTable(w, "ID", "Time", "Operation", "Stock", "Details")
	for _, l := range logs {
		table.Append([]string{
			strconv.FormatInt(l.ID, 10),
			orDash(l.CreatedAt),
			l.Operation,
			orDash(l.Stock),
			orDash(l.Details),
		})
	}
	table.Render()
}

func renderRefreshReport(w io.Writer, r investcalc.RefreshReport) {
	fmt.Fprintf(w, "refreshed %d of %d price(s): %d failed, %d skipped, %d stale in %s\n",
		r.Updated, r.Requested, r.Failed, r.Skipped, r.Stale, r.Duration.Round(time.Millisecond))
	for _, e := range r.Errors {
		fmt.Fprintln(w, "  "+e)
	}
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatRate(r *float64) string {
	if r == nil {
		return "-"
	}
	return strconv.FormatFloat(*r*100, 'f', 2, 64) + "%"
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func orDashFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatMoney(*v)
}
