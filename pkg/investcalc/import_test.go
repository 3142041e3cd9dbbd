package investcalc

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
)

func TestParseBatch(t *testing.T) {
	text := "2024-01-01\tACME\t10\t-1000\n" +
		"\n" +
		"   \r\n" +
		"2024/01/05\t\tACME\t\t-4\t500\t  partial exit  \r\n" +
		"2024-01-06\tZETA\t1e2\t-5.5E3\n"
	rows, err := ParseBatch(text, "")
	assertNoError(t, err, "ParseBatch")
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[1].Line != 4 || rows[1].Stock != "ACME" || !rows[1].Day.Equal(day(2024, 1, 5)) {
		t.Fatalf("unexpected row: %+v", rows[1])
	}
	if rows[1].Comment == nil || *rows[1].Comment != "partial exit" {
		t.Fatalf("expected trimmed comment, got %v", rows[1].Comment)
	}
	if rows[0].Comment != nil {
		t.Fatalf("expected no comment")
	}
	assertAmount(t, rows[2].Shares, 100, "exponent shares")
	assertAmount(t, rows[2].Money, -5500, "exponent money")
}

func TestParseBatchCustomDelimiter(t *testing.T) {
	rows, err := ParseBatch("2024-01-01;ACME;1;-10;note; with; more", ";")
	assertNoError(t, err, "ParseBatch")
	if len(rows) != 1 || rows[0].Comment == nil || *rows[0].Comment != "note" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestParseBatchErrors(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		line  int
		field string
		value string
	}{
		{"too few columns", "2024-01-01\tACME\t1\t-10\n2024-01-02\tACME\t1", 2, "columns", ""},
		{"bad date", "\n2024-13-45\tACME\t1\t-10", 2, "date", "2024-13-45"},
		{"bad shares", "2024-01-01\tACME\tten\t-10", 1, "number", "ten"},
		{"bad money", "2024-01-01\tACME\t1\t-1O", 1, "number", "-1O"},
		{"infinite", "2024-01-01\tACME\t1\tInf", 1, "number", "Inf"},
		{"blank stock", "2024-01-01\t \t1\t-10", 1, "stock", " "},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseBatch(tc.text, "\t")
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if parseErr.Line != tc.line || parseErr.Field != tc.field || parseErr.Value != tc.value {
				t.Fatalf("unexpected ParseError: %+v", parseErr)
			}
			assertCode(t, err, ErrCodeParse, tc.name)
		})
	}
}

func TestImportBatch(t *testing.T) {
	core, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	changes, cancel := core.Subscribe()
	defer cancel()

	text := "2024-01-05\tACME\t-4\t500\n" +
		"2024-01-01\tacme\t10\t-1000\n" +
		"2024-01-03\tZETA\t1\t-50\tfirst\n"
	n, err := core.ImportBatch(ctx, text, "\t")
	assertNoError(t, err, "ImportBatch")
	if n != 3 {
		t.Fatalf("expected 3 imported, got %d", n)
	}
	change := <-changes
	if change.Kind != ChangeImport || change.Rows != 3 {
		t.Fatalf("unexpected change: %+v", change)
	}

	stocks, err := core.GetStocks(ctx)
	assertNoError(t, err, "GetStocks")
	if len(stocks) != 2 || stocks[0].Name != "ACME" {
		t.Fatalf("expected first spelling ACME, got %+v", stocks)
	}
	balance, err := core.Balance(ctx, "ACME")
	assertNoError(t, err, "Balance")
	assertAmount(t, balance, 6, "ACME balance")
}

func TestImportBatchUsesExistingSpelling(t *testing.T) {
	core, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	testRecord(t, core, "Acme", day(2024, 1, 1), 10, -1000)
	_, err := core.ImportBatch(ctx, "2024-02-01\tACME\t-10\t1100", "")
	assertNoError(t, err, "ImportBatch")

	entries, err := core.GetPortfolio(ctx)
	assertNoError(t, err, "GetPortfolio")
	if len(entries) != 1 || entries[0].Stock != "Acme" || !entries[0].TotalShares.IsZero() {
		t.Fatalf("unexpected portfolio: %+v", entries)
	}
}

func TestImportBatchRejectsOversell(t *testing.T) {
	core, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	testAcmeLedger(t, core)
	changes, cancel := core.Subscribe()
	defer cancel()

	// The ZETA rows are valid but must not persist either.
	text := "2024-01-02\tZETA\t5\t-50\n2024-01-03\tACME\t-12\t1300\n"
	n, err := core.ImportBatch(ctx, text, "\t")
	var violation *BalanceViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected BalanceViolationError, got %v", err)
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		t.Fatalf("balance violation must not read as a parse error")
	}
	if n != 0 || violation.Stock != "ACME" || !violation.Day.Equal(day(2024, 1, 3)) {
		t.Fatalf("unexpected violation: %+v", violation)
	}
	assertAmount(t, violation.Requested, 12, "requested")
	assertAmount(t, violation.Available, 10, "available")
	assertCode(t, err, ErrCodeBalanceViolation, "code")

	rows, err := core.GetHistory(ctx, HistoryFilter{})
	assertNoError(t, err, "GetHistory")
	if len(rows) != 2 {
		t.Fatalf("expected ledger unchanged, got %d rows", len(rows))
	}
	select {
	case c := <-changes:
		t.Fatalf("unexpected change after rejected import: %+v", c)
	default:
	}
}

func TestImportBatchProtectsLaterFlows(t *testing.T) {
	core, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	testAcmeLedger(t, core)
	// 10 - 8 = 2 on day 3 is fine, but the existing day-5 sell of 4 would then oversell.
	_, err := core.ImportBatch(ctx, "2024-01-03\tACME\t-8\t900", "")
	var violation *BalanceViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected BalanceViolationError, got %v", err)
	}
	if !violation.Day.Equal(day(2024, 1, 5)) {
		t.Fatalf("expected violation at the existing day-5 sell, got %s", violation.Day)
	}
	assertAmount(t, violation.Available, 2, "available")

	n, err := core.ImportBatch(ctx, "2024-01-03\tACME\t-6\t700", "")
	assertNoError(t, err, "ImportBatch within balance")
	if n != 1 {
		t.Fatalf("expected 1 imported, got %d", n)
	}
}

func TestImportBatchSameDayBuyBeforeSell(t *testing.T) {
	core, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	text := "2024-03-01\tACME\t-5\t600\n2024-03-01\tACME\t5\t-500\n"
	_, err := core.ImportBatch(ctx, text, "")
	assertNoError(t, err, "same-day pair")
}

func TestImportBatchParseErrorPersistsNothing(t *testing.T) {
	core, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := core.ImportBatch(ctx, "2024-01-01\tACME\t10\t-1000\nnot a row\n", "")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) || parseErr.Line != 2 {
		t.Fatalf("expected ParseError on line 2, got %v", err)
	}
	var violation *BalanceViolationError
	if errors.As(err, &violation) {
		t.Fatalf("parse error must not read as a balance violation")
	}
	entries, err := core.GetPortfolio(ctx)
	assertNoError(t, err, "GetPortfolio")
	if len(entries) != 0 {
		t.Fatalf("expected empty ledger, got %+v", entries)
	}
}

func TestImportBatchPermutationsAgree(t *testing.T) {
	lines := []string{
		"2024-01-01\tACME\t10\t-1000",
		"2024-01-02\tACME\t-6\t700",
		"2024-01-02\tACME\t3\t-330",
		"2024-01-04\tACME\t-7\t800",
		"2024-01-04\tACME\t0\t12",
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		perm := make([]string, len(lines))
		for j, k := range rng.Perm(len(lines)) {
			perm[j] = lines[k]
		}
		rows, err := ParseBatch(strings.Join(perm, "\n"), "")
		assertNoError(t, err, "ParseBatch")
		groups := groupImportRows(rows)
		if len(groups) != 1 {
			t.Fatalf("expected one group")
		}
		var order []string
		for _, r := range groups[0].rows {
			order = append(order, r.Day.String()+" "+r.Shares.String())
		}
		want := []string{"2024-01-01 10", "2024-01-02 3", "2024-01-02 -6", "2024-01-04 0", "2024-01-04 -7"}
		if strings.Join(order, ",") != strings.Join(want, ",") {
			t.Fatalf("permutation %d replayed as %v", i, order)
		}

		core, cleanup := setupTestDB(t)
		_, err = core.ImportBatch(context.Background(), strings.Join(perm, "\n"), "")
		cleanup()
		assertNoError(t, err, "ImportBatch permutation")
	}
}

func TestImportBatchEmpty(t *testing.T) {
	core, cleanup := setupTestDB(t)
	defer cleanup()

	n, err := core.ImportBatch(context.Background(), "\n  \n", "")
	assertNoError(t, err, "empty import")
	if n != 0 {
		t.Fatalf("expected 0 rows, got %d", n)
	}
}

func TestExportReimport(t *testing.T) {
	src, cleanupSrc := setupTestDB(t)
	defer cleanupSrc()
	ctx := context.Background()

	testAcmeLedger(t, src)
	comment := "with ; semicolon"
	_, err := src.Record(ctx, RecordRequest{
		Stock: "ZETA", Day: day(2024, 1, 3), Shares: NewAmount(0.125), Money: NewAmount(-12.345), Comment: &comment,
	})
	assertNoError(t, err, "Record")

	text, err := src.ExportHistory(ctx, HistoryFilter{}, "")
	assertNoError(t, err, "ExportHistory")
	wantText := "2024-01-01\tACME\t10\t-1000\n" +
		"2024-01-03\tZETA\t0.125\t-12.345\twith ; semicolon\n" +
		"2024-01-05\tACME\t-4\t500\n"
	if text != wantText {
		t.Fatalf("unexpected export:\n%q", text)
	}

	dst, cleanupDst := setupTestDB(t)
	defer cleanupDst()
	n, err := dst.ImportBatch(ctx, text, "")
	assertNoError(t, err, "ImportBatch")
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}

	a, err := src.GetHistory(ctx, HistoryFilter{})
	assertNoError(t, err, "src history")
	b, err := dst.GetHistory(ctx, HistoryFilter{})
	assertNoError(t, err, "dst history")
	for i := range a {
		if a[i].Stock != b[i].Stock || !a[i].Day.Equal(b[i].Day) ||
			!a[i].Shares.Equal(b[i].Shares.Decimal) || !a[i].Money.Equal(b[i].Money.Decimal) ||
			commentText(a[i].Comment) != commentText(b[i].Comment) {
			t.Fatalf("row %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func commentText(c *string) string {
	if c == nil {
		return "<nil>"
	}
	return *c
}

func TestExportRejectsUnrepresentableRows(t *testing.T) {
	src, cleanupSrc := setupTestDB(t)
	defer cleanupSrc()
	ctx := context.Background()

	comment := "split\there"
	_, err := src.Record(ctx, RecordRequest{
		Stock: "ACME", Day: day(2024, 1, 1), Shares: NewAmount(10), Money: NewAmount(-1000), Comment: &comment,
	})
	assertNoError(t, err, "Record")

	_, err = src.ExportHistory(ctx, HistoryFilter{}, "")
	assertCode(t, err, ErrCodeValidation, "tab in comment")

	// Another delimiter carries the comment intact.
	text, err := src.ExportHistory(ctx, HistoryFilter{}, ";")
	assertNoError(t, err, "ExportHistory ;")
	dst, cleanupDst := setupTestDB(t)
	defer cleanupDst()
	_, err = dst.ImportBatch(ctx, text, ";")
	assertNoError(t, err, "ImportBatch ;")
	rows, err := dst.GetHistory(ctx, HistoryFilter{})
	assertNoError(t, err, "dst history")
	if len(rows) != 1 || commentText(rows[0].Comment) != comment {
		t.Fatalf("comment not preserved: %+v", rows)
	}

	for stock, c := range map[string]string{
		"BREAK": "two\nlines",
		"PAD":   "  padded ",
		"CR":    "cr\rhere",
		"SEMI":  "a;b",
	} {
		c := c
		_, err := src.Record(ctx, RecordRequest{
			Stock: stock, Day: day(2024, 2, 1), Shares: NewAmount(1), Money: NewAmount(-1), Comment: &c,
		})
		assertNoError(t, err, stock)
		_, err = src.ExportHistory(ctx, HistoryFilter{Stocks: []string{stock}}, ";")
		assertCode(t, err, ErrCodeValidation, stock)
	}
}
