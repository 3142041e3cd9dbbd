package investcalc

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// testNow is the pinned clock of test cores.
var testNow = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

// setupTestDB creates a temporary database for testing and returns a Core instance.
// The caller should defer cleanup() to remove the temp file.
func setupTestDB(t *testing.T) (*Core, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "investcalc-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	core, err := OpenWithOptions(Options{
		DBPath: dbPath,
		Now:    func() time.Time { return testNow },
	})
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to open test db: %v", err)
	}

	cleanup := func() {
		core.Close()
		os.RemoveAll(tmpDir)
	}

	return core, cleanup
}

// day builds a Day in tests.
func day(y int, m time.Month, d int) Day {
	return NewDay(y, m, d)
}

// testRecord records a flow and returns its id.
func testRecord(t *testing.T, core *Core, stock string, d Day, shares, money float64) int64 {
	t.Helper()
	id, err := core.Record(context.Background(), RecordRequest{
		Stock:  stock,
		Day:    d,
		Shares: NewAmount(shares),
		Money:  NewAmount(money),
	})
	if err != nil {
		t.Fatalf("failed to record flow: %v", err)
	}
	return id
}

// testAcmeLedger records ACME: buy 10 for 1000 on day 1, sell 4 for 500 on day 5.
func testAcmeLedger(t *testing.T, core *Core) (buyID, sellID int64) {
	t.Helper()
	buyID = testRecord(t, core, "ACME", day(2024, 1, 1), 10, -1000)
	sellID = testRecord(t, core, "ACME", day(2024, 1, 5), -4, 500)
	return buyID, sellID
}

// floatEquals checks if two floats are approximately equal.
func floatEquals(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

// assertFloatEquals fails the test if the floats are not approximately equal.
func assertFloatEquals(t *testing.T, got, want float64, msg string) {
	t.Helper()
	if !floatEquals(got, want, 0.001) {
		t.Errorf("%s: got %.4f, want %.4f", msg, got, want)
	}
}

// assertAmount fails the test if a does not equal want.
func assertAmount(t *testing.T, got Amount, want float64, msg string) {
	t.Helper()
	if !got.Equal(NewAmount(want).Decimal) {
		t.Errorf("%s: got %s, want %v", msg, got.String(), want)
	}
}

// assertNoError fails the test if err is not nil.
func assertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", msg, err)
	}
}

// assertError fails the test if err is nil.
func assertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected error but got nil", msg)
	}
}

// assertCode fails the test unless err is classified as code.
func assertCode(t *testing.T, err error, code ErrorCode, msg string) {
	t.Helper()
	if got := ErrorCodeOf(err); got != code {
		t.Fatalf("%s: expected %s, got %s (%v)", msg, code, got, err)
	}
}

// historyIDs returns the flow ids of rows in order.
func historyIDs(rows []HistoryRow) []int64 {
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}
