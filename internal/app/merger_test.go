package app

import (
	"testing"
	"time"

	"github.com/ledgerhub/sync-service/internal/domain"
	"github.com/shopspring/decimal"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestMergeActivitiesNewerWinsOnNativeID(t *testing.T) {
	existing := []domain.Activity{
		{ExternalID: "txn-1", Type: domain.ActivityTransaction, Date: day("2026-03-01"), Amount: decimal.NewFromInt(50), Description: "Coffee", Pending: true},
		{ExternalID: "txn-2", Type: domain.ActivityTransaction, Date: day("2026-03-02"), Amount: decimal.NewFromInt(20), Description: "Lunch"},
	}
	incoming := []domain.Activity{
		// Same record, now posted with a corrected amount.
		{ExternalID: "txn-1", Type: domain.ActivityTransaction, Date: day("2026-03-01"), Amount: decimal.NewFromInt(52), Description: "Coffee", Pending: false},
		{ExternalID: "txn-3", Type: domain.ActivityTransaction, Date: day("2026-03-03"), Amount: decimal.NewFromInt(90), Description: "Groceries"},
	}

	merged := MergeActivities(existing, incoming)
	if len(merged) != 3 {
		t.Fatalf("expected 3 merged activities, got %d", len(merged))
	}

	byID := make(map[string]domain.Activity, len(merged))
	for _, a := range merged {
		byID[a.ExternalID] = a
	}
	if got := byID["txn-1"]; !got.Amount.Equal(decimal.NewFromInt(52)) || got.Pending {
		t.Fatalf("expected txn-1 replaced by newer record, got amount=%s pending=%v", got.Amount, got.Pending)
	}
	if _, ok := byID["txn-2"]; !ok {
		t.Fatal("expected untouched existing record txn-2 to survive the merge")
	}
	if _, ok := byID["txn-3"]; !ok {
		t.Fatal("expected new record txn-3 in the merge")
	}
}

func TestMergeActivitiesFingerprintFallback(t *testing.T) {
	existing := []domain.Activity{
		{InstitutionID: "inst-9", Type: domain.ActivityTransaction, Date: day("2026-03-01"), Amount: decimal.NewFromInt(15), Description: "ACME Corp #123"},
	}
	incoming := []domain.Activity{
		// Cosmetically different description, same fingerprint.
		{InstitutionID: "inst-9", Type: domain.ActivityTransaction, Date: day("2026-03-01"), Amount: decimal.NewFromInt(15), Description: "acme corp 123"},
	}

	merged := MergeActivities(existing, incoming)
	if len(merged) != 1 {
		t.Fatalf("expected fingerprint collision to dedupe, got %d records", len(merged))
	}
	if merged[0].Description != "acme corp 123" {
		t.Fatalf("expected incoming record to win, got %q", merged[0].Description)
	}
}

func TestMergeActivitiesCompositeFallback(t *testing.T) {
	existing := []domain.Activity{
		{Type: domain.ActivityTrade, Date: day("2026-03-01"), Amount: decimal.NewFromInt(100), Symbol: "VTI"},
	}
	incoming := []domain.Activity{
		{Type: domain.ActivityTrade, Date: day("2026-03-01"), Amount: decimal.NewFromInt(100), Symbol: "VTI"},
		// Same day and amount but a different symbol is a different record.
		{Type: domain.ActivityTrade, Date: day("2026-03-01"), Amount: decimal.NewFromInt(100), Symbol: "BND"},
	}

	merged := MergeActivities(existing, incoming)
	if len(merged) != 2 {
		t.Fatalf("expected 2 records after composite dedupe, got %d", len(merged))
	}
}

func TestMergeActivitiesEmptyInputs(t *testing.T) {
	if got := MergeActivities(nil, nil); len(got) != 0 {
		t.Fatalf("expected empty merge, got %d records", len(got))
	}

	only := []domain.Activity{{ExternalID: "a", Type: domain.ActivityTransaction, Date: day("2026-01-01")}}
	if got := MergeActivities(only, nil); len(got) != 1 {
		t.Fatalf("expected existing records to pass through, got %d", len(got))
	}
	if got := MergeActivities(nil, only); len(got) != 1 {
		t.Fatalf("expected incoming records to pass through, got %d", len(got))
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "ACME Corp #123", want: "acmecorp123"},
		{in: "  spaces  everywhere  ", want: "spaceseverywhere"},
		{in: "---", want: ""},
		{in: "Café Déjà", want: "cafédéjà"},
	}
	for _, tt := range tests {
		if got := normalizeName(tt.in); got != tt.want {
			t.Fatalf("normalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
