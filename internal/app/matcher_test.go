package app

import (
	"testing"

	"github.com/google/uuid"
	"github.com/ledgerhub/sync-service/internal/domain"
)

func TestMatchProviderAccountExactExternalID(t *testing.T) {
	known := []domain.ProviderAccount{
		{ID: uuid.New(), ExternalID: "acc-aaa", Name: "Checking", InstitutionID: "inst-1"},
		{ID: uuid.New(), ExternalID: "acc-bbb", Name: "Savings", InstitutionID: "inst-1"},
	}
	target := domain.ProviderAccount{ExternalID: "acc-bbb", Name: "Completely Renamed", InstitutionID: "inst-2"}

	match, ok := MatchProviderAccount(target, known)
	if !ok {
		t.Fatal("expected an exact external id match")
	}
	if match.ID != known[1].ID {
		t.Fatalf("matched wrong candidate: %s", match.Name)
	}
}

func TestMatchProviderAccountFingerprint(t *testing.T) {
	known := []domain.ProviderAccount{
		{ID: uuid.New(), ExternalID: "old-id-1", Name: "Brokerage Account", InstitutionID: "inst-1", AccountType: "brokerage"},
	}
	// Provider rotated the external id but the descriptor is otherwise the same.
	target := domain.ProviderAccount{ExternalID: "new-id-9", Name: "brokerage account", InstitutionID: "inst-1", AccountType: "brokerage"}

	match, ok := MatchProviderAccount(target, known)
	if !ok {
		t.Fatal("expected a fingerprint match across id rotation")
	}
	if match.ExternalID != "old-id-1" {
		t.Fatalf("matched wrong candidate: %s", match.ExternalID)
	}
}

func TestMatchProviderAccountNameSimilarity(t *testing.T) {
	known := []domain.ProviderAccount{
		{ID: uuid.New(), ExternalID: "x1", Name: "Everyday Checking", InstitutionID: "inst-1", AccountType: "depository"},
		{ID: uuid.New(), ExternalID: "x2", Name: "Vacation Fund", InstitutionID: "inst-1", AccountType: "savings"},
	}
	// Different type defeats the fingerprint; substring containment on the
	// normalized name should still pair these.
	target := domain.ProviderAccount{ExternalID: "y1", Name: "Everyday Checking (2024)", InstitutionID: "inst-1", AccountType: "checking"}

	match, ok := MatchProviderAccount(target, known)
	if !ok {
		t.Fatal("expected a name similarity match")
	}
	if match.ExternalID != "x1" {
		t.Fatalf("matched wrong candidate: %s", match.ExternalID)
	}
}

func TestMatchProviderAccountRejectsWeakCandidates(t *testing.T) {
	known := []domain.ProviderAccount{
		{ID: uuid.New(), ExternalID: "x1", Name: "Crypto Wallet", InstitutionID: "inst-1", AccountType: "wallet"},
	}

	tests := []struct {
		name   string
		target domain.ProviderAccount
	}{
		{
			name:   "different institution",
			target: domain.ProviderAccount{ExternalID: "y1", Name: "Crypto Wallet", InstitutionID: "inst-2", AccountType: "brokerage"},
		},
		{
			name:   "dissimilar name",
			target: domain.ProviderAccount{ExternalID: "y2", Name: "Mortgage", InstitutionID: "inst-1", AccountType: "loan"},
		},
		{
			name:   "no candidates",
			target: domain.ProviderAccount{ExternalID: "y3", Name: "Crypto Wallet", InstitutionID: "inst-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates := known
			if tt.name == "no candidates" {
				candidates = nil
			}
			if _, ok := MatchProviderAccount(tt.target, candidates); ok {
				t.Fatal("expected no match")
			}
		})
	}
}

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{a: "checking", b: "checking", min: 1.0, max: 1.0},
		{a: "checking", b: "chekcing", min: 1.0, max: 1.0}, // transposition, same multiset
		{a: "checking", b: "savings", min: 0, max: 0.5},
		{a: "", b: "", min: 0, max: 0},
	}
	for _, tt := range tests {
		got := nameSimilarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Fatalf("nameSimilarity(%q, %q) = %f, want within [%f, %f]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}
