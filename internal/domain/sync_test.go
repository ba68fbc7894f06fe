package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from SyncStatus
		to   SyncStatus
		want bool
	}{
		{name: "pending to importing", from: SyncPending, to: SyncImporting, want: true},
		{name: "importing to processing", from: SyncImporting, to: SyncProcessing, want: true},
		{name: "importing to requires account setup", from: SyncImporting, to: SyncRequiresAccountSetup, want: true},
		{name: "processing to calculating", from: SyncProcessing, to: SyncCalculating, want: true},
		{name: "calculating to completed", from: SyncCalculating, to: SyncCompleted, want: true},
		{name: "pending to processing skips importing", from: SyncPending, to: SyncProcessing, want: false},
		{name: "importing to calculating skips processing", from: SyncImporting, to: SyncCalculating, want: false},
		{name: "requires account setup resumes into processing", from: SyncRequiresAccountSetup, to: SyncProcessing, want: true},
		{name: "completed is terminal", from: SyncCompleted, to: SyncImporting, want: false},
		{name: "any active state can fail", from: SyncProcessing, to: SyncFailed, want: true},
		{name: "pending can fail", from: SyncPending, to: SyncFailed, want: true},
		{name: "completed cannot fail", from: SyncCompleted, to: SyncFailed, want: false},
		{name: "failed is terminal", from: SyncFailed, to: SyncPending, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
