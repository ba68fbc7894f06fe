/**
 * @description
 * Activity merging and deduplication. MergeActivities combines a previously
 * stored activity list with a freshly fetched one without double-counting,
 * resolving a merge key per record from the most specific identifier
 * available:
 *
 *   1. the provider-native unique id, when present;
 *   2. a fingerprint of (institution, normalized name, type);
 *   3. a last-resort composite of (date, type, amount, symbol).
 *
 * Incoming records are merged after existing ones, so on key collision the
 * newer record wins. The result is a keyed map collapsed to values: callers
 * must treat it as a set, not a sequence.
 */

package app

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ledgerhub/sync-service/internal/domain"
)

// MergeActivities deduplicates and merges two collections of provider
// activity records. Pure function; neither input is mutated.
func MergeActivities(existing, incoming []domain.Activity) []domain.Activity {
	keyed := make(map[string]domain.Activity, len(existing)+len(incoming))
	order := make([]string, 0, len(existing)+len(incoming))

	insert := func(a domain.Activity) {
		key := activityKey(a)
		if _, seen := keyed[key]; !seen {
			order = append(order, key)
		}
		keyed[key] = a
	}
	for _, a := range existing {
		insert(a)
	}
	for _, a := range incoming {
		insert(a)
	}

	merged := make([]domain.Activity, 0, len(keyed))
	for _, key := range order {
		merged = append(merged, keyed[key])
	}
	return merged
}

// activityKey resolves the merge key for one record, most specific first.
func activityKey(a domain.Activity) string {
	if a.ExternalID != "" {
		return "id:" + a.ExternalID
	}
	if a.InstitutionID != "" && a.Description != "" {
		return fmt.Sprintf("fp:%s|%s|%s", a.InstitutionID, normalizeName(a.Description), a.Type)
	}
	return fmt.Sprintf("co:%s|%s|%s|%s", a.Date.Format("2006-01-02"), a.Type, a.Amount.String(), a.Symbol)
}

// normalizeName lower-cases and strips everything that is not a letter or
// digit, so cosmetic differences in provider descriptions do not defeat
// fingerprint matching.
func normalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
