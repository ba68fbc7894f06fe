/**
 * @description
 * Fuzzy account matching, used when re-linking a rotated or refreshed
 * connection: the provider hands back a fresh set of account descriptors and
 * we need to pair each with the account we already track. Scoring, best
 * first: exact external id, fingerprint equality, then same-institution name
 * similarity with substring containment as an accept shortcut.
 */

package app

import (
	"strings"

	"github.com/ledgerhub/sync-service/internal/domain"
)

// similarityThreshold is the minimum shared-character ratio for a
// same-institution name match.
const similarityThreshold = 0.8

// MatchProviderAccount returns the best candidate for target, or false when
// nothing scores high enough. It never returns more than one match.
func MatchProviderAccount(target domain.ProviderAccount, candidates []domain.ProviderAccount) (*domain.ProviderAccount, bool) {
	// Tier 1: exact external id.
	for i := range candidates {
		if candidates[i].ExternalID != "" && candidates[i].ExternalID == target.ExternalID {
			return &candidates[i], true
		}
	}

	// Tier 2: fingerprint equality.
	targetFP := accountFingerprint(target)
	if targetFP != "" {
		for i := range candidates {
			if accountFingerprint(candidates[i]) == targetFP {
				return &candidates[i], true
			}
		}
	}

	// Tier 3: same institution, similar name.
	var best *domain.ProviderAccount
	var bestScore float64
	targetName := normalizeName(target.Name)
	for i := range candidates {
		if candidates[i].InstitutionID != target.InstitutionID {
			continue
		}
		candName := normalizeName(candidates[i].Name)
		if candName == "" || targetName == "" {
			continue
		}
		if containsEither(targetName, candName) {
			return &candidates[i], true
		}
		score := nameSimilarity(targetName, candName)
		if score >= similarityThreshold && score > bestScore {
			best = &candidates[i]
			bestScore = score
		}
	}
	if best != nil {
		return best, true
	}
	return nil, false
}

func accountFingerprint(a domain.ProviderAccount) string {
	name := normalizeName(a.Name)
	if a.InstitutionID == "" || name == "" {
		return ""
	}
	return a.InstitutionID + "|" + name + "|" + a.AccountType
}

func containsEither(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// nameSimilarity is the shared-character ratio |shared| / max(len1, len2),
// where shared counts characters common to both names (multiset semantics,
// so repeats only count as often as they appear in both).
func nameSimilarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	counts := make(map[rune]int)
	for _, r := range a {
		counts[r]++
	}
	shared := 0
	for _, r := range b {
		if counts[r] > 0 {
			counts[r]--
			shared++
		}
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	return float64(shared) / float64(maxLen)
}
