// Package pairs builds the SBAS pair graph for a stack of acquisitions and
// decides whether a candidate pair set fits the available credit balance.
package pairs

import (
	"errors"
	"fmt"
	"sort"

	"sarbatch/internal/domain"
)

var (
	ErrInvalidWindow      = errors.New("temporal baseline bounds must be non-negative")
	ErrInsufficientCredit = errors.New("not enough credits to submit jobs")
)

// Build returns the deduplicated set of (reference, secondary) pairs whose
// baseline separation lies in (minDays, maxDays], sorted by reference then
// secondary. The stack is iterated in reverse chronological order so the most
// recent acquisition wins as reference when a pair is reachable from both
// ends.
func Build(stack []domain.Acquisition, minDays, maxDays int) ([]domain.Pair, error) {
	if minDays < 0 || maxDays < 0 {
		return nil, fmt.Errorf("%w: min=%d max=%d", ErrInvalidWindow, minDays, maxDays)
	}
	seen := make(map[domain.Pair]struct{})
	for i := len(stack) - 1; i >= 0; i-- {
		ref := stack[i]
		for _, sec := range stack {
			if sec.SceneID == ref.SceneID {
				continue
			}
			dt := sec.TemporalBaseline - ref.TemporalBaseline
			if dt > float64(minDays) && dt <= float64(maxDays) {
				seen[domain.Pair{Reference: ref.SceneID, Secondary: sec.SceneID}] = struct{}{}
			}
		}
	}
	out := make([]domain.Pair, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Reference != out[j].Reference {
			return out[i].Reference < out[j].Reference
		}
		return out[i].Secondary < out[j].Secondary
	})
	return out, nil
}

// Admit accepts or rejects the whole pair set against the credit balance.
// Partial admission is never allowed.
func Admit(pairCount, costPerPair, availableCredits int) error {
	total := pairCount * costPerPair
	if total > availableCredits {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientCredit, total, availableCredits)
	}
	return nil
}
