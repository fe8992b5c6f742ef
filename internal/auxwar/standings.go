package auxwar

import (
	"sort"

	"github.com/oggyb/soundmatch/internal/db"
)

// Rank orders a round's submissions leader first: most votes, then the
// tie-break policy on submission time, then id so the order is total.
// The input slice is not modified.
func Rank(subs []db.AuxWarSubmission, tb TieBreak) []db.AuxWarSubmission {
	out := append([]db.AuxWarSubmission(nil), subs...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.VoteCount != b.VoteCount {
			return a.VoteCount > b.VoteCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if tb == TieLatest {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}
