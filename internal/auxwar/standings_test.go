package auxwar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oggyb/soundmatch/internal/auxwar"
	"github.com/oggyb/soundmatch/internal/db"
)

func sub(id string, votes int, at time.Time) db.AuxWarSubmission {
	s := db.AuxWarSubmission{VoteCount: votes}
	s.ID = id
	s.CreatedAt = at
	return s
}

func TestRank_TieBreak(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)
	// C submitted before B; both have 5 votes
	subs := []db.AuxWarSubmission{
		sub("A", 3, t0),
		sub("B", 5, t0.Add(2*time.Second)),
		sub("C", 5, t0.Add(time.Second)),
	}

	earliest := auxwar.Rank(subs, auxwar.TieEarliest)
	assert.Equal(t, "C", earliest[0].ID)
	assert.Equal(t, "B", earliest[1].ID)
	assert.Equal(t, "A", earliest[2].ID)

	latest := auxwar.Rank(subs, auxwar.TieLatest)
	assert.Equal(t, "B", latest[0].ID)
	assert.Equal(t, "C", latest[1].ID)

	assert.Equal(t, "A", subs[0].ID, "input untouched")
}

func TestRank_SameInstantFallsBackToID(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)
	subs := []db.AuxWarSubmission{sub("z", 1, t0), sub("m", 1, t0), sub("a", 0, t0)}

	ranked := auxwar.Rank(subs, auxwar.TieEarliest)
	assert.Equal(t, []string{"m", "z", "a"}, []string{ranked[0].ID, ranked[1].ID, ranked[2].ID})
}
