package wire_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/soundmatch/internal/compat"
	"github.com/oggyb/soundmatch/internal/db"
	"github.com/oggyb/soundmatch/internal/wire"
)

var at = time.Date(2025, 6, 13, 20, 0, 0, 0, time.UTC)

func TestMatch(t *testing.T) {
	matched := at.Add(time.Minute)
	m := &db.Match{
		User1ID:            "a",
		User2ID:            "b",
		CompatibilityScore: 72.5,
		MatchType:          db.MatchTypeWeekly,
		Status:             db.MatchAccepted,
		User1Action:        db.ActionLiked,
		User2Action:        db.ActionSuperLiked,
		MatchedAt:          &matched,
		MatchReasons:       compat.Snapshot{Score: 72.5, CommonArtists: []string{"Burial"}}.Reasons(),
	}
	m.ID = "m1"
	m.CreatedAt = at

	s, err := wire.Struct(wire.Match(m))
	require.NoError(t, err)
	f := s.AsMap()

	assert.Equal(t, "accepted", f["status"])
	assert.Equal(t, "2025-06-13T20:01:00Z", f["matched_at"])
	assert.NotContains(t, f, "user1_swiped_at")
	reasons := f["match_reasons"].(map[string]any)
	assert.Equal(t, []any{"Burial"}, reasons["common_artists"])
}

func TestAuxWarDeadlines(t *testing.T) {
	w := &db.AuxWar{
		Title:               "Friday",
		Status:              db.WarLive,
		RoundStartedAt:      &at,
		SubmissionTimeLimit: 120,
		VotingTimeLimit:     60,
	}
	w.CreatedAt = at

	f := wire.AuxWar(w)
	assert.Equal(t, "2025-06-13T20:02:00Z", f["submission_deadline"])
	assert.NotContains(t, f, "voting_deadline")
	assert.NotContains(t, f, "winner_id")

	winner := "u1"
	w.Status, w.WinnerID, w.EndedAt = db.WarCompleted, &winner, &at
	s, err := wire.Struct(wire.AuxWar(w))
	require.NoError(t, err)
	assert.Equal(t, "u1", s.Fields["winner_id"].GetStringValue())
	assert.NotContains(t, s.Fields, "submission_deadline")
}

func TestListsConvert(t *testing.T) {
	subs := []db.AuxWarSubmission{{SongID: "t1", VoteCount: 2}, {SongID: "t2"}}
	friends := []db.Friendship{{UserID: "a", FriendID: "b", Status: db.FriendshipAccepted, CommonGenres: []string{"jazz"}}}

	_, err := wire.Struct(map[string]any{
		"submissions": wire.Submissions(subs),
		"friends":     wire.Friendships(friends),
		"contestants": wire.Contestants([]db.AuxWarContestant{{UserID: "a", Confirmed: true}}),
		"matches":     wire.Matches(nil),
		"wars":        wire.AuxWars([]db.AuxWar{{Title: "x"}}),
		"vote":        wire.Vote(&db.AuxWarVote{SubmissionID: "s1"}),
		"compat":      wire.Compatibility(compat.Snapshot{Score: 10}),
	})
	require.NoError(t, err)
}
