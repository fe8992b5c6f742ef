package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oggyb/soundmatch/internal/db"
)

func TestMatchStatusTransitions(t *testing.T) {
	assert.True(t, db.MatchPending.CanTransition(db.MatchAccepted))
	assert.True(t, db.MatchPending.CanTransition(db.MatchRejected))
	assert.False(t, db.MatchAccepted.CanTransition(db.MatchRejected))
	assert.False(t, db.MatchRejected.CanTransition(db.MatchPending))
	assert.False(t, db.MatchStatus("archived").Valid())

	assert.False(t, db.MatchPending.Final())
	assert.True(t, db.MatchAccepted.Final())
	assert.True(t, db.MatchRejected.Final())
}

func TestSwipeAction(t *testing.T) {
	assert.True(t, db.ActionSuperLiked.Positive())
	assert.False(t, db.ActionPassed.Positive())
	assert.False(t, db.SwipeAction("maybe").Valid())
}

func TestAuxWarStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to db.AuxWarStatus
		ok       bool
	}{
		{db.WarCreated, db.WarLive, true},
		{db.WarLive, db.WarVoting, true},
		{db.WarVoting, db.WarLive, true},
		{db.WarVoting, db.WarCompleted, true},
		{db.WarCreated, db.WarVoting, false},
		{db.WarLive, db.WarCompleted, false},
		{db.WarCompleted, db.WarLive, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestFriendshipStatusTransitions(t *testing.T) {
	assert.True(t, db.FriendshipPending.CanTransition(db.FriendshipAccepted))
	assert.True(t, db.FriendshipAccepted.CanTransition(db.FriendshipBlocked))
	assert.False(t, db.FriendshipBlocked.CanTransition(db.FriendshipAccepted))
	assert.True(t, db.FriendshipBlocked.Valid())
}

func TestDeadlines(t *testing.T) {
	w := &db.AuxWar{SubmissionTimeLimit: 120, VotingTimeLimit: 60}
	assert.True(t, w.SubmissionDeadline().IsZero())
	assert.True(t, w.VotingDeadline().IsZero())
}
