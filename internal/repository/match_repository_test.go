package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/soundmatch/internal/db"
	"github.com/oggyb/soundmatch/internal/db/dbtest"
	svcErr "github.com/oggyb/soundmatch/internal/errors"
	"github.com/oggyb/soundmatch/internal/repository"
)

var base = time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)

func newMatch(a, b string, created time.Time) *db.Match {
	u1, u2 := repository.Canonical(a, b)
	m := &db.Match{
		User1ID:            u1,
		User2ID:            u2,
		CompatibilityScore: 50,
		MatchType:          db.MatchTypeManual,
		Status:             db.MatchPending,
		Version:            1,
	}
	m.CreatedAt = created
	return m
}

func TestCanonical(t *testing.T) {
	a, b := repository.Canonical("b", "a")
	assert.Equal(t, "a", a)
	assert.Equal(t, "b", b)

	a, b = repository.Canonical("a", "b")
	assert.Equal(t, "a", a)
	assert.Equal(t, "b", b)
}

func TestMatchCreate_DuplicatePair(t *testing.T) {
	ctx := context.Background()
	database := dbtest.Open(t)
	repo := repository.NewMatchRepository(database)
	ids := dbtest.CreateUsers(t, database, "alice", "bob")

	require.NoError(t, repo.Create(ctx, newMatch(ids[0], ids[1], base)))

	err := repo.Create(ctx, newMatch(ids[1], ids[0], base))
	assert.ErrorIs(t, err, svcErr.ErrDuplicatePair)

	exists, err := repo.PairExists(ctx, ids[1], ids[0])
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMatchFindByID_NotFound(t *testing.T) {
	repo := repository.NewMatchRepository(dbtest.Open(t))
	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, svcErr.ErrNotFound)
}

func TestSaveSwipe_VersionGuard(t *testing.T) {
	ctx := context.Background()
	database := dbtest.Open(t)
	repo := repository.NewMatchRepository(database)
	ids := dbtest.CreateUsers(t, database, "alice", "bob")

	m := newMatch(ids[0], ids[1], base)
	require.NoError(t, repo.Create(ctx, m))

	stale := *m

	m.User1Action = db.ActionLiked
	ok, err := repo.SaveSwipe(ctx, m, m.Version)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), m.Version)

	// a writer holding the old version loses
	stale.User2Action = db.ActionPassed
	ok, err = repo.SaveSwipe(ctx, &stale, stale.Version)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, db.ActionLiked, got.User1Action)
	assert.Equal(t, db.SwipeAction(""), got.User2Action)
}

func TestListForUser_Pagination(t *testing.T) {
	ctx := context.Background()
	database := dbtest.Open(t)
	repo := repository.NewMatchRepository(database)
	ids := dbtest.CreateUsers(t, database, "me", "a", "b", "c")

	for i, other := range ids[1:] {
		require.NoError(t, repo.Create(ctx, newMatch(ids[0], other, base.Add(time.Duration(i)*time.Minute))))
	}

	page1, next, err := repo.ListForUser(ctx, ids[0], "", nil, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotNil(t, next)
	assert.True(t, page1[0].CreatedAt.After(page1[1].CreatedAt))

	page2, next, err := repo.ListForUser(ctx, ids[0], "", next, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Nil(t, next)
	assert.True(t, page2[0].CreatedAt.Before(page1[1].CreatedAt))

	accepted, _, err := repo.ListForUser(ctx, ids[0], db.MatchAccepted, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, accepted)
}

func TestListForUser_BadToken(t *testing.T) {
	repo := repository.NewMatchRepository(dbtest.Open(t))
	bad := "!!!"
	_, _, err := repo.ListForUser(context.Background(), "u", "", &bad, 10)
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)
}

func TestListIncomingLikes(t *testing.T) {
	ctx := context.Background()
	database := dbtest.Open(t)
	repo := repository.NewMatchRepository(database)
	ids := dbtest.CreateUsers(t, database, "me", "liker", "passer", "silent")
	me := ids[0]

	like := newMatch(me, ids[1], base)
	require.NoError(t, repo.Create(ctx, like))
	setAction(t, repo, like, ids[1], db.ActionSuperLiked)

	pass := newMatch(me, ids[2], base.Add(time.Minute))
	require.NoError(t, repo.Create(ctx, pass))
	setAction(t, repo, pass, ids[2], db.ActionPassed)

	require.NoError(t, repo.Create(ctx, newMatch(me, ids[3], base.Add(2*time.Minute))))

	likes, _, err := repo.ListIncomingLikes(ctx, me, nil, 10)
	require.NoError(t, err)
	require.Len(t, likes, 1)
	assert.Equal(t, like.ID, likes[0].ID)

	pending, err := repo.CountAwaitingSwipe(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pending)

	// the liker already swiped, so only their other pending rows count
	pending, err = repo.CountAwaitingSwipe(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func setAction(t *testing.T, repo *repository.MatchRepository, m *db.Match, userID string, action db.SwipeAction) {
	t.Helper()
	now := base
	if m.Side(userID) == 1 {
		m.User1Action, m.User1SwipedAt = action, &now
	} else {
		m.User2Action, m.User2SwipedAt = action, &now
	}
	ok, err := repo.SaveSwipe(context.Background(), m, m.Version)
	require.NoError(t, err)
	require.True(t, ok)
}
