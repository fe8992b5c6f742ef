package match_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/soundmatch/internal/app"
	"github.com/oggyb/soundmatch/internal/cache"
	"github.com/oggyb/soundmatch/internal/config"
	"github.com/oggyb/soundmatch/internal/db"
	"github.com/oggyb/soundmatch/internal/db/dbtest"
	svcErr "github.com/oggyb/soundmatch/internal/errors"
	"github.com/oggyb/soundmatch/internal/events"
	"github.com/oggyb/soundmatch/internal/logger"
	"github.com/oggyb/soundmatch/internal/match"
)

type fixture struct {
	engine *match.Engine
	db     *gorm.DB
	clock  *clockwork.FakeClock
	events *events.Recorder
	redis  *miniredis.Miniredis
	users  []string
}

func setupEngine(t *testing.T) *fixture {
	t.Helper()

	database := dbtest.Open(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rdb.Close() })

	appCtx := app.New(config.Defaults(), database, rdb, logger.Discard())
	clock := clockwork.NewFakeClockAt(time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC))
	rec := &events.Recorder{}
	appCtx.Clock = clock
	appCtx.Events = rec

	return &fixture{
		engine: match.NewEngine(appCtx),
		db:     database,
		clock:  clock,
		events: rec,
		redis:  mr,
		users:  dbtest.CreateUsers(t, database, "alice", "bob", "carol"),
	}
}

func (f *fixture) propose(t *testing.T, a, b string) *db.Match {
	t.Helper()
	m, err := f.engine.ProposeMatch(context.Background(), a, b, 72.5, map[string]any{"common_artists": []string{"Burial"}}, db.MatchTypeWeekly)
	require.NoError(t, err)
	return m
}

func TestProposeMatch_CanonicalPending(t *testing.T) {
	f := setupEngine(t)
	a, b := f.users[0], f.users[1]
	if a < b {
		a, b = b, a // propose with the larger id first
	}

	m := f.propose(t, a, b)
	assert.Equal(t, b, m.User1ID)
	assert.Equal(t, a, m.User2ID)
	assert.Equal(t, db.MatchPending, m.Status)
	assert.Equal(t, db.MatchTypeWeekly, m.MatchType)
	assert.Nil(t, m.MatchedAt)
	assert.True(t, f.clock.Now().Equal(m.CreatedAt))
	assert.Empty(t, f.events.Events(), "proposing publishes nothing")
}

func TestProposeMatch_Validation(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	a, b := f.users[0], f.users[1]

	_, err := f.engine.ProposeMatch(ctx, a, a, 50, nil, "")
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)

	_, err = f.engine.ProposeMatch(ctx, a, b, 100.5, nil, "")
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)

	_, err = f.engine.ProposeMatch(ctx, a, b, 50, nil, "speed_dating")
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)

	_, err = f.engine.ProposeMatch(ctx, a, "ghost", 50, nil, "")
	assert.ErrorIs(t, err, svcErr.ErrNotFound)
}

func TestProposeMatch_DuplicateEitherOrder(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	a, b := f.users[0], f.users[1]

	f.propose(t, a, b)

	_, err := f.engine.ProposeMatch(ctx, a, b, 10, nil, "")
	assert.ErrorIs(t, err, svcErr.ErrDuplicatePair)

	_, err = f.engine.ProposeMatch(ctx, b, a, 10, nil, "")
	assert.ErrorIs(t, err, svcErr.ErrDuplicatePair)
	assert.True(t, svcErr.IsDuplicate(err))
}

func TestProposeMatch_ConcurrentOppositeOrders(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	a, b := f.users[0], f.users[1]

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, pair := range [][2]string{{a, b}, {b, a}} {
		wg.Add(1)
		go func(i int, x, y string) {
			defer wg.Done()
			_, errs[i] = f.engine.ProposeMatch(ctx, x, y, 50, nil, "")
		}(i, pair[0], pair[1])
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, svcErr.ErrDuplicatePair):
			dup++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, dup)

	var count int64
	require.NoError(t, f.db.Model(&db.Match{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordSwipe_Outcomes(t *testing.T) {
	all := []db.SwipeAction{db.ActionLiked, db.ActionPassed, db.ActionSuperLiked}
	for _, first := range all {
		for _, second := range all {
			t.Run(string(first)+"_"+string(second), func(t *testing.T) {
				f := setupEngine(t)
				ctx := context.Background()
				m := f.propose(t, f.users[0], f.users[1])

				mid, err := f.engine.RecordSwipe(ctx, m.ID, m.User1ID, first)
				require.NoError(t, err)
				assert.Equal(t, db.MatchPending, mid.Status, "one side is not enough")
				assert.Nil(t, mid.MatchedAt)

				f.clock.Advance(time.Minute)
				final, err := f.engine.RecordSwipe(ctx, m.ID, m.User2ID, second)
				require.NoError(t, err)

				both := first.Positive() && second.Positive()
				assert.Equal(t, both, final.MatchedAt != nil, "matched_at set iff both positive")
				if both {
					assert.Equal(t, db.MatchAccepted, final.Status)
					assert.True(t, f.clock.Now().Equal(*final.MatchedAt))
					require.Len(t, f.events.OfType(events.MatchMade), 1)
					assert.Equal(t, m.ID, f.events.OfType(events.MatchMade)[0].Payload["match_id"])
				} else {
					assert.Equal(t, db.MatchRejected, final.Status)
					assert.Empty(t, f.events.OfType(events.MatchMade))
				}

				stored, err := f.engine.GetMatch(ctx, m.ID)
				require.NoError(t, err)
				assert.Equal(t, first, stored.User1Action)
				assert.Equal(t, second, stored.User2Action)
				assert.Equal(t, final.Status, stored.Status)
			})
		}
	}
}

func TestRecordSwipe_LikedPlusPassedRejected(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	m := f.propose(t, f.users[0], f.users[1])

	_, err := f.engine.RecordSwipe(ctx, m.ID, m.User1ID, db.ActionLiked)
	require.NoError(t, err)
	got, err := f.engine.RecordSwipe(ctx, m.ID, m.User2ID, db.ActionPassed)
	require.NoError(t, err)

	assert.Equal(t, db.MatchRejected, got.Status)
	assert.Nil(t, got.MatchedAt)
}

func TestRecordSwipe_Errors(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	m := f.propose(t, f.users[0], f.users[1])

	_, err := f.engine.RecordSwipe(ctx, "missing", m.User1ID, db.ActionLiked)
	assert.ErrorIs(t, err, svcErr.ErrNotFound)

	_, err = f.engine.RecordSwipe(ctx, m.ID, f.users[2], db.ActionLiked)
	assert.ErrorIs(t, err, svcErr.ErrNotParticipant)

	_, err = f.engine.RecordSwipe(ctx, m.ID, m.User1ID, "maybe")
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)

	_, err = f.engine.RecordSwipe(ctx, m.ID, m.User1ID, db.ActionLiked)
	require.NoError(t, err)
	_, err = f.engine.RecordSwipe(ctx, m.ID, m.User1ID, db.ActionPassed)
	assert.ErrorIs(t, err, svcErr.ErrAlreadySwiped)

	stored, err := f.engine.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, db.ActionLiked, stored.User1Action, "second swipe did not overwrite")
}

func TestRecordSwipe_FinalStatusRefusesSwipes(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	m := f.propose(t, f.users[0], f.users[1])

	// a match closed outside the swipe flow, with no actions recorded
	require.NoError(t, f.db.Model(&db.Match{}).Where("id = ?", m.ID).
		Update("status", db.MatchRejected).Error)

	_, err := f.engine.RecordSwipe(ctx, m.ID, m.User1ID, db.ActionLiked)
	assert.ErrorIs(t, err, svcErr.ErrInvalidState)

	stored, err := f.engine.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.User1Action)
	assert.Equal(t, db.MatchRejected, stored.Status)
}

func TestRecordSwipe_ConcurrentBothSides(t *testing.T) {
	for i := 0; i < 5; i++ {
		f := setupEngine(t)
		ctx := context.Background()
		m := f.propose(t, f.users[0], f.users[1])

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j, user := range []string{m.User1ID, m.User2ID} {
			wg.Add(1)
			go func(j int, user string) {
				defer wg.Done()
				_, errs[j] = f.engine.RecordSwipe(ctx, m.ID, user, db.ActionLiked)
			}(j, user)
		}
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		stored, err := f.engine.GetMatch(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, db.ActionLiked, stored.User1Action)
		assert.Equal(t, db.ActionLiked, stored.User2Action)
		assert.Equal(t, db.MatchAccepted, stored.Status)
		assert.NotNil(t, stored.MatchedAt)
		assert.Equal(t, int64(3), stored.Version)
		assert.Len(t, f.events.OfType(events.MatchMade), 1, "match_made exactly once")
	}
}

func TestRecordSwipe_SinkFailureKeepsState(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	m := f.propose(t, f.users[0], f.users[1])
	f.events.Err = errors.New("broker down")

	_, err := f.engine.RecordSwipe(ctx, m.ID, m.User1ID, db.ActionSuperLiked)
	require.NoError(t, err)
	got, err := f.engine.RecordSwipe(ctx, m.ID, m.User2ID, db.ActionLiked)
	require.NoError(t, err)
	assert.Equal(t, db.MatchAccepted, got.Status)
}

func TestStartConversation(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	m := f.propose(t, f.users[0], f.users[1])

	_, err := f.engine.StartConversation(ctx, m.ID, m.User1ID)
	assert.ErrorIs(t, err, svcErr.ErrInvalidState, "pending match")

	_, err = f.engine.RecordSwipe(ctx, m.ID, m.User1ID, db.ActionLiked)
	require.NoError(t, err)
	_, err = f.engine.RecordSwipe(ctx, m.ID, m.User2ID, db.ActionLiked)
	require.NoError(t, err)

	_, err = f.engine.StartConversation(ctx, m.ID, f.users[2])
	assert.ErrorIs(t, err, svcErr.ErrNotParticipant)

	got, err := f.engine.StartConversation(ctx, m.ID, m.User2ID)
	require.NoError(t, err)
	assert.True(t, got.ConversationOn)
}

func TestListsAndPendingCount(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	alice, bob, carol := f.users[0], f.users[1], f.users[2]

	ab := f.propose(t, alice, bob)
	f.clock.Advance(time.Second)
	f.propose(t, alice, carol)

	n, err := f.engine.CountPendingMatches(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, f.redis.Exists(cache.KeyForPendingCount(alice)), "count cached")

	// bob likes alice: alice's count stays, bob's drops, the cache is invalidated
	_, err = f.engine.RecordSwipe(ctx, ab.ID, bob, db.ActionLiked)
	require.NoError(t, err)
	assert.False(t, f.redis.Exists(cache.KeyForPendingCount(alice)))

	n, err = f.engine.CountPendingMatches(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	likes, next, err := f.engine.ListIncomingLikes(ctx, alice, nil, 0)
	require.NoError(t, err)
	assert.Nil(t, next)
	require.Len(t, likes, 1)
	assert.Equal(t, ab.ID, likes[0].ID)

	all, _, err := f.engine.ListMatches(ctx, alice, "", nil, 1)
	require.NoError(t, err)
	require.Len(t, all, 1, "limit respected")

	_, _, err = f.engine.ListMatches(ctx, alice, "dating", nil, 10)
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)
}

func TestCountPendingMatches_CacheHitAndRedisDown(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	alice := f.users[0]

	require.NoError(t, f.redis.Set(cache.KeyForPendingCount(alice), "42"))
	n, err := f.engine.CountPendingMatches(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n, "served from cache")

	f.redis.Close()
	n, err = f.engine.CountPendingMatches(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "DB fallback when redis is unavailable")
}
