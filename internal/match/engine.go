// Package match proposes compatibility matches and resolves both sides'
// swipes into an accepted or rejected match.
package match

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/oggyb/soundmatch/internal/app"
	"github.com/oggyb/soundmatch/internal/cache"
	"github.com/oggyb/soundmatch/internal/db"
	svcErr "github.com/oggyb/soundmatch/internal/errors"
	"github.com/oggyb/soundmatch/internal/events"
	"github.com/oggyb/soundmatch/internal/repository"
)

const (
	maxAttempts     = 3
	defaultPageSize = 20
	maxPageSize     = 100
)

// Engine owns the Match lifecycle:
//
//	pending -> accepted (both sides liked or super-liked)
//	pending -> rejected (both sides swiped, at least one passed)
type Engine struct {
	db    *gorm.DB
	cache *cache.RedisCache
	sink  events.Sink
	clock clockwork.Clock
	log   *slog.Logger
}

// NewEngine builds an Engine from AppContext. A nil RedisCache disables
// pending-count caching.
func NewEngine(appCtx *app.AppContext) *Engine {
	clock := appCtx.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		db:    appCtx.DB,
		cache: appCtx.RedisCache,
		sink:  events.OrNop(appCtx.Events),
		clock: clock,
		log:   appCtx.Logger.With("component", "match_engine"),
	}
}

// ProposeMatch creates a pending match between a and b.
//
// Behavior:
//   - The pair is stored canonically; proposing (b, a) after (a, b) fails
//     with DUPLICATE_PAIR.
//   - An empty matchType defaults to manual.
//   - Both users must exist.
//
// Example:
//
//	engine.ProposeMatch(ctx, "u1", "u2", 82.5, reasons, db.MatchTypeWeekly)
func (e *Engine) ProposeMatch(
	ctx context.Context,
	a, b string,
	score float64,
	reasons map[string]any,
	matchType db.MatchType,
) (*db.Match, error) {
	if a == "" || b == "" {
		return nil, svcErr.New(svcErr.CodeInvalidArgument, "both user ids are required")
	}
	if a == b {
		return nil, svcErr.New(svcErr.CodeInvalidArgument, "cannot match a user with themselves")
	}
	if math.IsNaN(score) || score < 0 || score > 100 {
		return nil, svcErr.New(svcErr.CodeInvalidArgument, "compatibility score %v outside [0,100]", score)
	}
	if matchType == "" {
		matchType = db.MatchTypeManual
	}
	if !matchType.Valid() {
		return nil, svcErr.New(svcErr.CodeInvalidArgument, "unknown match type %q", matchType)
	}

	u1, u2 := repository.Canonical(a, b)
	m := &db.Match{
		User1ID:            u1,
		User2ID:            u2,
		CompatibilityScore: score,
		MatchType:          matchType,
		Status:             db.MatchPending,
		MatchReasons:       reasons,
		Version:            1,
	}
	m.CreatedAt = e.now()

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewUserRepository(tx).RequireAll(ctx, u1, u2); err != nil {
			return err
		}
		matches := repository.NewMatchRepository(tx)
		exists, err := matches.PairExists(ctx, u1, u2)
		if err != nil {
			return err
		}
		if exists {
			return svcErr.New(svcErr.CodeDuplicatePair, "match between %s and %s already exists", u1, u2)
		}
		return matches.Create(ctx, m)
	})
	if err != nil {
		e.log.Debug("propose match rejected", "user1", u1, "user2", u2, "err", err)
		return nil, err
	}

	e.invalidatePending(ctx, u1, u2)
	e.log.Info("match proposed", "match_id", m.ID, "user1", u1, "user2", u2, "score", score)
	return m, nil
}

// RecordSwipe stores actor's decision on a match and resolves the match
// once both sides have acted.
//
// Behavior:
//   - The actor must be one of the two users (NOT_PARTICIPANT).
//   - Each side swipes once (ALREADY_SWIPED).
//   - Concurrent swipes by both users serialize on the row lock and the
//     version guard; the loser re-reads and resolves against the winner's
//     committed action.
//   - match_made is published once, after commit, when the match becomes accepted.
func (e *Engine) RecordSwipe(ctx context.Context, matchID, actorID string, action db.SwipeAction) (*db.Match, error) {
	if !action.Valid() {
		return nil, svcErr.New(svcErr.CodeInvalidArgument, "unknown swipe action %q", action)
	}

	var (
		result   *db.Match
		accepted bool
	)
	err := repository.WithRetry(ctx, "record swipe", maxAttempts, func() error {
		accepted = false
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			matches := repository.NewMatchRepository(tx)
			m, err := matches.FindByIDForUpdate(ctx, matchID)
			if err != nil {
				return err
			}

			side := m.Side(actorID)
			if side == 0 {
				return svcErr.New(svcErr.CodeNotParticipant, "user %s is not part of match %s", actorID, matchID)
			}
			if m.Action(side) != "" {
				return svcErr.New(svcErr.CodeAlreadySwiped, "user %s already swiped on match %s", actorID, matchID)
			}
			if m.Status.Final() {
				return svcErr.InvalidState("match %s is %s", matchID, m.Status)
			}

			now := e.now()
			if side == 1 {
				m.User1Action, m.User1SwipedAt = action, &now
			} else {
				m.User2Action, m.User2SwipedAt = action, &now
			}

			if m.User1Action != "" && m.User2Action != "" {
				next := db.MatchRejected
				if m.User1Action.Positive() && m.User2Action.Positive() {
					next = db.MatchAccepted
				}
				if !m.Status.CanTransition(next) {
					return svcErr.InvalidState("match %s cannot go from %s to %s", matchID, m.Status, next)
				}
				m.Status = next
				if next == db.MatchAccepted {
					m.MatchedAt = &now
					accepted = true
				}
			}

			ok, err := matches.SaveSwipe(ctx, m, m.Version)
			if err != nil {
				return err
			}
			if !ok {
				return repository.ErrVersionConflict
			}
			result = m
			return nil
		})
	})
	if err != nil {
		e.log.Debug("swipe rejected", "match_id", matchID, "actor", actorID, "err", err)
		return nil, err
	}

	e.invalidatePending(ctx, result.User1ID, result.User2ID)
	e.log.Info("swipe recorded", "match_id", matchID, "actor", actorID, "action", action, "status", result.Status)

	if accepted {
		e.publish(ctx, events.New(events.MatchMade, *result.MatchedAt, map[string]any{
			"match_id":            result.ID,
			"user1_id":            result.User1ID,
			"user2_id":            result.User2ID,
			"compatibility_score": result.CompatibilityScore,
			"match_type":          string(result.MatchType),
		}))
	}
	return result, nil
}

// StartConversation flags an accepted match as having an open conversation.
// Calling it again is a no-op.
func (e *Engine) StartConversation(ctx context.Context, matchID, actorID string) (*db.Match, error) {
	var result *db.Match
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repository.NewMatchRepository(tx).FindByIDForUpdate(ctx, matchID)
		if err != nil {
			return err
		}
		if m.Side(actorID) == 0 {
			return svcErr.New(svcErr.CodeNotParticipant, "user %s is not part of match %s", actorID, matchID)
		}
		if m.Status != db.MatchAccepted {
			return svcErr.InvalidState("match %s is %s", matchID, m.Status)
		}
		if !m.ConversationOn {
			m.ConversationOn = true
			if err := tx.Model(m).Update("conversation_started", true).Error; err != nil {
				return svcErr.Storage("start conversation", err)
			}
		}
		result = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) GetMatch(ctx context.Context, matchID string) (*db.Match, error) {
	return repository.NewMatchRepository(e.db).FindByID(ctx, matchID)
}

// ListMatches pages through a user's matches, newest first. An empty status
// lists all of them.
func (e *Engine) ListMatches(
	ctx context.Context,
	userID string,
	status db.MatchStatus,
	paginationToken *string,
	limit int,
) ([]db.Match, *string, error) {
	if status != "" && !status.Valid() {
		return nil, nil, svcErr.New(svcErr.CodeInvalidArgument, "unknown match status %q", status)
	}
	return repository.NewMatchRepository(e.db).ListForUser(ctx, userID, status, paginationToken, pageSize(limit))
}

// ListIncomingLikes pages through pending matches where the other user
// already liked userID and userID has not answered.
func (e *Engine) ListIncomingLikes(ctx context.Context, userID string, paginationToken *string, limit int) ([]db.Match, *string, error) {
	return repository.NewMatchRepository(e.db).ListIncomingLikes(ctx, userID, paginationToken, pageSize(limit))
}

// CountPendingMatches returns how many pending matches wait on userID's swipe.
// Cache-first strategy:
//  1. Attempts to read from Redis (matches:pending:userID).
//  2. On a miss or Redis error, falls back to the DB.
//  3. On DB fetch, updates Redis with a 1h TTL.
func (e *Engine) CountPendingMatches(ctx context.Context, userID string) (int64, error) {
	if e.cache != nil {
		n, ok, err := e.cache.GetPendingCount(ctx, userID)
		if err != nil {
			e.log.Warn("pending count cache read failed", "user_id", userID, "err", err)
		} else if ok {
			return n, nil
		}
	}

	n, err := repository.NewMatchRepository(e.db).CountAwaitingSwipe(ctx, userID)
	if err != nil {
		return 0, err
	}

	if e.cache != nil {
		if err := e.cache.SetPendingCount(ctx, userID, n); err != nil {
			e.log.Warn("pending count cache write failed", "user_id", userID, "err", err)
		}
	}
	return n, nil
}

func (e *Engine) invalidatePending(ctx context.Context, userIDs ...string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.InvalidatePendingCounts(ctx, userIDs...); err != nil {
		e.log.Warn("pending count invalidation failed", "users", userIDs, "err", err)
	}
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.sink.Publish(ctx, ev); err != nil {
		e.log.Error("event publish failed", "type", ev.Type, "err", err)
	}
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	}
	return limit
}
