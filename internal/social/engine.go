// Package social manages friendships. A friendship is a pair of directed
// edges; it is mutual once both edges are accepted.
package social

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oggyb/soundmatch/internal/app"
	"github.com/oggyb/soundmatch/internal/compat"
	"github.com/oggyb/soundmatch/internal/db"
	svcErr "github.com/oggyb/soundmatch/internal/errors"
	"github.com/oggyb/soundmatch/internal/repository"
)

type Engine struct {
	db    *gorm.DB
	clock clockwork.Clock
	log   *slog.Logger
}

func NewEngine(appCtx *app.AppContext) *Engine {
	clock := appCtx.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		db:    appCtx.DB,
		clock: clock,
		log:   appCtx.Logger.With("component", "social_engine"),
	}
}

// SendFriendRequest creates a pending userID -> friendID edge.
//
// Behavior:
//   - Requesting yourself is INVALID_ARGUMENT.
//   - A block in either direction is INVALID_STATE.
//   - A second request for the same edge is DUPLICATE_FRIENDSHIP.
func (e *Engine) SendFriendRequest(ctx context.Context, userID, friendID string) (*db.Friendship, error) {
	if err := checkPair(userID, friendID); err != nil {
		return nil, err
	}

	f := &db.Friendship{UserID: userID, FriendID: friendID, Status: db.FriendshipPending}
	f.CreatedAt = e.now()

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewUserRepository(tx).RequireAll(ctx, userID, friendID); err != nil {
			return err
		}
		friends := repository.NewFriendshipRepository(tx)
		reverse, err := friends.Find(ctx, friendID, userID)
		if err != nil {
			return err
		}
		if reverse != nil && reverse.Status == db.FriendshipBlocked {
			return svcErr.InvalidState("user %s has blocked %s", friendID, userID)
		}
		existing, err := friends.Find(ctx, userID, friendID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Status == db.FriendshipBlocked {
				return svcErr.InvalidState("user %s has blocked %s", userID, friendID)
			}
			return svcErr.New(svcErr.CodeDuplicateFriendship, "friendship %s -> %s already exists", userID, friendID)
		}
		return friends.Create(ctx, f)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("friend request sent", "user_id", userID, "friend_id", friendID)
	return f, nil
}

// AcceptFriendRequest accepts requesterID's pending request to userID. Both
// edges end up accepted and carry the pair's compatibility snapshot.
func (e *Engine) AcceptFriendRequest(ctx context.Context, userID, requesterID string) (*db.Friendship, error) {
	if err := checkPair(userID, requesterID); err != nil {
		return nil, err
	}

	snap, err := compat.Between(ctx, repository.NewListeningRepository(e.db), requesterID, userID)
	if err != nil {
		return nil, err
	}

	var result *db.Friendship
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		friends := repository.NewFriendshipRepository(tx)
		req, err := friends.Find(ctx, requesterID, userID)
		if err != nil {
			return err
		}
		if req == nil {
			return svcErr.NotFound("friend request", requesterID+" -> "+userID)
		}
		if !req.Status.CanTransition(db.FriendshipAccepted) {
			return svcErr.InvalidState("friend request %s -> %s is %s", requesterID, userID, req.Status)
		}

		back, err := friends.Find(ctx, userID, requesterID)
		if err != nil {
			return err
		}
		if back != nil && back.Status == db.FriendshipBlocked {
			return svcErr.InvalidState("user %s has blocked %s", userID, requesterID)
		}

		applySnapshot(req, snap)
		req.Status = db.FriendshipAccepted
		if err := friends.Save(ctx, req); err != nil {
			return err
		}

		if back == nil {
			back = &db.Friendship{UserID: userID, FriendID: requesterID}
			back.CreatedAt = e.now()
			applySnapshot(back, snap)
			back.Status = db.FriendshipAccepted
			if err := friends.Create(ctx, back); err != nil {
				return err
			}
		} else {
			applySnapshot(back, snap)
			back.Status = db.FriendshipAccepted
			if err := friends.Save(ctx, back); err != nil {
				return err
			}
		}
		result = back
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("friend request accepted", "user_id", userID, "requester_id", requesterID, "score", snap.Score)
	return result, nil
}

// BlockUser marks userID -> otherID blocked and drops any otherID -> userID
// edge, so otherID can no longer request or stay friends.
func (e *Engine) BlockUser(ctx context.Context, userID, otherID string) (*db.Friendship, error) {
	if err := checkPair(userID, otherID); err != nil {
		return nil, err
	}

	var result *db.Friendship
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewUserRepository(tx).RequireAll(ctx, userID, otherID); err != nil {
			return err
		}
		friends := repository.NewFriendshipRepository(tx)
		f, err := friends.Find(ctx, userID, otherID)
		if err != nil {
			return err
		}
		if f == nil {
			f = &db.Friendship{UserID: userID, FriendID: otherID, Status: db.FriendshipBlocked}
			f.CreatedAt = e.now()
			if err := friends.Create(ctx, f); err != nil {
				return err
			}
		} else if f.Status != db.FriendshipBlocked {
			f.Status = db.FriendshipBlocked
			if err := friends.Save(ctx, f); err != nil {
				return err
			}
		}
		result = f
		return friends.Delete(ctx, otherID, userID)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("user blocked", "user_id", userID, "blocked_id", otherID)
	return result, nil
}

// RemoveFriend deletes both edges of an accepted friendship.
func (e *Engine) RemoveFriend(ctx context.Context, userID, friendID string) error {
	if err := checkPair(userID, friendID); err != nil {
		return err
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		friends := repository.NewFriendshipRepository(tx)
		f, err := friends.Find(ctx, userID, friendID)
		if err != nil {
			return err
		}
		if f == nil || f.Status != db.FriendshipAccepted {
			return svcErr.NotFound("friendship", userID+" -> "+friendID)
		}
		if err := friends.Delete(ctx, userID, friendID); err != nil {
			return err
		}
		return friends.Delete(ctx, friendID, userID)
	})
	if err != nil {
		return err
	}
	e.log.Info("friend removed", "user_id", userID, "friend_id", friendID)
	return nil
}

// ListFriends returns userID's accepted edges, newest first.
func (e *Engine) ListFriends(ctx context.Context, userID string) ([]db.Friendship, error) {
	return repository.NewFriendshipRepository(e.db).ListByStatus(ctx, userID, db.FriendshipAccepted)
}

// ListFriendRequests returns pending requests addressed to userID.
func (e *Engine) ListFriendRequests(ctx context.Context, userID string) ([]db.Friendship, error) {
	return repository.NewFriendshipRepository(e.db).ListIncoming(ctx, userID)
}

// Compatibility computes the snapshot between two users without storing it.
func (e *Engine) Compatibility(ctx context.Context, a, b string) (compat.Snapshot, error) {
	if err := checkPair(a, b); err != nil {
		return compat.Snapshot{}, err
	}
	if err := repository.NewUserRepository(e.db).RequireAll(ctx, a, b); err != nil {
		return compat.Snapshot{}, err
	}
	return compat.Between(ctx, repository.NewListeningRepository(e.db), a, b)
}

func checkPair(a, b string) error {
	if a == "" || b == "" {
		return svcErr.New(svcErr.CodeInvalidArgument, "both user ids are required")
	}
	if a == b {
		return svcErr.New(svcErr.CodeInvalidArgument, "a user cannot befriend themselves")
	}
	return nil
}

func applySnapshot(f *db.Friendship, s compat.Snapshot) {
	f.CompatibilityScore = s.Score
	f.CommonArtists = datatypes.JSONSlice[string](s.CommonArtists)
	f.CommonGenres = datatypes.JSONSlice[string](s.CommonGenres)
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}
