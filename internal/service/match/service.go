package match

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/soundmatch/internal/app"
	"github.com/oggyb/soundmatch/internal/compat"
	"github.com/oggyb/soundmatch/internal/db"
	svcErr "github.com/oggyb/soundmatch/internal/errors"
	engine "github.com/oggyb/soundmatch/internal/match"
	"github.com/oggyb/soundmatch/internal/repository"
	"github.com/oggyb/soundmatch/internal/rpc"
	"github.com/oggyb/soundmatch/internal/wire"
)

const ServiceName = "soundmatch.match.v1.MatchService"

// Server is the MatchService surface. Requests and responses are
// google.protobuf.Struct.
type Server interface {
	ProposeMatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RecordSwipe(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	StartConversation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetMatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListMatches(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListIncomingLikes(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CountPendingMatches(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// Desc describes MatchService for registration and clients.
var Desc = rpc.NewDesc[Server](ServiceName).
	Unary("ProposeMatch", Server.ProposeMatch).
	Unary("RecordSwipe", Server.RecordSwipe).
	Unary("StartConversation", Server.StartConversation).
	Unary("GetMatch", Server.GetMatch).
	Unary("ListMatches", Server.ListMatches).
	Unary("ListIncomingLikes", Server.ListIncomingLikes).
	Unary("CountPendingMatches", Server.CountPendingMatches)

// Service implements MatchService on top of the match engine.
type Service struct {
	appCtx *app.AppContext
	engine *engine.Engine
}

func NewMatchService(appCtx *app.AppContext, e *engine.Engine) *Service {
	return &Service{appCtx: appCtx, engine: e}
}

// ProposeMatch pairs user_id with other_user_id.
//
// Behavior:
//   - compatibility_score is optional; when absent it is computed from both
//     users' listening history and the overlap becomes match_reasons.
//   - match_type defaults to manual.
//
// Example:
//
//	{"user_id": "u1", "other_user_id": "u2", "match_type": "weekly"}
func (s *Service) ProposeMatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.appCtx.Logger.Debug("ProposeMatch called", "user", rpc.String(req, "user_id"), "other", rpc.String(req, "other_user_id"))

	userID, err := rpc.Actor(ctx, req, "user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	otherID, err := rpc.RequireString(req, "other_user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}

	reasons := rpc.Object(req, "match_reasons")
	score, ok := rpc.Number(req, "compatibility_score")
	if !ok {
		snap, err := compat.Between(ctx, repository.NewListeningRepository(s.appCtx.DB), userID, otherID)
		if err != nil {
			return nil, svcErr.Map(err)
		}
		score = snap.Score
		if reasons == nil {
			reasons = snap.Reasons()
		}
	}

	m, err := s.engine.ProposeMatch(ctx, userID, otherID, score, reasons, db.MatchType(rpc.String(req, "match_type")))
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"match": wire.Match(m)})
}

// RecordSwipe stores user_id's action ("liked", "passed", "super_liked")
// on match_id. The response's match shows the resolved status.
func (s *Service) RecordSwipe(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.appCtx.Logger.Debug("RecordSwipe called", "match", rpc.String(req, "match_id"), "action", rpc.String(req, "action"))

	userID, err := rpc.Actor(ctx, req, "user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	matchID, err := rpc.RequireString(req, "match_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}

	m, err := s.engine.RecordSwipe(ctx, matchID, userID, db.SwipeAction(rpc.String(req, "action")))
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{
		"match":   wire.Match(m),
		"matched": m.Status == db.MatchAccepted,
	})
}

func (s *Service) StartConversation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := rpc.Actor(ctx, req, "user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	matchID, err := rpc.RequireString(req, "match_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}

	m, err := s.engine.StartConversation(ctx, matchID, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"match": wire.Match(m)})
}

func (s *Service) GetMatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	matchID, err := rpc.RequireString(req, "match_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	m, err := s.engine.GetMatch(ctx, matchID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"match": wire.Match(m)})
}

// ListMatches pages through user_id's matches, newest first.
//
// Example:
//
//	{"user_id": "u1", "status": "accepted", "limit": 10, "pagination_token": "..."}
func (s *Service) ListMatches(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.appCtx.Logger.Debug("ListMatches called", "user", rpc.String(req, "user_id"), "token", rpc.String(req, "pagination_token"))

	userID, err := rpc.Actor(ctx, req, "user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	limit, err := rpc.Int(req, "limit", 0)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	matches, next, err := s.engine.ListMatches(ctx, userID, db.MatchStatus(rpc.String(req, "status")), rpc.OptionalString(req, "pagination_token"), limit)
	if err != nil {
		s.appCtx.Logger.Error("ListMatches failed", "err", err)
		return nil, svcErr.Map(err)
	}
	return page("matches", wire.Matches(matches), next)
}

// ListIncomingLikes pages through pending matches the other side already
// liked and user_id has not answered.
func (s *Service) ListIncomingLikes(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := rpc.Actor(ctx, req, "user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	limit, err := rpc.Int(req, "limit", 0)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	matches, next, err := s.engine.ListIncomingLikes(ctx, userID, rpc.OptionalString(req, "pagination_token"), limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return page("matches", wire.Matches(matches), next)
}

// CountPendingMatches returns how many pending matches wait on user_id.
func (s *Service) CountPendingMatches(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := rpc.Actor(ctx, req, "user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	n, err := s.engine.CountPendingMatches(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"count": n})
}

func page(key string, items []any, next *string) (*structpb.Struct, error) {
	out := map[string]any{key: items}
	if next != nil {
		out["next_pagination_token"] = *next
	}
	return wire.Struct(out)
}
