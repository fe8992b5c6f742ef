package social

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/soundmatch/internal/app"
	svcErr "github.com/oggyb/soundmatch/internal/errors"
	"github.com/oggyb/soundmatch/internal/rpc"
	engine "github.com/oggyb/soundmatch/internal/social"
	"github.com/oggyb/soundmatch/internal/wire"
)

const ServiceName = "soundmatch.social.v1.SocialService"

type Server interface {
	SendFriendRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AcceptFriendRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	BlockUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RemoveFriend(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListFriends(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListFriendRequests(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetCompatibility(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var Desc = rpc.NewDesc[Server](ServiceName).
	Unary("SendFriendRequest", Server.SendFriendRequest).
	Unary("AcceptFriendRequest", Server.AcceptFriendRequest).
	Unary("BlockUser", Server.BlockUser).
	Unary("RemoveFriend", Server.RemoveFriend).
	Unary("ListFriends", Server.ListFriends).
	Unary("ListFriendRequests", Server.ListFriendRequests).
	Unary("GetCompatibility", Server.GetCompatibility)

type Service struct {
	appCtx *app.AppContext
	engine *engine.Engine
}

func NewSocialService(appCtx *app.AppContext, e *engine.Engine) *Service {
	return &Service{appCtx: appCtx, engine: e}
}

// SendFriendRequest sends a request from user_id to friend_id.
func (s *Service) SendFriendRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, otherID, err := pair(ctx, req, "friend_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	f, err := s.engine.SendFriendRequest(ctx, userID, otherID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"friendship": wire.Friendship(f)})
}

// AcceptFriendRequest accepts requester_id's request to user_id. The
// returned edge carries the pair's compatibility snapshot.
func (s *Service) AcceptFriendRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, otherID, err := pair(ctx, req, "requester_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	f, err := s.engine.AcceptFriendRequest(ctx, userID, otherID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"friendship": wire.Friendship(f)})
}

func (s *Service) BlockUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, otherID, err := pair(ctx, req, "blocked_user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	f, err := s.engine.BlockUser(ctx, userID, otherID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"friendship": wire.Friendship(f)})
}

func (s *Service) RemoveFriend(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, otherID, err := pair(ctx, req, "friend_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if err := s.engine.RemoveFriend(ctx, userID, otherID); err != nil {
		return nil, svcErr.Map(err)
	}
	return &structpb.Struct{}, nil
}

func (s *Service) ListFriends(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := rpc.Actor(ctx, req, "user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	fs, err := s.engine.ListFriends(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"friends": wire.Friendships(fs)})
}

func (s *Service) ListFriendRequests(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := rpc.Actor(ctx, req, "user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	fs, err := s.engine.ListFriendRequests(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"requests": wire.Friendships(fs)})
}

// GetCompatibility computes the taste overlap between user_id and
// other_user_id without storing anything.
func (s *Service) GetCompatibility(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, otherID, err := pair(ctx, req, "other_user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	snap, err := s.engine.Compatibility(ctx, userID, otherID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"compatibility": wire.Compatibility(snap)})
}

func pair(ctx context.Context, req *structpb.Struct, otherKey string) (string, string, error) {
	userID, err := rpc.Actor(ctx, req, "user_id")
	if err != nil {
		return "", "", err
	}
	otherID, err := rpc.RequireString(req, otherKey)
	if err != nil {
		return "", "", err
	}
	return userID, otherID, nil
}
