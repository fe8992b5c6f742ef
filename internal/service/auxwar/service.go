package auxwar

import (
	"context"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/soundmatch/internal/app"
	engine "github.com/oggyb/soundmatch/internal/auxwar"
	"github.com/oggyb/soundmatch/internal/db"
	svcErr "github.com/oggyb/soundmatch/internal/errors"
	"github.com/oggyb/soundmatch/internal/rpc"
	"github.com/oggyb/soundmatch/internal/wire"
)

const ServiceName = "soundmatch.auxwar.v1.AuxWarService"

type Server interface {
	CreateWar(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	JoinWar(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	InviteContestant(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	StartWar(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SubmitSong(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	OpenVoting(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CastVote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CloseRound(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetWar(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListWars(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListSubmissions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var Desc = rpc.NewDesc[Server](ServiceName).
	Unary("CreateWar", Server.CreateWar).
	Unary("JoinWar", Server.JoinWar).
	Unary("InviteContestant", Server.InviteContestant).
	Unary("StartWar", Server.StartWar).
	Unary("SubmitSong", Server.SubmitSong).
	Unary("OpenVoting", Server.OpenVoting).
	Unary("CastVote", Server.CastVote).
	Unary("CloseRound", Server.CloseRound).
	Unary("GetWar", Server.GetWar).
	Unary("ListWars", Server.ListWars).
	Unary("ListSubmissions", Server.ListSubmissions)

// Service implements AuxWarService. Phase changes that are not driven by
// deadlines (start, early voting, closing) are reserved for the host.
type Service struct {
	appCtx *app.AppContext
	engine *engine.Engine
}

func NewAuxWarService(appCtx *app.AppContext, e *engine.Engine) *Service {
	return &Service{appCtx: appCtx, engine: e}
}

// CreateWar creates a war hosted by user_id. Limits left out take the
// server defaults.
//
// Example:
//
//	{"user_id": "h1", "title": "Friday Night", "rounds": 3, "voting_time_limit_seconds": 45}
func (s *Service) CreateWar(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.appCtx.Logger.Debug("CreateWar called", "host", rpc.String(req, "user_id"), "title", rpc.String(req, "title"))

	hostID, err := rpc.Actor(ctx, req, "user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	in := engine.WarInput{
		Title:       rpc.String(req, "title"),
		Description: rpc.String(req, "description"),
		Theme:       rpc.String(req, "theme"),
	}
	if in.MaxContestants, err = rpc.Int(req, "max_contestants", 0); err != nil {
		return nil, svcErr.Map(err)
	}
	if in.Rounds, err = rpc.Int(req, "rounds", 0); err != nil {
		return nil, svcErr.Map(err)
	}
	sub, err := rpc.Int(req, "submission_time_limit_seconds", 0)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	vote, err := rpc.Int(req, "voting_time_limit_seconds", 0)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	in.SubmissionTimeLimit = time.Duration(sub) * time.Second
	in.VotingTimeLimit = time.Duration(vote) * time.Second

	w, err := s.engine.CreateWar(ctx, hostID, in)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"war": wire.AuxWar(w)})
}

func (s *Service) JoinWar(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := rpc.Actor(ctx, req, "user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	warID, err := rpc.RequireString(req, "war_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}

	c, err := s.engine.JoinWar(ctx, warID, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"contestant": wire.Contestant(c)})
}

func (s *Service) InviteContestant(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	hostID, err := rpc.Actor(ctx, req, "user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	warID, err := rpc.RequireString(req, "war_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	inviteeID, err := rpc.RequireString(req, "invitee_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}

	c, err := s.engine.InviteContestant(ctx, warID, hostID, inviteeID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"contestant": wire.Contestant(c)})
}

func (s *Service) StartWar(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	warID, err := s.requireHost(ctx, req)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	w, err := s.engine.StartWar(ctx, warID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"war": wire.AuxWar(w)})
}

// SubmitSong records user_id's song for round (default: the current round).
//
// Example:
//
//	{"war_id": "w1", "user_id": "u1", "round": 1, "song_id": "spotify:track:1",
//	 "song_title": "Archangel", "artist_name": "Burial"}
func (s *Service) SubmitSong(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.appCtx.Logger.Debug("SubmitSong called", "war", rpc.String(req, "war_id"), "song", rpc.String(req, "song_id"))

	userID, err := rpc.Actor(ctx, req, "user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	warID, err := rpc.RequireString(req, "war_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	round, err := rpc.Int(req, "round", 0)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if round == 0 {
		w, err := s.engine.GetWar(ctx, warID)
		if err != nil {
			return nil, svcErr.Map(err)
		}
		round = w.CurrentRound
	}

	sub, err := s.engine.SubmitSong(ctx, warID, userID, round, engine.Song{
		ID:          rpc.String(req, "song_id"),
		Title:       rpc.String(req, "song_title"),
		Artist:      rpc.String(req, "artist_name"),
		AlbumArtURL: rpc.String(req, "album_art_url"),
		PreviewURL:  rpc.String(req, "preview_url"),
	})
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"submission": wire.Submission(sub)})
}

func (s *Service) OpenVoting(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	warID, err := s.requireHost(ctx, req)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	w, err := s.engine.OpenVoting(ctx, warID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"war": wire.AuxWar(w)})
}

func (s *Service) CastVote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	voterID, err := rpc.Actor(ctx, req, "user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	warID, err := rpc.RequireString(req, "war_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	submissionID, err := rpc.RequireString(req, "submission_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}

	v, err := s.engine.CastVote(ctx, warID, voterID, submissionID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"vote": wire.Vote(v)})
}

// CloseRound tallies the current round. The response carries the round's
// standings, leader first, and whether the war is now completed.
func (s *Service) CloseRound(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	warID, err := s.requireHost(ctx, req)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	res, err := s.engine.CloseRound(ctx, warID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{
		"war":       wire.AuxWar(res.War),
		"round":     res.Round,
		"winner":    wire.Submission(&res.Winner),
		"standings": wire.Submissions(res.Standings),
		"completed": res.Completed,
	})
}

// GetWar returns the war with its contestants.
func (s *Service) GetWar(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	warID, err := rpc.RequireString(req, "war_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	w, err := s.engine.GetWar(ctx, warID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	cs, err := s.engine.ListContestants(ctx, warID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{
		"war":         wire.AuxWar(w),
		"contestants": wire.Contestants(cs),
	})
}

func (s *Service) ListWars(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit, err := rpc.Int(req, "limit", 0)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	wars, next, err := s.engine.ListWars(ctx, db.AuxWarStatus(rpc.String(req, "status")), rpc.OptionalString(req, "pagination_token"), limit)
	if err != nil {
		s.appCtx.Logger.Error("ListWars failed", "err", err)
		return nil, svcErr.Map(err)
	}
	out := map[string]any{"wars": wire.AuxWars(wars)}
	if next != nil {
		out["next_pagination_token"] = *next
	}
	return wire.Struct(out)
}

// ListSubmissions returns a round's submissions in submission order. round
// defaults to the current round.
func (s *Service) ListSubmissions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	warID, err := rpc.RequireString(req, "war_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	round, err := rpc.Int(req, "round", 0)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	subs, err := s.engine.ListSubmissions(ctx, warID, round)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wire.Struct(map[string]any{"submissions": wire.Submissions(subs)})
}

// requireHost returns war_id once the acting user is confirmed as its host.
func (s *Service) requireHost(ctx context.Context, req *structpb.Struct) (string, error) {
	userID, err := rpc.Actor(ctx, req, "user_id")
	if err != nil {
		return "", err
	}
	warID, err := rpc.RequireString(req, "war_id")
	if err != nil {
		return "", err
	}
	w, err := s.engine.GetWar(ctx, warID)
	if err != nil {
		return "", err
	}
	if w.HostID != userID {
		return "", svcErr.New(svcErr.CodeNotParticipant, "only the host can manage aux war %s", warID)
	}
	return warID, nil
}
