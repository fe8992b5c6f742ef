package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/soundmatch/internal/app"
	"github.com/oggyb/soundmatch/internal/auth"
	"github.com/oggyb/soundmatch/internal/auxwar"
	"github.com/oggyb/soundmatch/internal/cache"
	"github.com/oggyb/soundmatch/internal/config"
	"github.com/oggyb/soundmatch/internal/db"
	"github.com/oggyb/soundmatch/internal/db/dbtest"
	"github.com/oggyb/soundmatch/internal/logger"
	"github.com/oggyb/soundmatch/internal/match"
	"github.com/oggyb/soundmatch/internal/repository"
	"github.com/oggyb/soundmatch/internal/rpc"
	"github.com/oggyb/soundmatch/internal/server"
	auxwarsvc "github.com/oggyb/soundmatch/internal/service/auxwar"
	matchsvc "github.com/oggyb/soundmatch/internal/service/match"
	socialsvc "github.com/oggyb/soundmatch/internal/service/social"
	"github.com/oggyb/soundmatch/internal/social"
)

type harness struct {
	conn   *grpc.ClientConn
	authn  *auth.Authenticator
	users  map[string]string
	redis  *miniredis.Miniredis
	prefix string
}

func setupServer(t *testing.T) *harness {
	t.Helper()
	database := dbtest.Open(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.Defaults()
	cfg.Auth.JWTSecret = "test-secret"
	log := logger.Discard()
	appCtx := app.New(cfg, database, rdb, log)
	authn := auth.New(cfg, nil)

	srv := server.New(cfg, log, authn,
		matchsvc.NewRegistrar(appCtx, match.NewEngine(appCtx)),
		auxwarsvc.NewRegistrar(appCtx, auxwar.NewEngine(appCtx)),
		socialsvc.NewRegistrar(appCtx, social.NewEngine(appCtx)),
	)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	names := []string{"host", "alice", "bob", "carol"}
	ids := dbtest.CreateUsers(t, database, names...)
	users := make(map[string]string, len(names))
	for i, n := range names {
		users[n] = ids[i]
	}

	require.NoError(t, repository.NewListeningRepository(database).Record(context.Background(),
		db.ListeningHistory{UserID: users["alice"], Platform: "spotify", SongID: "s1", SongTitle: "Archangel", ArtistName: "Burial", Genre: "electronic", PlayedAt: time.Now().UTC()},
		db.ListeningHistory{UserID: users["bob"], Platform: "spotify", SongID: "s1", SongTitle: "Archangel", ArtistName: "Burial", Genre: "electronic", PlayedAt: time.Now().UTC()},
	))

	return &harness{conn: conn, authn: authn, users: users, redis: mr, prefix: cfg.Events.Prefix}
}

// as returns a context authenticated as the named user.
func (h *harness) as(t *testing.T, name string) context.Context {
	t.Helper()
	token, err := h.authn.Sign(h.users[name])
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

func (h *harness) call(ctx context.Context, t *testing.T, service, method string, fields map[string]any) (map[string]any, error) {
	t.Helper()
	req, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	resp, err := rpc.Call(ctx, h.conn, service, method, req)
	if err != nil {
		return nil, err
	}
	return resp.AsMap(), nil
}

func (h *harness) mustCall(ctx context.Context, t *testing.T, service, method string, fields map[string]any) map[string]any {
	t.Helper()
	resp, err := h.call(ctx, t, service, method, fields)
	require.NoError(t, err, "%s/%s", service, method)
	return resp
}

func TestHealthAndAuth(t *testing.T) {
	h := setupServer(t)

	resp, err := healthpb.NewHealthClient(h.conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: matchsvc.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	_, err = h.call(context.Background(), t, matchsvc.ServiceName, "CountPendingMatches", map[string]any{"user_id": h.users["alice"]})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	// a token for alice cannot act as bob
	_, err = h.call(h.as(t, "alice"), t, matchsvc.ServiceName, "CountPendingMatches", map[string]any{"user_id": h.users["bob"]})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestMatchFlow(t *testing.T) {
	h := setupServer(t)

	proposed := h.mustCall(h.as(t, "alice"), t, matchsvc.ServiceName, "ProposeMatch", map[string]any{
		"other_user_id": h.users["bob"],
		"match_type":    "weekly",
	})
	m := proposed["match"].(map[string]any)
	assert.Equal(t, "pending", m["status"])
	assert.Equal(t, 100.0, m["compatibility_score"])
	matchID := m["id"].(string)

	_, err := h.call(h.as(t, "bob"), t, matchsvc.ServiceName, "ProposeMatch", map[string]any{
		"other_user_id": h.users["alice"], "compatibility_score": 50,
	})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	count := h.mustCall(h.as(t, "bob"), t, matchsvc.ServiceName, "CountPendingMatches", nil)
	assert.Equal(t, 1.0, count["count"])

	first := h.mustCall(h.as(t, "alice"), t, matchsvc.ServiceName, "RecordSwipe", map[string]any{"match_id": matchID, "action": "liked"})
	assert.Equal(t, false, first["matched"])

	likes := h.mustCall(h.as(t, "bob"), t, matchsvc.ServiceName, "ListIncomingLikes", nil)
	assert.Len(t, likes["matches"], 1)

	second := h.mustCall(h.as(t, "bob"), t, matchsvc.ServiceName, "RecordSwipe", map[string]any{"match_id": matchID, "action": "super_liked"})
	assert.Equal(t, true, second["matched"])
	assert.Contains(t, second["match"], "matched_at")

	_, err = h.call(h.as(t, "carol"), t, matchsvc.ServiceName, "RecordSwipe", map[string]any{"match_id": matchID, "action": "liked"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	list := h.mustCall(h.as(t, "alice"), t, matchsvc.ServiceName, "ListMatches", map[string]any{"status": "accepted"})
	assert.Len(t, list["matches"], 1)
	assert.NotContains(t, list, "next_pagination_token")

	recent, err := h.redis.List(h.prefix + ":recent")
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Contains(t, recent[0], "match_made")
}

func TestAuxWarFlow(t *testing.T) {
	h := setupServer(t)
	svc := auxwarsvc.ServiceName

	created := h.mustCall(h.as(t, "host"), t, svc, "CreateWar", map[string]any{"title": "Friday Night Aux", "rounds": 1})
	warID := created["war"].(map[string]any)["id"].(string)

	for _, name := range []string{"alice", "bob"} {
		h.mustCall(h.as(t, name), t, svc, "JoinWar", map[string]any{"war_id": warID})
	}

	_, err := h.call(h.as(t, "alice"), t, svc, "StartWar", map[string]any{"war_id": warID})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	started := h.mustCall(h.as(t, "host"), t, svc, "StartWar", map[string]any{"war_id": warID})
	assert.Equal(t, "live", started["war"].(map[string]any)["status"])

	subs := map[string]string{}
	for _, name := range []string{"alice", "bob"} {
		resp := h.mustCall(h.as(t, name), t, svc, "SubmitSong", map[string]any{
			"war_id": warID, "song_id": "track-" + name, "song_title": "Song " + name, "artist_name": "Artist",
		})
		subs[name] = resp["submission"].(map[string]any)["id"].(string)
	}

	got := h.mustCall(h.as(t, "carol"), t, svc, "GetWar", map[string]any{"war_id": warID})
	assert.Equal(t, "voting", got["war"].(map[string]any)["status"])
	assert.Len(t, got["contestants"], 2)

	_, err = h.call(h.as(t, "bob"), t, svc, "CastVote", map[string]any{"war_id": warID, "submission_id": subs["bob"]})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	h.mustCall(h.as(t, "carol"), t, svc, "CastVote", map[string]any{"war_id": warID, "submission_id": subs["alice"]})
	h.mustCall(h.as(t, "bob"), t, svc, "CastVote", map[string]any{"war_id": warID, "submission_id": subs["alice"]})
	h.mustCall(h.as(t, "host"), t, svc, "CastVote", map[string]any{"war_id": warID, "submission_id": subs["bob"]})

	_, err = h.call(h.as(t, "carol"), t, svc, "CastVote", map[string]any{"war_id": warID, "submission_id": subs["bob"]})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	closed := h.mustCall(h.as(t, "host"), t, svc, "CloseRound", map[string]any{"war_id": warID})
	assert.Equal(t, true, closed["completed"])
	war := closed["war"].(map[string]any)
	assert.Equal(t, "completed", war["status"])
	assert.Equal(t, h.users["alice"], war["winner_id"])
	assert.Equal(t, 3.0, war["total_votes"])
	assert.Len(t, closed["standings"], 2)

	_, err = h.call(h.as(t, "host"), t, svc, "CloseRound", map[string]any{"war_id": warID})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	listed := h.mustCall(h.as(t, "carol"), t, svc, "ListWars", map[string]any{"status": "completed"})
	assert.Len(t, listed["wars"], 1)
}

func TestSocialFlow(t *testing.T) {
	h := setupServer(t)
	svc := socialsvc.ServiceName

	h.mustCall(h.as(t, "alice"), t, svc, "SendFriendRequest", map[string]any{"friend_id": h.users["bob"]})
	_, err := h.call(h.as(t, "alice"), t, svc, "SendFriendRequest", map[string]any{"friend_id": h.users["bob"]})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	requests := h.mustCall(h.as(t, "bob"), t, svc, "ListFriendRequests", nil)
	assert.Len(t, requests["requests"], 1)

	accepted := h.mustCall(h.as(t, "bob"), t, svc, "AcceptFriendRequest", map[string]any{"requester_id": h.users["alice"]})
	f := accepted["friendship"].(map[string]any)
	assert.Equal(t, "accepted", f["status"])
	assert.Equal(t, []any{"Burial"}, f["common_artists"])

	friends := h.mustCall(h.as(t, "alice"), t, svc, "ListFriends", nil)
	assert.Len(t, friends["friends"], 1)

	compat := h.mustCall(h.as(t, "alice"), t, svc, "GetCompatibility", map[string]any{"other_user_id": h.users["carol"]})
	assert.Equal(t, 0.0, compat["compatibility"].(map[string]any)["score"])

	h.mustCall(h.as(t, "carol"), t, svc, "BlockUser", map[string]any{"blocked_user_id": h.users["alice"]})
	_, err = h.call(h.as(t, "alice"), t, svc, "SendFriendRequest", map[string]any{"friend_id": h.users["carol"]})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}
