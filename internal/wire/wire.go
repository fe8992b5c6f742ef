// Package wire renders stored entities as the field maps carried in
// google.protobuf.Struct responses. Timestamps are RFC 3339 strings in UTC;
// unset optional fields are omitted.
package wire

import (
	"encoding/json"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/soundmatch/internal/compat"
	"github.com/oggyb/soundmatch/internal/db"
)

// Struct converts a field map built by this package into a Struct.
func Struct(fields map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(fields)
}

func Match(m *db.Match) map[string]any {
	out := map[string]any{
		"id":                   m.ID,
		"user1_id":             m.User1ID,
		"user2_id":             m.User2ID,
		"compatibility_score":  m.CompatibilityScore,
		"match_type":           string(m.MatchType),
		"status":               string(m.Status),
		"user1_action":         string(m.User1Action),
		"user2_action":         string(m.User2Action),
		"conversation_started": m.ConversationOn,
		"match_reasons":        plain(map[string]any(m.MatchReasons)),
		"created_at":           timestamp(m.CreatedAt),
	}
	optionalTime(out, "user1_swiped_at", m.User1SwipedAt)
	optionalTime(out, "user2_swiped_at", m.User2SwipedAt)
	optionalTime(out, "matched_at", m.MatchedAt)
	return out
}

func Matches(ms []db.Match) []any {
	out := make([]any, len(ms))
	for i := range ms {
		out[i] = Match(&ms[i])
	}
	return out
}

func AuxWar(w *db.AuxWar) map[string]any {
	out := map[string]any{
		"id":                            w.ID,
		"host_id":                       w.HostID,
		"title":                         w.Title,
		"slug":                          w.Slug,
		"description":                   w.Description,
		"theme":                         w.Theme,
		"max_contestants":               w.MaxContestants,
		"rounds":                        w.Rounds,
		"current_round":                 w.CurrentRound,
		"submission_time_limit_seconds": w.SubmissionTimeLimit,
		"voting_time_limit_seconds":     w.VotingTimeLimit,
		"status":                        string(w.Status),
		"total_votes":                   w.TotalVotes,
		"created_at":                    timestamp(w.CreatedAt),
	}
	optionalTime(out, "started_at", w.StartedAt)
	optionalTime(out, "ended_at", w.EndedAt)
	optionalTime(out, "round_started_at", w.RoundStartedAt)
	optionalTime(out, "voting_started_at", w.VotingStartedAt)
	if w.WinnerID != nil {
		out["winner_id"] = *w.WinnerID
	}
	switch w.Status {
	case db.WarLive:
		out["submission_deadline"] = timestamp(w.SubmissionDeadline())
	case db.WarVoting:
		out["voting_deadline"] = timestamp(w.VotingDeadline())
	}
	return out
}

func AuxWars(ws []db.AuxWar) []any {
	out := make([]any, len(ws))
	for i := range ws {
		out[i] = AuxWar(&ws[i])
	}
	return out
}

func Contestants(cs []db.AuxWarContestant) []any {
	out := make([]any, len(cs))
	for i, c := range cs {
		out[i] = Contestant(&c)
	}
	return out
}

func Contestant(c *db.AuxWarContestant) map[string]any {
	return map[string]any{
		"id":         c.ID,
		"aux_war_id": c.AuxWarID,
		"user_id":    c.UserID,
		"confirmed":  c.Confirmed,
		"joined_at":  timestamp(c.CreatedAt),
	}
}

func Submission(s *db.AuxWarSubmission) map[string]any {
	return map[string]any{
		"id":            s.ID,
		"aux_war_id":    s.AuxWarID,
		"contestant_id": s.ContestantID,
		"round_number":  s.RoundNumber,
		"song_id":       s.SongID,
		"song_title":    s.SongTitle,
		"artist_name":   s.ArtistName,
		"album_art_url": s.AlbumArtURL,
		"preview_url":   s.PreviewURL,
		"vote_count":    s.VoteCount,
		"round_winner":  s.RoundWinner,
		"submitted_at":  timestamp(s.CreatedAt),
	}
}

func Submissions(ss []db.AuxWarSubmission) []any {
	out := make([]any, len(ss))
	for i := range ss {
		out[i] = Submission(&ss[i])
	}
	return out
}

func Vote(v *db.AuxWarVote) map[string]any {
	return map[string]any{
		"id":            v.ID,
		"aux_war_id":    v.AuxWarID,
		"voter_id":      v.VoterID,
		"round_number":  v.RoundNumber,
		"submission_id": v.SubmissionID,
		"voted_at":      timestamp(v.CreatedAt),
	}
}

func Friendship(f *db.Friendship) map[string]any {
	return map[string]any{
		"id":                  f.ID,
		"user_id":             f.UserID,
		"friend_id":           f.FriendID,
		"status":              string(f.Status),
		"compatibility_score": f.CompatibilityScore,
		"common_artists":      stringList(f.CommonArtists),
		"common_genres":       stringList(f.CommonGenres),
		"created_at":          timestamp(f.CreatedAt),
	}
}

func Friendships(fs []db.Friendship) []any {
	out := make([]any, len(fs))
	for i := range fs {
		out[i] = Friendship(&fs[i])
	}
	return out
}

func Compatibility(s compat.Snapshot) map[string]any {
	return map[string]any{
		"score":          s.Score,
		"common_artists": stringList(s.CommonArtists),
		"common_genres":  stringList(s.CommonGenres),
	}
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func optionalTime(out map[string]any, key string, t *time.Time) {
	if t != nil {
		out[key] = timestamp(*t)
	}
}

func stringList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// plain reduces an arbitrary JSON-shaped map (which may hold typed slices
// or times) to the types structpb accepts.
func plain(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}
