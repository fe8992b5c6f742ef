package auxwar

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/soundmatch/internal/db"
	svcErr "github.com/oggyb/soundmatch/internal/errors"
	"github.com/oggyb/soundmatch/internal/events"
	"github.com/oggyb/soundmatch/internal/repository"
)

// RoundResult is the outcome of CloseRound.
type RoundResult struct {
	War       *db.AuxWar
	Round     int
	Winner    db.AuxWarSubmission
	Standings []db.AuxWarSubmission // leader first
	Completed bool
}

// StartWar moves a created war to live and opens round 1 for submissions.
//
// Behavior:
//   - INVALID_STATE unless the war is created.
//   - INSUFFICIENT_CONTESTANTS with fewer than two confirmed contestants.
//   - Publishes war_started and schedules the submission deadline.
func (e *Engine) StartWar(ctx context.Context, warID string) (*db.AuxWar, error) {
	var (
		w           *db.AuxWar
		contestants int64
	)
	err := e.transition(ctx, "start aux war", func(tx *gorm.DB) error {
		wars := repository.NewAuxWarRepository(tx)
		cur, err := wars.FindWarForUpdate(ctx, warID)
		if err != nil {
			return err
		}
		if cur.Status != db.WarCreated {
			return svcErr.InvalidState("aux war %s is %s, not created", warID, cur.Status)
		}

		contestants, err = wars.CountContestants(ctx, warID, true)
		if err != nil {
			return err
		}
		if contestants < 2 {
			return svcErr.New(svcErr.CodeInsufficientContestants,
				"aux war %s has %d confirmed contestants, need 2", warID, contestants)
		}

		now := e.now()
		if err := advance(cur, db.WarLive); err != nil {
			return err
		}
		cur.CurrentRound = 1
		cur.StartedAt = &now
		cur.RoundStartedAt = &now
		if err := e.save(ctx, wars, cur, map[string]any{
			"status":           cur.Status,
			"current_round":    cur.CurrentRound,
			"started_at":       cur.StartedAt,
			"round_started_at": cur.RoundStartedAt,
		}); err != nil {
			return err
		}
		w = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("aux war started", "war_id", w.ID, "contestants", contestants)
	e.publish(ctx, events.New(events.WarStarted, *w.StartedAt, map[string]any{
		"war_id":              w.ID,
		"round":               w.CurrentRound,
		"rounds":              w.Rounds,
		"contestants":         contestants,
		"submission_deadline": w.SubmissionDeadline(),
	}))
	e.scheduleSubmissions(w)
	return w, nil
}

// SubmitSong records a contestant's song for the current round.
//
// Behavior:
//   - INVALID_STATE unless the war is live and round is the current round.
//   - NOT_PARTICIPANT unless the user is a confirmed contestant.
//   - ROUND_CLOSED once the submission window has elapsed.
//   - DUPLICATE_SUBMISSION for a second song in the same round.
//   - The last confirmed contestant's submission opens voting in the same
//     transaction.
func (e *Engine) SubmitSong(ctx context.Context, warID, contestantID string, round int, song Song) (*db.AuxWarSubmission, error) {
	song.ID = strings.TrimSpace(song.ID)
	song.Title = strings.TrimSpace(song.Title)
	song.Artist = strings.TrimSpace(song.Artist)
	if song.ID == "" || song.Title == "" || song.Artist == "" {
		return nil, svcErr.New(svcErr.CodeInvalidArgument, "song id, title and artist are required")
	}

	var (
		sub    *db.AuxWarSubmission
		w      *db.AuxWar
		opened bool
	)
	err := e.transition(ctx, "submit song", func(tx *gorm.DB) error {
		opened = false
		wars := repository.NewAuxWarRepository(tx)
		cur, err := wars.FindWarForUpdate(ctx, warID)
		if err != nil {
			return err
		}
		if cur.Status != db.WarLive {
			return svcErr.InvalidState("aux war %s is %s, not live", warID, cur.Status)
		}
		if round != cur.CurrentRound {
			return svcErr.InvalidState("aux war %s is on round %d, not %d", warID, cur.CurrentRound, round)
		}

		c, err := wars.FindContestant(ctx, warID, contestantID)
		if err != nil {
			return err
		}
		if c == nil || !c.Confirmed {
			return svcErr.New(svcErr.CodeNotParticipant, "user %s is not a confirmed contestant of %s", contestantID, warID)
		}

		now := e.now()
		if !now.Before(cur.SubmissionDeadline()) {
			return svcErr.New(svcErr.CodeRoundClosed, "submissions for round %d of %s closed at %s",
				round, warID, cur.SubmissionDeadline().Format(time.RFC3339))
		}

		s := &db.AuxWarSubmission{
			AuxWarID:     warID,
			ContestantID: contestantID,
			RoundNumber:  round,
			SongID:       song.ID,
			SongTitle:    song.Title,
			ArtistName:   song.Artist,
			AlbumArtURL:  song.AlbumArtURL,
			PreviewURL:   song.PreviewURL,
		}
		s.CreatedAt = now
		if err := wars.CreateSubmission(ctx, s); err != nil {
			return err
		}

		all, err := e.allSubmitted(ctx, wars, cur)
		if err != nil {
			return err
		}
		if all {
			if err := e.openVoting(ctx, wars, cur, now); err != nil {
				return err
			}
			opened = true
		}

		sub, w = s, cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("song submitted", "war_id", warID, "round", round, "contestant_id", contestantID, "song_id", song.ID)
	if opened {
		e.afterVotingOpened(ctx, w)
	}
	return sub, nil
}

// OpenVoting moves a live war to voting once every confirmed contestant has
// submitted or the submission window has elapsed, whichever comes first.
func (e *Engine) OpenVoting(ctx context.Context, warID string) (*db.AuxWar, error) {
	var w *db.AuxWar
	err := e.transition(ctx, "open voting", func(tx *gorm.DB) error {
		wars := repository.NewAuxWarRepository(tx)
		cur, err := wars.FindWarForUpdate(ctx, warID)
		if err != nil {
			return err
		}
		if !cur.Status.CanTransition(db.WarVoting) {
			return svcErr.InvalidState("aux war %s is %s, not live", warID, cur.Status)
		}

		now := e.now()
		if now.Before(cur.SubmissionDeadline()) {
			all, err := e.allSubmitted(ctx, wars, cur)
			if err != nil {
				return err
			}
			if !all {
				return svcErr.InvalidState("aux war %s round %d is still taking submissions until %s",
					warID, cur.CurrentRound, cur.SubmissionDeadline().Format(time.RFC3339))
			}
		}

		if err := e.openVoting(ctx, wars, cur, now); err != nil {
			return err
		}
		w = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.afterVotingOpened(ctx, w)
	return w, nil
}

// CastVote records voterID's vote for a submission of the current round.
//
// Behavior:
//   - INVALID_STATE unless the war is voting.
//   - NOT_FOUND unless the submission belongs to this war's current round.
//   - SELF_VOTE when voting for one's own submission.
//   - ALREADY_VOTED for a second vote in the same round.
//   - ROUND_CLOSED once the voting window has elapsed.
//   - The vote row and vote_count move together in one transaction.
func (e *Engine) CastVote(ctx context.Context, warID, voterID, submissionID string) (*db.AuxWarVote, error) {
	var (
		vote  *db.AuxWarVote
		round int
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wars := repository.NewAuxWarRepository(tx)
		w, err := wars.FindWarForUpdate(ctx, warID)
		if err != nil {
			return err
		}
		if w.Status != db.WarVoting {
			return svcErr.InvalidState("aux war %s is %s, not voting", warID, w.Status)
		}

		now := e.now()
		if !now.Before(w.VotingDeadline()) {
			return svcErr.New(svcErr.CodeRoundClosed, "voting for round %d of %s closed", w.CurrentRound, warID)
		}

		s, err := wars.FindSubmission(ctx, submissionID)
		if err != nil {
			return err
		}
		if s.AuxWarID != warID || s.RoundNumber != w.CurrentRound {
			return svcErr.NotFound("submission", submissionID+" in current round")
		}
		if s.ContestantID == voterID {
			return svcErr.New(svcErr.CodeSelfVote, "user %s cannot vote for their own submission", voterID)
		}
		if err := repository.NewUserRepository(tx).RequireAll(ctx, voterID); err != nil {
			return err
		}

		v := &db.AuxWarVote{
			AuxWarID:     warID,
			VoterID:      voterID,
			RoundNumber:  w.CurrentRound,
			SubmissionID: submissionID,
		}
		v.CreatedAt = now
		if err := wars.CreateVote(ctx, v); err != nil {
			if svcErr.CodeOf(err) == svcErr.CodeAlreadyVoted {
				return svcErr.New(svcErr.CodeAlreadyVoted, "user %s already voted in round %d of %s", voterID, w.CurrentRound, warID)
			}
			return err
		}
		if err := wars.IncrementVoteCount(ctx, submissionID); err != nil {
			return err
		}
		vote, round = v, w.CurrentRound
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Debug("vote cast", "war_id", warID, "round", round, "voter_id", voterID, "submission_id", submissionID)
	e.publish(ctx, events.New(events.VoteCast, vote.CreatedAt, map[string]any{
		"war_id":        warID,
		"round":         round,
		"voter_id":      voterID,
		"submission_id": submissionID,
	}))
	return vote, nil
}

// CloseRound tallies the current round and either advances to the next
// round or completes the war.
//
// Behavior:
//   - INVALID_STATE unless the war is voting; a concurrent closer that lost
//     the race sees the new state and fails here, so a round closes once.
//   - NO_SUBMISSIONS when the round has nothing to tally.
//   - The leader has the most votes; ties go to the configured policy.
//   - On the final round the leader's contestant wins and total_votes sums
//     every round.
func (e *Engine) CloseRound(ctx context.Context, warID string) (*RoundResult, error) {
	var res *RoundResult
	err := e.transition(ctx, "close round", func(tx *gorm.DB) error {
		wars := repository.NewAuxWarRepository(tx)
		cur, err := wars.FindWarForUpdate(ctx, warID)
		if err != nil {
			return err
		}
		// only a voting war can finish, so this also rules out created/live
		if !cur.Status.CanTransition(db.WarCompleted) {
			return svcErr.InvalidState("aux war %s is %s, not voting", warID, cur.Status)
		}

		subs, err := wars.ListSubmissions(ctx, warID, cur.CurrentRound)
		if err != nil {
			return err
		}
		if len(subs) == 0 {
			return svcErr.New(svcErr.CodeNoSubmissions, "aux war %s round %d has no submissions", warID, cur.CurrentRound)
		}

		// vote rows are authoritative; a drifted counter is repaired before ranking
		for i := range subs {
			n, err := wars.CountVotes(ctx, warID, cur.CurrentRound, subs[i].ID)
			if err != nil {
				return err
			}
			if n != int64(subs[i].VoteCount) {
				e.log.Warn("vote count out of sync", "submission_id", subs[i].ID, "cached", subs[i].VoteCount, "rows", n)
				if err := wars.SetVoteCount(ctx, subs[i].ID, n); err != nil {
					return err
				}
				subs[i].VoteCount = int(n)
			}
		}

		// Ties follow AUXWAR_TIE_BREAK: "earliest" (default) prefers the first
		// submission, "latest" the last.
		standings := Rank(subs, e.settings.TieBreak)
		leader := standings[0]
		if err := wars.MarkRoundWinner(ctx, leader.ID); err != nil {
			return err
		}
		standings[0].RoundWinner = true

		closed := cur.CurrentRound
		now := e.now()
		var fields map[string]any
		if cur.CurrentRound >= cur.Rounds {
			total, err := wars.SumVotes(ctx, warID)
			if err != nil {
				return err
			}
			winner := leader.ContestantID
			if err := advance(cur, db.WarCompleted); err != nil {
				return err
			}
			cur.WinnerID = &winner
			cur.TotalVotes = int(total)
			cur.EndedAt = &now
			fields = map[string]any{
				"status":      cur.Status,
				"winner_id":   cur.WinnerID,
				"total_votes": cur.TotalVotes,
				"ended_at":    cur.EndedAt,
			}
		} else {
			if err := advance(cur, db.WarLive); err != nil {
				return err
			}
			cur.CurrentRound++
			cur.RoundStartedAt = &now
			cur.VotingStartedAt = nil
			fields = map[string]any{
				"status":            cur.Status,
				"current_round":     cur.CurrentRound,
				"round_started_at":  cur.RoundStartedAt,
				"voting_started_at": nil,
			}
		}
		if err := e.save(ctx, wars, cur, fields); err != nil {
			return err
		}

		res = &RoundResult{
			War:       cur,
			Round:     closed,
			Winner:    standings[0],
			Standings: standings,
			Completed: cur.Status == db.WarCompleted,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w := res.War
	at := e.now()
	e.log.Info("round closed", "war_id", w.ID, "round", res.Round, "leader", res.Winner.ID, "votes", res.Winner.VoteCount)
	e.publish(ctx, events.New(events.RoundClosed, at, map[string]any{
		"war_id":               w.ID,
		"round":                res.Round,
		"winner_submission_id": res.Winner.ID,
		"winner_id":            res.Winner.ContestantID,
		"vote_count":           res.Winner.VoteCount,
	}))

	if res.Completed {
		e.log.Info("aux war completed", "war_id", w.ID, "winner_id", *w.WinnerID, "total_votes", w.TotalVotes)
		e.publish(ctx, events.New(events.WarCompleted, *w.EndedAt, map[string]any{
			"war_id":      w.ID,
			"winner_id":   *w.WinnerID,
			"total_votes": w.TotalVotes,
		}))
		if e.timer != nil {
			e.timer.Cancel(w.ID)
		}
		return res, nil
	}

	e.scheduleSubmissions(w)
	return res, nil
}

// ExtendRound sends a voting war with no submissions back to live on the
// same round with a fresh submission window.
func (e *Engine) ExtendRound(ctx context.Context, warID string) (*db.AuxWar, error) {
	var w *db.AuxWar
	err := e.transition(ctx, "extend round", func(tx *gorm.DB) error {
		wars := repository.NewAuxWarRepository(tx)
		cur, err := wars.FindWarForUpdate(ctx, warID)
		if err != nil {
			return err
		}
		if cur.Status != db.WarVoting {
			return svcErr.InvalidState("aux war %s is %s, not voting", warID, cur.Status)
		}
		n, err := wars.CountSubmissions(ctx, warID, cur.CurrentRound)
		if err != nil {
			return err
		}
		if n > 0 {
			return svcErr.InvalidState("aux war %s round %d has submissions; close it instead", warID, cur.CurrentRound)
		}

		if err := advance(cur, db.WarLive); err != nil {
			return err
		}
		now := e.now()
		cur.RoundStartedAt = &now
		cur.VotingStartedAt = nil
		if err := e.save(ctx, wars, cur, map[string]any{
			"status":            cur.Status,
			"round_started_at":  cur.RoundStartedAt,
			"voting_started_at": nil,
		}); err != nil {
			return err
		}
		w = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("round extended", "war_id", w.ID, "round", w.CurrentRound)
	e.scheduleSubmissions(w)
	return w, nil
}

// ExpireSubmissions is the submission-deadline callback. It opens voting if
// the war is still live on round; a stale or repeated fire does nothing.
func (e *Engine) ExpireSubmissions(ctx context.Context, warID string, round int) error {
	w, err := e.GetWar(ctx, warID)
	if err != nil {
		return err
	}
	if w.Status != db.WarLive || w.CurrentRound != round {
		return nil
	}
	_, err = e.OpenVoting(ctx, warID)
	if errors.Is(err, svcErr.ErrInvalidState) {
		// moved on, or the deadline was pushed back
		return nil
	}
	return err
}

// ExpireVoting is the voting-deadline callback. It closes the round if the
// war is still voting on round. A round without submissions is extended.
func (e *Engine) ExpireVoting(ctx context.Context, warID string, round int) error {
	w, err := e.GetWar(ctx, warID)
	if err != nil {
		return err
	}
	if w.Status != db.WarVoting || w.CurrentRound != round {
		return nil
	}

	_, err = e.CloseRound(ctx, warID)
	switch {
	case errors.Is(err, svcErr.ErrNoSubmissions):
		_, err = e.ExtendRound(ctx, warID)
		if errors.Is(err, svcErr.ErrInvalidState) {
			return nil
		}
		return err
	case errors.Is(err, svcErr.ErrInvalidState):
		return nil
	}
	return err
}

// transition runs fn in a transaction, retrying when the war's version
// guard loses a race.
func (e *Engine) transition(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	return repository.WithRetry(ctx, op, maxAttempts, func() error {
		return e.db.WithContext(ctx).Transaction(fn)
	})
}

// advance moves w to status to if the war lifecycle allows it.
func advance(w *db.AuxWar, to db.AuxWarStatus) error {
	if !w.Status.CanTransition(to) {
		return svcErr.InvalidState("aux war %s cannot go from %s to %s", w.ID, w.Status, to)
	}
	w.Status = to
	return nil
}

// save writes fields under the version guard.
func (e *Engine) save(ctx context.Context, wars *repository.AuxWarRepository, w *db.AuxWar, fields map[string]any) error {
	ok, err := wars.UpdateWar(ctx, w, fields)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrVersionConflict
	}
	return nil
}

func (e *Engine) allSubmitted(ctx context.Context, wars *repository.AuxWarRepository, w *db.AuxWar) (bool, error) {
	confirmed, err := wars.CountContestants(ctx, w.ID, true)
	if err != nil {
		return false, err
	}
	submitted, err := wars.CountSubmissions(ctx, w.ID, w.CurrentRound)
	if err != nil {
		return false, err
	}
	return confirmed > 0 && submitted >= confirmed, nil
}

func (e *Engine) openVoting(ctx context.Context, wars *repository.AuxWarRepository, w *db.AuxWar, now time.Time) error {
	if err := advance(w, db.WarVoting); err != nil {
		return err
	}
	w.VotingStartedAt = &now
	return e.save(ctx, wars, w, map[string]any{
		"status":            w.Status,
		"voting_started_at": w.VotingStartedAt,
	})
}

func (e *Engine) afterVotingOpened(ctx context.Context, w *db.AuxWar) {
	e.log.Info("voting opened", "war_id", w.ID, "round", w.CurrentRound)
	e.publish(ctx, events.New(events.VotingOpened, *w.VotingStartedAt, map[string]any{
		"war_id":          w.ID,
		"round":           w.CurrentRound,
		"voting_deadline": w.VotingDeadline(),
	}))
	if e.timer != nil {
		e.timer.ScheduleVotingDeadline(w.ID, w.CurrentRound, w.VotingDeadline())
	}
}

func (e *Engine) scheduleSubmissions(w *db.AuxWar) {
	if e.timer != nil {
		e.timer.ScheduleSubmissionDeadline(w.ID, w.CurrentRound, w.SubmissionDeadline())
	}
}

// RescheduleActive re-arms the deadline of every live or voting war. Run it
// once at startup after UseTimer; deadlines already in the past fire
// immediately.
func (e *Engine) RescheduleActive(ctx context.Context) (int, error) {
	if e.timer == nil {
		return 0, nil
	}
	wars, err := repository.NewAuxWarRepository(e.db).ListActive(ctx)
	if err != nil {
		return 0, err
	}
	for i := range wars {
		w := &wars[i]
		if w.Status == db.WarVoting {
			e.timer.ScheduleVotingDeadline(w.ID, w.CurrentRound, w.VotingDeadline())
			continue
		}
		e.scheduleSubmissions(w)
	}
	e.log.Info("deadlines rescheduled", "wars", len(wars))
	return len(wars), nil
}
