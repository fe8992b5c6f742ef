// Package auxwar runs Aux Wars: hosted song battles where confirmed
// contestants submit one song per round and everyone else votes.
//
//	created -> live -> voting -> live (next round)
//	                          -> completed (after the last round)
//
// Every transition happens inside one transaction guarded by a row lock
// and the war's version column. Events are published after commit and
// round deadlines are (re)scheduled through a RoundTimer.
package auxwar

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/oggyb/soundmatch/internal/app"
	"github.com/oggyb/soundmatch/internal/config"
	"github.com/oggyb/soundmatch/internal/db"
	svcErr "github.com/oggyb/soundmatch/internal/errors"
	"github.com/oggyb/soundmatch/internal/events"
	"github.com/oggyb/soundmatch/internal/repository"
)

const maxAttempts = 3

// TieBreak decides the leader among submissions with equal votes.
type TieBreak string

const (
	// TieEarliest prefers the submission made first.
	TieEarliest TieBreak = "earliest"
	// TieLatest prefers the submission made last.
	TieLatest TieBreak = "latest"
)

func (t TieBreak) Valid() bool {
	return t == TieEarliest || t == TieLatest
}

// Settings are the defaults applied to new wars plus the tie-break policy.
type Settings struct {
	MaxContestants      int
	Rounds              int
	SubmissionTimeLimit time.Duration
	VotingTimeLimit     time.Duration
	TieBreak            TieBreak
}

// SettingsFromConfig reads the aux war section of cfg. An unknown tie-break
// falls back to earliest.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := Settings{
		MaxContestants:      cfg.AuxWar.MaxContestants,
		Rounds:              cfg.AuxWar.Rounds,
		SubmissionTimeLimit: cfg.AuxWar.SubmissionTimeLimit,
		VotingTimeLimit:     cfg.AuxWar.VotingTimeLimit,
		TieBreak:            TieBreak(strings.ToLower(cfg.AuxWar.TieBreak)),
	}
	if !s.TieBreak.Valid() {
		s.TieBreak = TieEarliest
	}
	return s
}

// RoundTimer fires the engine's Expire* entry points when a phase deadline
// passes. Scheduling for a war replaces any earlier schedule for that war.
type RoundTimer interface {
	ScheduleSubmissionDeadline(warID string, round int, at time.Time)
	ScheduleVotingDeadline(warID string, round int, at time.Time)
	Cancel(warID string)
}

type Engine struct {
	db       *gorm.DB
	sink     events.Sink
	clock    clockwork.Clock
	log      *slog.Logger
	settings Settings
	timer    RoundTimer
}

// NewEngine builds an Engine from AppContext. Without UseTimer, deadlines
// only take effect through explicit OpenVoting/CloseRound calls.
func NewEngine(appCtx *app.AppContext) *Engine {
	clock := appCtx.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		db:       appCtx.DB,
		sink:     events.OrNop(appCtx.Events),
		clock:    clock,
		log:      appCtx.Logger.With("component", "auxwar_engine"),
		settings: SettingsFromConfig(appCtx.Config),
	}
}

// UseTimer wires the deadline scheduler. The scheduler in turn calls back
// into the engine, so it is attached after both exist.
func (e *Engine) UseTimer(t RoundTimer) {
	e.timer = t
}

// WarInput describes a new war. Zero values take the engine defaults.
type WarInput struct {
	Title               string
	Description         string
	Theme               string
	MaxContestants      int
	Rounds              int
	SubmissionTimeLimit time.Duration
	VotingTimeLimit     time.Duration
}

// Song is the track a contestant submits.
type Song struct {
	ID          string
	Title       string
	Artist      string
	AlbumArtURL string
	PreviewURL  string
}

// CreateWar creates a war in the created state hosted by hostID.
//
// Example:
//
//	engine.CreateWar(ctx, "host-id", auxwar.WarInput{Title: "Friday Night", Rounds: 3})
func (e *Engine) CreateWar(ctx context.Context, hostID string, in WarInput) (*db.AuxWar, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, svcErr.New(svcErr.CodeInvalidArgument, "title is required")
	}
	if in.MaxContestants == 0 {
		in.MaxContestants = e.settings.MaxContestants
	}
	if in.Rounds == 0 {
		in.Rounds = e.settings.Rounds
	}
	if in.SubmissionTimeLimit == 0 {
		in.SubmissionTimeLimit = e.settings.SubmissionTimeLimit
	}
	if in.VotingTimeLimit == 0 {
		in.VotingTimeLimit = e.settings.VotingTimeLimit
	}
	switch {
	case in.MaxContestants < 2:
		return nil, svcErr.New(svcErr.CodeInvalidArgument, "max_contestants must be at least 2")
	case in.Rounds < 1:
		return nil, svcErr.New(svcErr.CodeInvalidArgument, "rounds must be at least 1")
	case in.SubmissionTimeLimit < time.Second || in.VotingTimeLimit < time.Second:
		return nil, svcErr.New(svcErr.CodeInvalidArgument, "time limits must be at least one second")
	}

	id := uuid.NewString()
	w := &db.AuxWar{
		HostID:              hostID,
		Title:               in.Title,
		Slug:                slug.Make(in.Title) + "-" + id[:8],
		Description:         in.Description,
		Theme:               in.Theme,
		MaxContestants:      in.MaxContestants,
		Rounds:              in.Rounds,
		CurrentRound:        1,
		SubmissionTimeLimit: int(in.SubmissionTimeLimit / time.Second),
		VotingTimeLimit:     int(in.VotingTimeLimit / time.Second),
		Status:              db.WarCreated,
		Version:             1,
	}
	w.ID = id
	w.CreatedAt = e.now()

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewUserRepository(tx).RequireAll(ctx, hostID); err != nil {
			return err
		}
		return repository.NewAuxWarRepository(tx).CreateWar(ctx, w)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("aux war created", "war_id", w.ID, "host_id", hostID, "rounds", w.Rounds)
	return w, nil
}

// JoinWar enters userID as a confirmed contestant. An invited contestant
// joining confirms the existing invitation.
//
// Behavior:
//   - Only wars that have not started accept contestants (INVALID_STATE).
//   - Joining twice is DUPLICATE_CONTESTANT.
//   - A full war (max_contestants confirmed) is INVALID_STATE.
func (e *Engine) JoinWar(ctx context.Context, warID, userID string) (*db.AuxWarContestant, error) {
	var result *db.AuxWarContestant
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wars := repository.NewAuxWarRepository(tx)
		w, err := wars.FindWarForUpdate(ctx, warID)
		if err != nil {
			return err
		}
		if w.Status != db.WarCreated {
			return svcErr.InvalidState("aux war %s is %s", warID, w.Status)
		}
		if err := repository.NewUserRepository(tx).RequireAll(ctx, userID); err != nil {
			return err
		}

		existing, err := wars.FindContestant(ctx, warID, userID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Confirmed {
			return svcErr.New(svcErr.CodeDuplicateContestant, "user %s already joined aux war %s", userID, warID)
		}

		confirmed, err := wars.CountContestants(ctx, warID, true)
		if err != nil {
			return err
		}
		if confirmed >= int64(w.MaxContestants) {
			return svcErr.InvalidState("aux war %s is full", warID)
		}

		if existing != nil {
			if err := wars.ConfirmContestant(ctx, existing.ID); err != nil {
				return err
			}
			existing.Confirmed = true
			result = existing
			return nil
		}

		c := &db.AuxWarContestant{AuxWarID: warID, UserID: userID, Confirmed: true}
		c.CreatedAt = e.now()
		if err := wars.AddContestant(ctx, c); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("contestant joined", "war_id", warID, "user_id", userID)
	return result, nil
}

// InviteContestant adds an unconfirmed contestant on behalf of the host.
// The invitee counts once they JoinWar.
func (e *Engine) InviteContestant(ctx context.Context, warID, hostID, userID string) (*db.AuxWarContestant, error) {
	var result *db.AuxWarContestant
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wars := repository.NewAuxWarRepository(tx)
		w, err := wars.FindWarForUpdate(ctx, warID)
		if err != nil {
			return err
		}
		if w.HostID != hostID {
			return svcErr.New(svcErr.CodeNotParticipant, "only the host can invite to aux war %s", warID)
		}
		if w.Status != db.WarCreated {
			return svcErr.InvalidState("aux war %s is %s", warID, w.Status)
		}
		if err := repository.NewUserRepository(tx).RequireAll(ctx, userID); err != nil {
			return err
		}

		total, err := wars.CountContestants(ctx, warID, false)
		if err != nil {
			return err
		}
		if total >= int64(w.MaxContestants) {
			return svcErr.InvalidState("aux war %s is full", warID)
		}

		c := &db.AuxWarContestant{AuxWarID: warID, UserID: userID}
		c.CreatedAt = e.now()
		if err := wars.AddContestant(ctx, c); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) GetWar(ctx context.Context, warID string) (*db.AuxWar, error) {
	return repository.NewAuxWarRepository(e.db).FindWar(ctx, warID)
}

// ListWars pages through wars, newest first. An empty status lists all.
func (e *Engine) ListWars(ctx context.Context, status db.AuxWarStatus, paginationToken *string, limit int) ([]db.AuxWar, *string, error) {
	if status != "" && !status.Valid() {
		return nil, nil, svcErr.New(svcErr.CodeInvalidArgument, "unknown aux war status %q", status)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return repository.NewAuxWarRepository(e.db).ListWars(ctx, status, paginationToken, limit)
}

func (e *Engine) ListContestants(ctx context.Context, warID string) ([]db.AuxWarContestant, error) {
	wars := repository.NewAuxWarRepository(e.db)
	if _, err := wars.FindWar(ctx, warID); err != nil {
		return nil, err
	}
	return wars.ListContestants(ctx, warID)
}

// ListSubmissions returns a round's submissions in submission order.
// round <= 0 means the war's current round.
func (e *Engine) ListSubmissions(ctx context.Context, warID string, round int) ([]db.AuxWarSubmission, error) {
	wars := repository.NewAuxWarRepository(e.db)
	w, err := wars.FindWar(ctx, warID)
	if err != nil {
		return nil, err
	}
	if round <= 0 {
		round = w.CurrentRound
	}
	return wars.ListSubmissions(ctx, warID, round)
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.sink.Publish(ctx, ev); err != nil {
		e.log.Error("event publish failed", "type", ev.Type, "err", err)
	}
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}
