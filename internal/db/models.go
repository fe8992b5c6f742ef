package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Base carries the columns every table shares. IDs are UUID strings
// assigned on insert when the caller leaves them empty.
type Base struct {
	ID        string    `gorm:"primaryKey;size:36"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// User table
type User struct {
	Base
	Username     string `gorm:"uniqueIndex;size:50;not null"`
	Email        string `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Active       bool   `gorm:"default:true"`
	Verified     bool   `gorm:"default:false"`

	DisplayName string `gorm:"size:100"`
	Bio         string `gorm:"type:text"`
	AvatarURL   string `gorm:"size:500"`
	City        string `gorm:"size:100"`
	Country     string `gorm:"size:100"`

	DatingEnabled    bool `gorm:"default:false"`
	MusicPreferences datatypes.JSONMap

	SpotifyConnected    bool `gorm:"default:false"`
	AppleMusicConnected bool `gorm:"default:false"`
	SoundcloudConnected bool `gorm:"default:false"`

	TotalListeningMinutes int `gorm:"default:0"`
	TotalSongsPlayed      int `gorm:"default:0"`
	StreakDays            int `gorm:"default:0"`
	LastActive            *time.Time
}

// ListeningHistory is one played song. Feeds compatibility snapshots.
//
// Indexes:
//   - idx_user_played_at(user_id, played_at)
//   - idx_user_artist(user_id, artist_name)
type ListeningHistory struct {
	Base
	UserID     string    `gorm:"size:36;not null;index:idx_user_played_at,priority:1;index:idx_user_artist,priority:1"`
	Platform   string    `gorm:"size:50;not null"`
	SongID     string    `gorm:"size:255;not null"`
	SongTitle  string    `gorm:"size:500;not null"`
	ArtistName string    `gorm:"size:255;not null;index:idx_user_artist,priority:2"`
	Genre      string    `gorm:"size:100"`
	PlayedAt   time.Time `gorm:"index:idx_user_played_at,priority:2"`
	PlayCount  int       `gorm:"default:1"`
}

func (ListeningHistory) TableName() string { return "listening_history" }

// Match is a compatibility pairing between two users.
//
// The pair is stored canonically (User1ID < User2ID), so the unique index
// idx_match_pair(user1_id, user2_id) holds for the unordered pair.
//
// Fields:
//   - User1Action / User2Action: empty until that side swipes.
//   - MatchedAt: set only when both actions are positive.
//   - Version: bumped on every swipe, used as a compare-and-swap guard.
type Match struct {
	Base
	User1ID string `gorm:"size:36;not null;uniqueIndex:idx_match_pair,priority:1"`
	User2ID string `gorm:"size:36;not null;uniqueIndex:idx_match_pair,priority:2;index"`

	CompatibilityScore float64     `gorm:"not null;index:idx_match_score"`
	MatchType          MatchType   `gorm:"size:50"`
	Status             MatchStatus `gorm:"size:20;not null;default:'pending';index:idx_match_status"`

	User1Action    SwipeAction `gorm:"size:20"`
	User2Action    SwipeAction `gorm:"size:20"`
	User1SwipedAt  *time.Time
	User2SwipedAt  *time.Time
	MatchedAt      *time.Time
	ConversationOn bool `gorm:"column:conversation_started;default:false"`
	MatchReasons   datatypes.JSONMap

	Version int64 `gorm:"not null;default:1"`
}

// Side returns 1 or 2 for a participant, 0 otherwise.
func (m *Match) Side(userID string) int {
	switch userID {
	case m.User1ID:
		return 1
	case m.User2ID:
		return 2
	}
	return 0
}

// Action returns the recorded action for side 1 or 2.
func (m *Match) Action(side int) SwipeAction {
	if side == 1 {
		return m.User1Action
	}
	return m.User2Action
}

// Friendship is a directed edge user -> friend. A mutual friendship is two
// accepted rows.
type Friendship struct {
	Base
	UserID   string           `gorm:"size:36;not null;uniqueIndex:idx_friend_pair,priority:1"`
	FriendID string           `gorm:"size:36;not null;uniqueIndex:idx_friend_pair,priority:2;index"`
	Status   FriendshipStatus `gorm:"size:20;not null;default:'pending';index:idx_friendship_status"`

	CompatibilityScore float64
	CommonArtists      datatypes.JSONSlice[string]
	CommonGenres       datatypes.JSONSlice[string]
}

// AuxWar is a hosted, round-based song battle.
//
// Version is bumped on every status/round change so two concurrent
// closers cannot both advance a round.
type AuxWar struct {
	Base
	HostID      string `gorm:"size:36;not null;index"`
	Title       string `gorm:"size:200;not null"`
	Slug        string `gorm:"size:255;uniqueIndex"`
	Description string `gorm:"type:text"`
	Theme       string `gorm:"size:200"`

	MaxContestants      int `gorm:"not null;default:8"`
	Rounds              int `gorm:"not null;default:1"`
	CurrentRound        int `gorm:"not null;default:1"`
	SubmissionTimeLimit int `gorm:"not null;default:120"` // seconds
	VotingTimeLimit     int `gorm:"not null;default:60"`  // seconds

	Status          AuxWarStatus `gorm:"size:20;not null;default:'created';index"`
	StartedAt       *time.Time
	EndedAt         *time.Time
	RoundStartedAt  *time.Time
	VotingStartedAt *time.Time

	WinnerID   *string `gorm:"size:36"`
	TotalVotes int     `gorm:"not null;default:0"`

	Version int64 `gorm:"not null;default:1"`
}

// SubmissionDeadline is when the current round stops taking songs.
func (w *AuxWar) SubmissionDeadline() time.Time {
	if w.RoundStartedAt == nil {
		return time.Time{}
	}
	return w.RoundStartedAt.Add(time.Duration(w.SubmissionTimeLimit) * time.Second)
}

// VotingDeadline is when the current voting phase is due to close.
func (w *AuxWar) VotingDeadline() time.Time {
	if w.VotingStartedAt == nil {
		return time.Time{}
	}
	return w.VotingStartedAt.Add(time.Duration(w.VotingTimeLimit) * time.Second)
}

// AuxWarContestant is a user entered in a war. Only confirmed contestants
// count towards the start quorum and may submit.
type AuxWarContestant struct {
	Base
	AuxWarID  string `gorm:"size:36;not null;uniqueIndex:idx_war_contestant,priority:1"`
	UserID    string `gorm:"size:36;not null;uniqueIndex:idx_war_contestant,priority:2"`
	Confirmed bool   `gorm:"not null;default:false"`
}

// AuxWarSubmission is one contestant's song for one round.
type AuxWarSubmission struct {
	Base
	AuxWarID     string `gorm:"size:36;not null;uniqueIndex:idx_war_contestant_round,priority:1"`
	ContestantID string `gorm:"size:36;not null;uniqueIndex:idx_war_contestant_round,priority:2"`
	RoundNumber  int    `gorm:"not null;default:1;uniqueIndex:idx_war_contestant_round,priority:3"`

	SongID      string `gorm:"size:255;not null"`
	SongTitle   string `gorm:"size:500;not null"`
	ArtistName  string `gorm:"size:500;not null"`
	AlbumArtURL string `gorm:"size:500"`
	PreviewURL  string `gorm:"size:500"`

	VoteCount   int  `gorm:"not null;default:0"`
	RoundWinner bool `gorm:"not null;default:false"`
}

// AuxWarVote is one voter's pick for one round.
type AuxWarVote struct {
	Base
	AuxWarID     string `gorm:"size:36;not null;uniqueIndex:idx_war_voter_round,priority:1"`
	VoterID      string `gorm:"size:36;not null;uniqueIndex:idx_war_voter_round,priority:2"`
	RoundNumber  int    `gorm:"not null;default:1;uniqueIndex:idx_war_voter_round,priority:3"`
	SubmissionID string `gorm:"size:36;not null;index"`
}

// Message is a direct message. Deleted messages are only flagged.
type Message struct {
	Base
	SenderID    string `gorm:"size:36;not null;index:idx_message_conversation,priority:1"`
	RecipientID string `gorm:"size:36;not null;index:idx_message_conversation,priority:2"`
	Content     string `gorm:"type:text;not null"`
	MessageType string `gorm:"size:20;default:'text'"`
	Metadata    datatypes.JSONMap
	IsRead      bool `gorm:"default:false"`
	ReadAt      *time.Time
	IsDeleted   bool `gorm:"default:false"`
}

type SocialPost struct {
	Base
	UserID       string `gorm:"size:36;not null;index"`
	PostType     string `gorm:"size:50;not null"`
	Content      string `gorm:"type:text"`
	Metadata     datatypes.JSONMap
	LikeCount    int    `gorm:"default:0"`
	CommentCount int    `gorm:"default:0"`
	ShareCount   int    `gorm:"default:0"`
	Visibility   string `gorm:"size:20;default:'friends'"`
}

type PostReaction struct {
	Base
	PostID       string `gorm:"size:36;not null;uniqueIndex:idx_post_user,priority:1"`
	UserID       string `gorm:"size:36;not null;uniqueIndex:idx_post_user,priority:2"`
	ReactionType string `gorm:"size:50;not null"`
}

type Badge struct {
	Base
	Name             string `gorm:"size:100;uniqueIndex;not null"`
	Description      string `gorm:"type:text"`
	IconURL          string `gorm:"size:500"`
	Category         string `gorm:"size:50"`
	Tier             string `gorm:"size:20"`
	Points           int    `gorm:"default:0"`
	RequirementType  string `gorm:"size:50"`
	RequirementValue int
}

type UserBadge struct {
	Base
	UserID   string `gorm:"size:36;not null;uniqueIndex:idx_user_badge,priority:1"`
	BadgeID  string `gorm:"size:36;not null;uniqueIndex:idx_user_badge,priority:2"`
	EarnedAt time.Time
}

// AllModels is the migration set, in dependency order.
func AllModels() []any {
	return []any{
		&User{},
		&ListeningHistory{},
		&Badge{},
		&UserBadge{},
		&Friendship{},
		&Match{},
		&AuxWar{},
		&AuxWarContestant{},
		&AuxWarSubmission{},
		&AuxWarVote{},
		&Message{},
		&SocialPost{},
		&PostReaction{},
	}
}
