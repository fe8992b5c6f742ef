package db

// MatchStatus is the lifecycle of a Match.
type MatchStatus string

const (
	MatchPending  MatchStatus = "pending"
	MatchAccepted MatchStatus = "accepted"
	MatchRejected MatchStatus = "rejected"
)

var matchTransitions = map[MatchStatus][]MatchStatus{
	MatchPending:  {MatchAccepted, MatchRejected},
	MatchAccepted: nil,
	MatchRejected: nil,
}

func (s MatchStatus) Valid() bool {
	_, ok := matchTransitions[s]
	return ok
}

// CanTransition reports whether to is reachable from s in one step.
func (s MatchStatus) CanTransition(to MatchStatus) bool {
	return contains(matchTransitions[s], to)
}

// Final is true for statuses with no outgoing transitions.
func (s MatchStatus) Final() bool {
	return len(matchTransitions[s]) == 0
}

// SwipeAction is one side's decision on a Match.
type SwipeAction string

const (
	ActionLiked      SwipeAction = "liked"
	ActionPassed     SwipeAction = "passed"
	ActionSuperLiked SwipeAction = "super_liked"
)

func (a SwipeAction) Valid() bool {
	switch a {
	case ActionLiked, ActionPassed, ActionSuperLiked:
		return true
	}
	return false
}

// Positive is true for liked and super_liked.
func (a SwipeAction) Positive() bool {
	return a == ActionLiked || a == ActionSuperLiked
}

// MatchType records how a match candidate was produced.
type MatchType string

const (
	MatchTypeWeekly    MatchType = "weekly"
	MatchTypeProximity MatchType = "proximity"
	MatchTypeManual    MatchType = "manual"
)

func (t MatchType) Valid() bool {
	switch t {
	case MatchTypeWeekly, MatchTypeProximity, MatchTypeManual:
		return true
	}
	return false
}

// AuxWarStatus is the lifecycle of an AuxWar.
//
//	created -> live -> voting -> live (next round)
//	                          -> completed (last round)
//
// voting -> live on the same round is also allowed (round extension).
type AuxWarStatus string

const (
	WarCreated   AuxWarStatus = "created"
	WarLive      AuxWarStatus = "live"
	WarVoting    AuxWarStatus = "voting"
	WarCompleted AuxWarStatus = "completed"
)

var warTransitions = map[AuxWarStatus][]AuxWarStatus{
	WarCreated:   {WarLive},
	WarLive:      {WarVoting},
	WarVoting:    {WarLive, WarCompleted},
	WarCompleted: nil,
}

func (s AuxWarStatus) Valid() bool {
	_, ok := warTransitions[s]
	return ok
}

func (s AuxWarStatus) CanTransition(to AuxWarStatus) bool {
	return contains(warTransitions[s], to)
}

// FriendshipStatus is the state of a directed user -> friend edge.
type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipBlocked  FriendshipStatus = "blocked"
)

var friendshipTransitions = map[FriendshipStatus][]FriendshipStatus{
	FriendshipPending:  {FriendshipAccepted, FriendshipBlocked},
	FriendshipAccepted: {FriendshipBlocked},
	FriendshipBlocked:  nil,
}

func (s FriendshipStatus) Valid() bool {
	_, ok := friendshipTransitions[s]
	return ok
}

func (s FriendshipStatus) CanTransition(to FriendshipStatus) bool {
	return contains(friendshipTransitions[s], to)
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
