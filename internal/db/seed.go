package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedPassword is the plaintext password of every seeded user.
const SeedPassword = "password"

var (
	seedArtists = []struct{ name, genre string }{
		{"Burial", "electronic"},
		{"Four Tet", "electronic"},
		{"Radiohead", "rock"},
		{"Portishead", "trip-hop"},
		{"Massive Attack", "trip-hop"},
		{"Kendrick Lamar", "hip-hop"},
		{"Little Simz", "hip-hop"},
		{"Alice Coltrane", "jazz"},
		{"Kamasi Washington", "jazz"},
		{"Björk", "art-pop"},
		{"Caribou", "electronic"},
		{"Nina Simone", "soul"},
	}
	seedCities = []string{"London", "Berlin", "Lisbon", "Manchester", "Amsterdam"}
)

// SeedTestData resets the database and populates it with demo data.
//
// Behavior:
//  1. Clears every table, children first.
//  2. Creates 20 users sharing one bcrypt hash of SeedPassword.
//  3. Gives each user 15 plays over a handful of artists, so compatibility
//     snapshots have something to overlap.
//  4. Proposes ~30 weekly matches (canonical pair order) with a mix of
//     pending, accepted and rejected outcomes.
//  5. Adds a few friendships and one aux war waiting to start.
//
// The same seed always produces the same rows, apart from ids.
func SeedTestData(db *gorm.DB, seed int64) error {
	r := rand.New(rand.NewSource(seed))
	now := time.Now().UTC().Truncate(time.Second)

	// --- Fresh start ---
	if err := clearAll(db); err != nil {
		return err
	}
	log.Println("Cleared existing data")

	// --- Users ---
	hash, err := bcrypt.GenerateFromPassword([]byte(SeedPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	users := make([]User, 20)
	for i := range users {
		last := now.Add(-time.Duration(r.Intn(500)) * time.Hour)
		users[i] = User{
			Username:      fmt.Sprintf("user%d", i+1),
			Email:         fmt.Sprintf("user%d@example.com", i+1),
			PasswordHash:  string(hash),
			Active:        true,
			Verified:      i%2 == 0,
			DisplayName:   fmt.Sprintf("User %d", i+1),
			City:          seedCities[r.Intn(len(seedCities))],
			DatingEnabled: i%3 != 0,
			LastActive:    &last,
		}
		users[i].CreatedAt = now.Add(-time.Duration(20-i) * 24 * time.Hour)
	}
	if err := db.Create(&users).Error; err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}
	log.Printf("Seeded %d users.", len(users))

	// --- Listening history ---
	var plays []ListeningHistory
	for _, u := range users {
		// each user favours a window of four artists
		start := r.Intn(len(seedArtists))
		for j := 0; j < 15; j++ {
			a := seedArtists[(start+r.Intn(4))%len(seedArtists)]
			plays = append(plays, ListeningHistory{
				UserID:     u.ID,
				Platform:   "spotify",
				SongID:     fmt.Sprintf("track-%s-%d", a.name, j%5),
				SongTitle:  fmt.Sprintf("%s track %d", a.name, j%5),
				ArtistName: a.name,
				Genre:      a.genre,
				PlayedAt:   now.Add(-time.Duration(r.Intn(30*24)) * time.Hour),
			})
		}
	}
	if err := db.CreateInBatches(&plays, 100).Error; err != nil {
		return fmt.Errorf("failed to seed listening history: %w", err)
	}
	log.Printf("Seeded %d plays.", len(plays))

	// --- Matches ---
	seen := map[[2]string]bool{}
	matches := 0
	for matches < 30 {
		a, b := users[r.Intn(len(users))].ID, users[r.Intn(len(users))].ID
		if a == b {
			continue
		}
		if b < a {
			a, b = b, a
		}
		if seen[[2]string{a, b}] {
			continue
		}
		seen[[2]string{a, b}] = true

		m := Match{
			User1ID:            a,
			User2ID:            b,
			CompatibilityScore: float64(r.Intn(1000)) / 10,
			MatchType:          MatchTypeWeekly,
			Status:             MatchPending,
			Version:            1,
		}
		m.CreatedAt = now.Add(-time.Duration(matches) * time.Hour)

		swiped := m.CreatedAt.Add(30 * time.Minute)
		switch matches % 3 {
		case 0: // both liked
			m.User1Action, m.User2Action = ActionLiked, ActionSuperLiked
			m.User1SwipedAt, m.User2SwipedAt = &swiped, &swiped
			m.Status, m.MatchedAt = MatchAccepted, &swiped
			m.Version = 3
		case 1: // one side liked, waiting on the other
			m.User1Action, m.User1SwipedAt = ActionLiked, &swiped
			m.Version = 2
		}
		if matches%7 == 6 {
			m.User1Action, m.User2Action = ActionLiked, ActionPassed
			m.User1SwipedAt, m.User2SwipedAt = &swiped, &swiped
			m.Status, m.MatchedAt = MatchRejected, nil
			m.Version = 3
		}

		if err := db.Create(&m).Error; err != nil {
			return fmt.Errorf("failed to seed match: %w", err)
		}
		matches++
	}
	log.Printf("Seeded %d matches.", matches)

	// --- Friendships (user1 with the next three users, mutual) ---
	for i := 1; i <= 3; i++ {
		for _, edge := range [][2]string{{users[0].ID, users[i].ID}, {users[i].ID, users[0].ID}} {
			f := Friendship{UserID: edge[0], FriendID: edge[1], Status: FriendshipAccepted}
			if err := db.Create(&f).Error; err != nil {
				return fmt.Errorf("failed to seed friendship: %w", err)
			}
		}
	}

	// --- One aux war ready to start ---
	war := AuxWar{
		HostID:              users[0].ID,
		Title:               "Friday Night Aux",
		Slug:                "friday-night-aux-seed",
		Theme:               "late night electronic",
		MaxContestants:      8,
		Rounds:              3,
		CurrentRound:        1,
		SubmissionTimeLimit: 120,
		VotingTimeLimit:     60,
		Status:              WarCreated,
		Version:             1,
	}
	if err := db.Create(&war).Error; err != nil {
		return fmt.Errorf("failed to seed aux war: %w", err)
	}
	for i := 1; i <= 4; i++ {
		c := AuxWarContestant{AuxWarID: war.ID, UserID: users[i].ID, Confirmed: i <= 3}
		if err := db.Create(&c).Error; err != nil {
			return fmt.Errorf("failed to seed contestant: %w", err)
		}
	}
	log.Println("Seeded 1 aux war.")

	return nil
}

// clearAll empties every seeded table, children before parents.
func clearAll(db *gorm.DB) error {
	tables := []string{
		"aux_war_votes",
		"aux_war_submissions",
		"aux_war_contestants",
		"aux_wars",
		"matches",
		"friendships",
		"post_reactions",
		"social_posts",
		"messages",
		"user_badges",
		"badges",
		"listening_history",
		"users",
	}
	for _, t := range tables {
		if err := db.Exec("DELETE FROM " + t).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", t, err)
		}
	}
	return nil
}
