// Package compat computes a deterministic taste-overlap snapshot between two
// listeners from their distinct artists and genres.
package compat

import (
	"context"
	"math"
	"sort"
	"strings"
)

const (
	artistWeight = 0.6
	genreWeight  = 0.4
)

// Profile is one user's distinct artists and genres.
type Profile struct {
	Artists []string
	Genres  []string
}

// Snapshot is the overlap between two profiles.
type Snapshot struct {
	Score         float64 // 0..100, one decimal
	CommonArtists []string
	CommonGenres  []string
}

// Reasons renders the snapshot as match_reasons.
func (s Snapshot) Reasons() map[string]any {
	return map[string]any{
		"common_artists": s.CommonArtists,
		"common_genres":  s.CommonGenres,
		"score":          s.Score,
	}
}

// Compare scores two profiles. Names are compared case-insensitively; the
// common lists keep a's spelling and are sorted.
func Compare(a, b Profile) Snapshot {
	ca, ja := overlap(a.Artists, b.Artists)
	cg, jg := overlap(a.Genres, b.Genres)
	score := 100 * (artistWeight*ja + genreWeight*jg)
	return Snapshot{
		Score:         math.Round(score*10) / 10,
		CommonArtists: ca,
		CommonGenres:  cg,
	}
}

// overlap returns the intersection and the Jaccard index of two name sets.
func overlap(a, b []string) ([]string, float64) {
	left := normalize(a)
	right := normalize(b)
	if len(left) == 0 && len(right) == 0 {
		return []string{}, 0
	}

	common := []string{}
	for key, name := range left {
		if _, ok := right[key]; ok {
			common = append(common, name)
		}
	}
	sort.Strings(common)

	union := len(left) + len(right) - len(common)
	return common, float64(len(common)) / float64(union)
}

func normalize(names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if _, seen := out[key]; !seen {
			out[key] = n
		}
	}
	return out
}

// ProfileSource loads a user's listening profile.
type ProfileSource interface {
	Artists(ctx context.Context, userID string) ([]string, error)
	Genres(ctx context.Context, userID string) ([]string, error)
}

// Load reads a Profile from src.
func Load(ctx context.Context, src ProfileSource, userID string) (Profile, error) {
	artists, err := src.Artists(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	genres, err := src.Genres(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Artists: artists, Genres: genres}, nil
}

// Between loads both users' profiles and compares them.
func Between(ctx context.Context, src ProfileSource, a, b string) (Snapshot, error) {
	pa, err := Load(ctx, src, a)
	if err != nil {
		return Snapshot{}, err
	}
	pb, err := Load(ctx, src, b)
	if err != nil {
		return Snapshot{}, err
	}
	return Compare(pa, pb), nil
}
