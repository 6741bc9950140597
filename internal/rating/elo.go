// Package rating computes and settles Elo rating changes for finished
// two-seat sessions. Settlement is atomic per session: both seats'
// ratings, counters and audit records commit together or not at all.
package rating

import "math"

const (
	// RatingFloor is the hard lower bound on a settled rating. There is
	// no ceiling.
	RatingFloor = 400

	// K-factor tiers by total games played for the rating type.
	KProvisional = 40 // fewer than 30 games
	KDeveloping  = 32 // fewer than 100 games
	KEstablished = 24
)

// ExpectedScore is the Elo-predicted probability that a player rated ra
// scores against one rated rb: 1 / (1 + 10^((rb-ra)/400)).
func ExpectedScore(ra, rb int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(rb-ra)/400.0))
}

// KFactor selects the rating-change sensitivity from the player's total
// games played for this rating type.
func KFactor(gamesPlayed int) int {
	switch {
	case gamesPlayed < 30:
		return KProvisional
	case gamesPlayed < 100:
		return KDeveloping
	default:
		return KEstablished
	}
}

// Delta is the rounded rating change for an actual score in {0, 0.5, 1}.
func Delta(k int, actual, expected float64) int {
	return int(math.Round(float64(k) * (actual - expected)))
}

// Apply clamps the new rating to the floor.
func Apply(old, delta int) int {
	if r := old + delta; r > RatingFloor {
		return r
	}
	return RatingFloor
}
