// Package decider chooses win or lose for a newly entered student.
//
// The decider is never consulted twice for the same (contest, student):
// callers invoke it only while creating the award record.
package decider

import (
	"fmt"
	"math"
	"time"

	"github.com/kkkkikiki/contest/internal/model"
)

// Decider decides outcomes according to each contest's policy
type Decider struct {
	random RandomSource
}

// New creates a decider drawing from random; nil uses crypto/rand
func New(random RandomSource) *Decider {
	if random == nil {
		random = CryptoSource{}
	}
	return &Decider{random: random}
}

// Decide reports whether the entry wins given the contest's remaining inventory.
// remaining is advisory; the ledger reservation is authoritative.
func (d *Decider) Decide(contest *model.Contest, remaining int, now time.Time) (bool, error) {
	switch contest.Policy {
	case model.PolicyFirstCome:
		return remaining > 0, nil
	case model.PolicyNoPrize:
		return false, nil
	case model.PolicyPacedDraw:
		return d.pacedDraw(contest, remaining, now)
	default:
		return false, fmt.Errorf("unknown contest policy %q", contest.Policy)
	}
}

func (d *Decider) pacedDraw(contest *model.Contest, remaining int, now time.Time) (bool, error) {
	if remaining <= 0 {
		return false, nil
	}
	if contest.WinProbability == nil {
		return false, fmt.Errorf("contest %d has no win probability", contest.ID)
	}

	issued := contest.Capacity - remaining
	if issued >= Allowance(contest, now) {
		return false, nil
	}

	roll, err := d.random.Float64()
	if err != nil {
		return false, err
	}
	return roll < *contest.WinProbability, nil
}

// Allowance is how many codes may have been issued by now. Capacity is released
// linearly over the contest window, rounded up, with at least one code open
// from the start.
func Allowance(contest *model.Contest, now time.Time) int {
	if contest.Capacity <= 0 {
		return 0
	}
	allowed := int(math.Ceil(float64(contest.Capacity) * contest.ElapsedFraction(now)))
	switch {
	case allowed < 1:
		return 1
	case allowed > contest.Capacity:
		return contest.Capacity
	}
	return allowed
}
