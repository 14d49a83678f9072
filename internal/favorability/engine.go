// Package favorability derives the relationship level between a user and a
// character from the number of completed conversation turns, and detects the
// message-count milestones and first-message anniversaries worth celebrating.
//
// Everything here is pure: no I/O, no clocks. Callers pass in counts and times.
package favorability

import (
	"time"

	"companion-chat/backend/internal/models"
)

// Level is the three-tier relationship closeness indicator
type Level int

const (
	Level1 Level = 1
	Level2 Level = 2
	Level3 Level = 3
)

// Inclusive lower bounds of each level, in completed turns
const (
	Level1Threshold = 0
	Level2Threshold = 20
	Level3Threshold = 50
)

var (
	// Milestones are the exact message counts that are celebrated
	Milestones = []int{50, 100, 200, 500, 1000}
	// Anniversaries are the exact day counts since the first message that are celebrated
	Anniversaries = []int{7, 30, 100, 365}
)

// LevelFor maps a cumulative message count to a level
func LevelFor(messageCount int) Level {
	switch {
	case messageCount >= Level3Threshold:
		return Level3
	case messageCount >= Level2Threshold:
		return Level2
	default:
		return Level1
	}
}

// Recompute sets the tracker's level from its message count and reports
// whether the new level is above the level it had stored.
func Recompute(t models.FavorabilityTracker) (models.FavorabilityTracker, bool) {
	prev := Level(t.CurrentLevel)
	next := LevelFor(t.MessageCount)
	t.CurrentLevel = int(next)
	return t, next > prev
}

// Advance counts one completed turn. It must be applied once per turn;
// applying it twice for the same user message double-counts.
func Advance(t models.FavorabilityTracker) (models.FavorabilityTracker, Level, bool) {
	t.MessageCount++
	t, increased := Recompute(t)
	return t, Level(t.CurrentLevel), increased
}

// MilestoneReached fires only when messageCount equals a milestone exactly
func MilestoneReached(messageCount int) (int, bool) {
	return exactMatch(messageCount, Milestones)
}

// AnniversaryReached fires only when days equals an anniversary exactly
func AnniversaryReached(daysSinceFirstMessage int) (int, bool) {
	return exactMatch(daysSinceFirstMessage, Anniversaries)
}

func exactMatch(v int, set []int) (int, bool) {
	for _, m := range set {
		if v == m {
			return m, true
		}
	}
	return 0, false
}

// DaysSince is the elapsed time between first and now in whole UTC days,
// truncated. It is not a calendar-date difference: 23h59m is still 0 days.
func DaysSince(first, now time.Time) int {
	elapsed := now.UTC().Sub(first.UTC())
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / (24 * time.Hour))
}

// Progress describes where a message count sits on the level ladder
type Progress struct {
	Level           Level `json:"current_level"`
	MessageCount    int   `json:"message_count"`
	Level1Threshold int   `json:"level_1_threshold"`
	Level2Threshold int   `json:"level_2_threshold"`
	Level3Threshold int   `json:"level_3_threshold"`
	// ToNextLevel is zero at the top level
	ToNextLevel   int `json:"messages_to_next_level"`
	NextMilestone int `json:"next_milestone,omitempty"`
}

// ProgressFor builds the progress view for a message count
func ProgressFor(messageCount int) Progress {
	p := Progress{
		Level:           LevelFor(messageCount),
		MessageCount:    messageCount,
		Level1Threshold: Level1Threshold,
		Level2Threshold: Level2Threshold,
		Level3Threshold: Level3Threshold,
	}

	switch p.Level {
	case Level1:
		p.ToNextLevel = Level2Threshold - max(messageCount, 0)
	case Level2:
		p.ToNextLevel = Level3Threshold - messageCount
	}

	for _, m := range Milestones {
		if m > messageCount {
			p.NextMilestone = m
			break
		}
	}
	return p
}
