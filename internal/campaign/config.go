// Package campaign holds the campaign-mode extension data: the
// immutable per-preset config, the mutable campaign state a session
// carries alongside its core player records, and the preset registry
// functions are re-attached from on restore (functions are never
// persisted — see State.Config.ScoringFormula).
package campaign

// WinCondition selects how a campaign determines its overall winner.
type WinCondition string

const (
	WinBestOf     WinCondition = "best_of"
	WinFirstTo    WinCondition = "first_to"
	WinTotalTime  WinCondition = "total_time"
	WinTotalPoints WinCondition = "total_points"
)

// Status is the campaign-level (cross-round) lifecycle status.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// ScoringFormula computes a player's total points from the campaign
// state. It is a pure function of (state, playerID) — no side
// effects — so it can be called freely during recalculation.
type ScoringFormula func(s *State, playerID int) int

// Config is the immutable configuration of one campaign preset.
type Config struct {
	Rounds               int
	TimePerRound         int64 // ms
	TimeDecreasePerRound int64 // ms
	MinTime              int64 // ms
	StartingLife         int   // 0 means "use the mode default"
	BonusTime            int64 // ms; per-turn-switch bonus, 0 means none
	WinCondition         WinCondition
	WinTarget            int
	BattleMultipliers    map[int]float64 // currentRound -> multiplier
	PlayerMultipliers    map[int]float64 // uniqueTargetCount -> multiplier
	LevelThresholds      []int           // ascending
	ScoringFormula       ScoringFormula  `json:"-"`
}

// RoundTimeFor returns the per-player clock for the given round
// (1-indexed), applying the per-round decrease and floor.
func (c Config) RoundTimeFor(round int) int64 {
	t := c.TimePerRound - c.TimeDecreasePerRound*int64(round-1)
	if t < c.MinTime {
		t = c.MinTime
	}
	return t
}
