package session

import "time"

// SettingsUpdate is the subset of settings an updateSettings command
// may change at runtime (spec.md §6): thresholds, bonus, and the
// timeout-penalty knobs. playerCount/initialTime/penaltyType are
// fixed once a session exists.
type SettingsUpdate struct {
	WarningThresholds   []int64
	BonusTime           *int64
	TimeoutPenaltyLives *int
	TimeoutPenaltyDrunk *int
	TimeoutBonusTime    *int64
}

// UpdateSettings validates and applies a partial settings change.
func (s *Session) UpdateSettings(u SettingsUpdate, now time.Time) error {
	next := s.Settings
	if u.WarningThresholds != nil {
		next.WarningThresholds = u.WarningThresholds
	}
	if u.BonusTime != nil {
		next.BonusTime = *u.BonusTime
	}
	if u.TimeoutPenaltyLives != nil {
		next.TimeoutPenaltyLives = *u.TimeoutPenaltyLives
	}
	if u.TimeoutPenaltyDrunk != nil {
		next.TimeoutPenaltyDrunk = *u.TimeoutPenaltyDrunk
	}
	if u.TimeoutBonusTime != nil {
		next.TimeoutBonusTime = *u.TimeoutBonusTime
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.Settings = next
	s.touch(now)
	return nil
}
