package session

import "github.com/mtgturn/turnserver/internal/apperr"

// Settings holds the validated, recognized session options from
// spec.md §3. Unknown keys in an inbound updateSettings/create payload
// are ignored, not errors — forward compatibility for future clients.
type Settings struct {
	PlayerCount int `json:"playerCount"`

	InitialTime int64 `json:"initialTime"` // ms

	WarningThresholds []int64 `json:"warningThresholds"`

	PenaltyType          PenaltyType `json:"penaltyType"`
	PenaltyTimeDeduction int64       `json:"penaltyTimeDeduction"`

	BonusTime int64 `json:"bonusTime"`

	TimeoutGracePeriod   int64 `json:"timeoutGracePeriod"`
	TimeoutPenaltyLives  int   `json:"timeoutPenaltyLives"`
	TimeoutPenaltyDrunk  int   `json:"timeoutPenaltyDrunk"`
	TimeoutBonusTime     int64 `json:"timeoutBonusTime"`

	AudioEnabled bool `json:"audioEnabled"`
}

// DefaultSettings returns the baseline settings a `create` command can
// build on top of.
func DefaultSettings() Settings {
	return Settings{
		PlayerCount:          4,
		InitialTime:          20 * 60 * 1000,
		WarningThresholds:    []int64{5 * 60 * 1000, 60 * 1000},
		PenaltyType:          PenaltyWarning,
		PenaltyTimeDeduction: 0,
		BonusTime:            0,
		TimeoutGracePeriod:   30 * 1000,
		TimeoutPenaltyLives:  1,
		TimeoutPenaltyDrunk:  1,
		TimeoutBonusTime:     0,
		AudioEnabled:         true,
	}
}

// Validate checks the recognized settings fields per spec.md §6
// validation rules. It mutates nothing; callers apply the (already
// clamped/sanitized) values themselves.
func (s Settings) Validate() error {
	if s.PlayerCount < 2 || s.PlayerCount > 8 {
		return apperr.Validation("playerCount must be between 2 and 8")
	}
	if s.InitialTime <= 0 || s.InitialTime > MaxTimeMS {
		return apperr.Validation("initialTime must be a positive duration under 24h")
	}
	if len(s.WarningThresholds) == 0 {
		return apperr.Validation("warningThresholds must not be empty")
	}
	if len(s.WarningThresholds) > MaxWarningThresholds {
		return apperr.Validation("warningThresholds accepts at most 10 values")
	}
	for _, t := range s.WarningThresholds {
		if t <= 0 || t > MaxTimeMS {
			return apperr.Validation("warningThresholds values must be positive and under 24h")
		}
	}
	switch s.PenaltyType {
	case PenaltyWarning, PenaltyTimeDeduction, PenaltyGameLoss, "":
	default:
		return apperr.Validation("invalid penaltyType")
	}
	if s.BonusTime < 0 || s.BonusTime > MaxTimeMS {
		return apperr.Validation("bonusTime must be within [0, 24h]")
	}
	if s.TimeoutGracePeriod < 0 || s.TimeoutGracePeriod > MaxTimeMS {
		return apperr.Validation("timeoutGracePeriod must be within [0, 24h]")
	}
	if s.TimeoutBonusTime < 0 || s.TimeoutBonusTime > MaxTimeMS {
		return apperr.Validation("timeoutBonusTime must be within [0, 24h]")
	}
	return nil
}
