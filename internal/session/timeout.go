package session

import (
	"time"

	"github.com/mtgturn/turnserver/internal/apperr"
)

// TimeoutChoiceOptions is the payload of the `timeoutChoice` event.
type TimeoutChoiceOptions struct {
	LivesLoss int
	DrunkGain int
}

// handleTimeout is invoked when a player's clock reaches zero during
// a tick. During targeting resolution, elimination of a target
// doesn't pause the game; otherwise the player enters the grace
// period defined by timeoutGracePeriod.
func (s *Session) handleTimeout(id int, now time.Time) {
	if s.Targeting.State == TargetingResolving {
		s.handleEliminatedTarget(id, now)
		s.Eliminate(id, now)
		return
	}

	p := s.Player(id)
	if p == nil {
		return
	}
	p.TimeoutPending = true
	p.TimeoutChoiceDeadline = now.UnixMilli() + s.Settings.TimeoutGracePeriod
	p.Penalties++
}

// TimeoutChoiceFor builds the options payload for the `timeoutChoice`
// event for a player currently pending a choice.
func (s *Session) TimeoutChoiceFor(id int) TimeoutChoiceOptions {
	return TimeoutChoiceOptions{
		LivesLoss: s.Settings.TimeoutPenaltyLives,
		DrunkGain: s.Settings.TimeoutPenaltyDrunk,
	}
}

// ResolveTimeoutChoice applies the player's (or grace-expiry default)
// resolution of a pending timeout, per spec.md §4.1.
func (s *Session) ResolveTimeoutChoice(id int, choice TimeoutChoice, now time.Time) error {
	p := s.Player(id)
	if p == nil {
		return apperr.NotFound("player not found")
	}
	if !p.TimeoutPending {
		return apperr.Conflict("no timeout choice pending")
	}

	p.TimeoutPending = false

	switch choice {
	case ChoiceLoseLives:
		old := p.Life
		p.Life = clampInt(p.Life-s.Settings.TimeoutPenaltyLives, MinLife, MaxLife)
		p.TimeRemaining = clampInt64(s.Settings.TimeoutBonusTime, 0, MaxTimeMS)
		s.notifyLifeChanged(id, old, p.Life, now)
		if p.Life <= 0 {
			s.Eliminate(id, now)
		}
	case ChoiceGainDrunk:
		p.DrunkCounter = clampInt(p.DrunkCounter+s.Settings.TimeoutPenaltyDrunk, MinCounter, MaxCounter)
		p.TimeRemaining = clampInt64(s.Settings.TimeoutBonusTime, 0, MaxTimeMS)
	case ChoiceDie:
		fallthrough
	default:
		s.Eliminate(id, now)
	}

	s.touch(now)
	return nil
}
