package session

import (
	"time"

	"github.com/mtgturn/turnserver/internal/apperr"
)

// notifyLifeChanged invokes the mode extension hook and, on a
// life change crossing to <= 0, triggers elimination via the caller
// (callers check p.Life <= 0 themselves to avoid double-eliminating
// when the same call site already knows to eliminate).
func (s *Session) notifyLifeChanged(id, old, newLife int, now time.Time) {
	s.ext.OnPlayerLifeChanged(s, id, old, newLife)
}

// Eliminate marks a player eliminated and runs the elimination
// cascade: winner detection, or (if targeting) handleEliminatedTarget,
// or (if the eliminated player was active) advance to the next
// non-eliminated player in id order after it, wrapping.
func (s *Session) Eliminate(id int, now time.Time) error {
	p := s.Player(id)
	if p == nil {
		return apperr.NotFound("player not found")
	}
	if p.IsEliminated {
		return nil
	}
	p.IsEliminated = true
	p.TimeoutPending = false
	s.touch(now)

	s.afterElimination(id, now)
	return nil
}

// afterElimination implements the cascade from spec.md §4.1.
func (s *Session) afterElimination(id int, now time.Time) {
	remaining := s.nonEliminatedIDsSorted()

	if len(remaining) == 1 {
		s.finish(&remaining[0], now)
		return
	}
	if len(remaining) == 0 {
		s.finish(nil, now)
		return
	}

	if s.Targeting.State != TargetingNone {
		s.handleEliminatedTarget(id, now)
		return
	}

	if s.ActivePlayer == id {
		s.ActivePlayer = s.nextAliveAfter(id)
		s.LastTick = now
	}
}

// nextAliveAfter returns the next non-eliminated player in id order
// starting from (id % N) + 1 and wrapping — "next after", not "first
// alive" (spec.md §9 resolves the ambiguity this way).
func (s *Session) nextAliveAfter(id int) int {
	n := len(s.Players)
	if n == 0 {
		return 0
	}
	for i := 0; i < n; i++ {
		candidate := (id+i)%n + 1
		if candidate == id {
			continue
		}
		p := s.Player(candidate)
		if p != nil && !p.IsEliminated {
			return candidate
		}
	}
	return 0
}

// finish ends the session: winner (or draw), stop tick, clear
// interrupt/targeting state, run OnGameComplete.
func (s *Session) finish(winnerID *int, now time.Time) {
	s.Status = StatusFinished
	s.Winner = winnerID
	s.Interrupts = nil
	s.Targeting = TargetingSubState{State: TargetingNone}
	s.touch(now)

	s.ext.OnGameComplete(s, GameResult{WinnerID: winnerID, Draw: winnerID == nil})
}

// RevivePlayer clears elimination and, depending on prior state,
// restores time/life, per spec.md §4.1.
func (s *Session) RevivePlayer(id int, now time.Time) error {
	p := s.Player(id)
	if p == nil {
		return apperr.NotFound("player not found")
	}
	if !p.IsEliminated {
		return nil // no-op: nothing changes, but the router's run path still broadcasts the unchanged state
	}

	p.IsEliminated = false
	if p.TimeRemaining == 0 {
		p.TimeRemaining = clampInt64(s.Settings.InitialTime, 0, MaxTimeMS)
	}
	if p.Life <= 0 {
		life := DefaultLife
		if sl := s.ext.StartingLife(); sl != 0 {
			life = sl
		}
		p.Life = clampInt(life, MinLife, MaxLife)
	}
	p.TimeoutPending = false

	if s.Status == StatusFinished {
		s.Winner = nil
		s.Status = StatusPaused
	}

	s.touch(now)
	return nil
}

// KickPlayer clears a player's claim/tokens, eliminates them, and
// notifies the evicted client before running the elimination cascade.
func (s *Session) KickPlayer(id int, now time.Time, notify func(clientID string)) error {
	p := s.Player(id)
	if p == nil {
		return apperr.NotFound("player not found")
	}
	evicted := p.ClaimedBy
	p.ClaimedBy = ""
	p.ReconnectToken = ""
	p.TokenExpiry = 0
	if err := s.Eliminate(id, now); err != nil {
		return err
	}
	if evicted != "" && notify != nil {
		notify(evicted)
	}
	return nil
}

// PlayerUpdate is the set of editable player fields in an updatePlayer
// command; nil pointers mean "leave unchanged".
type PlayerUpdate struct {
	Name           *string
	Time           *int64
	Life           *int
	DrunkCounter   *int
	GenericCounter *int
	Color          *string
}

// UpdatePlayer applies a partial update, clamping numeric fields and
// sanitizing strings, and triggers the life-change hook / elimination
// cascade when life crosses to <= 0.
func (s *Session) UpdatePlayer(id int, u PlayerUpdate, now time.Time) error {
	p := s.Player(id)
	if p == nil {
		return apperr.NotFound("player not found")
	}

	if u.Name != nil {
		name, err := SanitizeName(*u.Name)
		if err != nil {
			return err
		}
		p.Name = name
		s.ext.OnNameChanged(s, id, name)
	}
	if u.Time != nil {
		if *u.Time < 0 || *u.Time > MaxTimeMS {
			return apperr.Validation("time must be within [0, 24h]")
		}
		p.TimeRemaining = *u.Time
	}
	if u.Color != nil {
		color, err := SanitizeText(*u.Color, 50)
		if err != nil {
			return err
		}
		p.Color = color
	}
	if u.DrunkCounter != nil {
		p.DrunkCounter = clampInt(*u.DrunkCounter, MinCounter, MaxCounter)
	}
	if u.GenericCounter != nil {
		p.GenericCounter = clampInt(*u.GenericCounter, MinCounter, MaxCounter)
	}
	if u.Life != nil {
		old := p.Life
		newLife := clampInt(*u.Life, MinLife, MaxLife)
		p.Life = newLife
		s.notifyLifeChanged(id, old, newLife, now)
		if newLife <= 0 && old > 0 {
			if err := s.Eliminate(id, now); err != nil {
				return err
			}
		}
	}

	s.touch(now)
	return nil
}

// AddPenalty applies the configured penalty for a rules infraction
// (distinct from the timeout penalty), per settings.penaltyType.
func (s *Session) AddPenalty(id int, now time.Time) error {
	p := s.Player(id)
	if p == nil {
		return apperr.NotFound("player not found")
	}
	p.Penalties++
	switch s.Settings.PenaltyType {
	case PenaltyTimeDeduction:
		p.TimeRemaining = clampInt64(p.TimeRemaining-s.Settings.PenaltyTimeDeduction, 0, MaxTimeMS)
		if p.TimeRemaining == 0 {
			s.handleTimeout(id, now)
		}
	case PenaltyGameLoss:
		return s.Eliminate(id, now)
	case PenaltyWarning:
		// no state change beyond the counter
	}
	s.touch(now)
	return nil
}
