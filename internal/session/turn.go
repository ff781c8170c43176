package session

import (
	"time"

	"github.com/mtgturn/turnserver/internal/apperr"
)

// SwitchPlayer makes id the active player, resets the tick clock, and
// grants the configured bonus time to the newly active player.
func (s *Session) SwitchPlayer(id int, now time.Time) error {
	p := s.Player(id)
	if p == nil {
		return apperr.NotFound("player not found")
	}
	if p.IsEliminated {
		return apperr.Conflict("player is eliminated")
	}
	if s.NonEliminatedCount() < 2 {
		return apperr.Conflict("at least two players must remain")
	}
	s.ActivePlayer = id
	s.LastTick = now
	p.TimeRemaining = clampInt64(p.TimeRemaining+s.Settings.BonusTime, 0, MaxTimeMS)
	s.touch(now)
	return nil
}

// Interrupt pushes id onto the interrupt stack. Duplicates are
// allowed and preserved (LIFO priority) per spec.md §9.
func (s *Session) Interrupt(id int, now time.Time) error {
	p := s.Player(id)
	if p == nil {
		return apperr.NotFound("player not found")
	}
	if p.IsEliminated {
		return apperr.Conflict("player is eliminated")
	}
	s.Interrupts = append(s.Interrupts, id)
	s.touch(now)
	return nil
}

// PassPriority removes the last occurrence of id from the interrupt
// stack (not necessarily the tail, though in practice only the
// current top can legally pass).
func (s *Session) PassPriority(id int, now time.Time) error {
	for i := len(s.Interrupts) - 1; i >= 0; i-- {
		if s.Interrupts[i] == id {
			s.Interrupts = append(s.Interrupts[:i], s.Interrupts[i+1:]...)
			s.touch(now)
			return nil
		}
	}
	return apperr.Conflict("player does not hold priority")
}

// StartTargetSelection begins the targeting sub-state.
func (s *Session) StartTargetSelection(now time.Time) error {
	if s.Status != StatusRunning {
		return apperr.Conflict("session is not running")
	}
	if s.Targeting.State != TargetingNone {
		return apperr.Conflict("targeting already in progress")
	}
	s.Targeting = TargetingSubState{State: TargetingSelecting}
	s.touch(now)
	return nil
}

// ToggleTarget adds or removes id from the pending target set.
func (s *Session) ToggleTarget(id int, now time.Time) error {
	if s.Targeting.State != TargetingSelecting {
		return apperr.Conflict("not selecting targets")
	}
	if id == s.ActivePlayer {
		return apperr.Validation("cannot target the active player")
	}
	p := s.Player(id)
	if p == nil {
		return apperr.NotFound("player not found")
	}
	if p.IsEliminated {
		return apperr.Conflict("player is eliminated")
	}
	targets := s.Targeting.TargetedPlayers
	for i, t := range targets {
		if t == id {
			s.Targeting.TargetedPlayers = append(targets[:i], targets[i+1:]...)
			s.touch(now)
			return nil
		}
	}
	s.Targeting.TargetedPlayers = append(targets, id)
	s.touch(now)
	return nil
}

// ConfirmTargets locks in the targeted set and enters the resolving
// sub-state. The active player does not change; originalActivePlayer
// records it so it can be restored on cancel.
func (s *Session) ConfirmTargets(now time.Time) error {
	if s.Targeting.State != TargetingSelecting {
		return apperr.Conflict("not selecting targets")
	}
	if len(s.Targeting.TargetedPlayers) == 0 {
		return apperr.Validation("no targets selected")
	}
	s.Targeting.OriginalActivePlayer = s.ActivePlayer
	s.Targeting.AwaitingPriority = append([]int(nil), s.Targeting.TargetedPlayers...)
	s.Targeting.State = TargetingResolving
	s.touch(now)
	return nil
}

// PassTargetPriority removes id from the awaiting-priority set; when
// it empties, targeting completes automatically.
func (s *Session) PassTargetPriority(id int, now time.Time) error {
	if s.Targeting.State != TargetingResolving {
		return apperr.Conflict("not resolving targets")
	}
	awaiting := s.Targeting.AwaitingPriority
	found := false
	for i, t := range awaiting {
		if t == id {
			s.Targeting.AwaitingPriority = append(awaiting[:i], awaiting[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return apperr.Conflict("player is not awaiting priority")
	}
	s.touch(now)
	if len(s.Targeting.AwaitingPriority) == 0 {
		s.completeTargeting(now)
	}
	return nil
}

// CancelTargeting aborts targeting from any non-none state, restoring
// the original active player.
func (s *Session) CancelTargeting(now time.Time) error {
	if s.Targeting.State == TargetingNone {
		return apperr.Conflict("targeting is not in progress")
	}
	if s.Targeting.State == TargetingResolving {
		s.ActivePlayer = s.Targeting.OriginalActivePlayer
	}
	s.Targeting = TargetingSubState{State: TargetingNone}
	s.touch(now)
	return nil
}

// completeTargeting returns the session to the non-targeting state.
func (s *Session) completeTargeting(now time.Time) {
	s.Targeting = TargetingSubState{State: TargetingNone}
	s.touch(now)
}

// handleEliminatedTarget removes id from the active targeting sets
// when it's eliminated mid-resolution; targeting continues rather
// than pausing.
func (s *Session) handleEliminatedTarget(id int, now time.Time) {
	removeInt(&s.Targeting.TargetedPlayers, id)
	removeInt(&s.Targeting.AwaitingPriority, id)
	if s.Targeting.State == TargetingResolving && len(s.Targeting.AwaitingPriority) == 0 {
		s.completeTargeting(now)
	}
}

func removeInt(s *[]int, v int) {
	out := (*s)[:0]
	for _, x := range *s {
		if x != v {
			out = append(out, x)
		}
	}
	*s = out
}
