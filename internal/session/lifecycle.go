package session

import (
	"time"

	"github.com/mtgturn/turnserver/internal/apperr"
)

// Start transitions waiting|paused -> running and (re)starts the tick
// clock.
func (s *Session) Start(now time.Time) error {
	if s.Status != StatusWaiting && s.Status != StatusPaused {
		return apperr.Conflict("session cannot be started from its current status")
	}
	if s.ActivePlayer == 0 {
		if ids := s.nonEliminatedIDsSorted(); len(ids) > 0 {
			s.ActivePlayer = ids[0]
		}
	}
	s.Status = StatusRunning
	s.LastTick = now
	s.touch(now)
	return nil
}

// Pause transitions running -> paused, freezing all clocks.
func (s *Session) Pause(now time.Time) error {
	if s.Status != StatusRunning {
		return apperr.Conflict("session is not running")
	}
	s.Status = StatusPaused
	s.touch(now)
	return nil
}

// Resume transitions paused -> running, resetting lastTick so the
// paused interval is never charged against any player's clock.
func (s *Session) Resume(now time.Time) error {
	if s.Status != StatusPaused {
		return apperr.Conflict("session is not paused")
	}
	s.Status = StatusRunning
	s.LastTick = now
	s.touch(now)
	return nil
}

// Reset returns the session to waiting, reinitializing players with
// the configured initial time and clearing active/interrupt/targeting
// state. In campaign mode the round structure is untouched — Reset is
// a manual "restart this game" admin action, distinct from automatic
// prepareNextRound.
func (s *Session) Reset(now time.Time) error {
	s.Status = StatusWaiting
	s.Winner = nil
	s.initPlayers(now)
	s.touch(now)
	return nil
}

// Close marks the session permanently closed; it will not be restored
// on the next process start.
func (s *Session) Close(now time.Time) {
	s.IsClosed = true
	s.Status = StatusFinished
	s.touch(now)
}

// HandleClientDisconnect unclaims any players held by clientID and,
// if it was the last connected client while running, auto-pauses the
// session (spec.md §5).
func (s *Session) HandleClientDisconnect(clientID string, now time.Time) {
	s.MarkDisconnected(clientID, now)
	for _, p := range s.Players {
		if p.ClaimedBy == clientID {
			p.ClaimedBy = ""
			p.ReconnectToken = ""
			p.TokenExpiry = 0
		}
	}
	if s.Status == StatusRunning && s.ConnectedClientCount() == 0 {
		_ = s.Pause(now)
	}
}
