package router

import "github.com/mtgturn/turnserver/internal/session"

// claimedPlayerID returns the player id clientID has claimed in s, if
// any non-eliminated slot is claimed by them.
func claimedPlayerID(s *session.Session, clientID string) (int, bool) {
	for _, p := range s.Players {
		if p.ClaimedBy == clientID && !p.IsEliminated {
			return p.ID, true
		}
	}
	return 0, false
}

func isOwner(s *session.Session, clientID string) bool {
	return clientID != "" && s.OwnerClientID == clientID
}

func activePlayerOwner(s *session.Session) string {
	p := s.Player(s.ActivePlayer)
	if p == nil {
		return ""
	}
	return p.ClaimedBy
}

// authOwnerOrClaimed is the rule shared by start/pause/resume: client
// is the session owner OR has claimed any player.
func authOwnerOrClaimed(s *session.Session, clientID string) bool {
	if isOwner(s, clientID) {
		return true
	}
	_, ok := claimedPlayerID(s, clientID)
	return ok
}

// authSwitchPlayer implements spec.md §4.7's switchPlayer rule.
func authSwitchPlayer(s *session.Session, clientID string) bool {
	if s.Status == session.StatusWaiting {
		return true
	}
	if isOwner(s, clientID) {
		return true
	}
	return activePlayerOwner(s) == clientID
}

// authUpdatePlayer implements spec.md §4.7's updatePlayer rule.
func authUpdatePlayer(s *session.Session, clientID string, targetPlayerID int) bool {
	if isOwner(s, clientID) {
		return true
	}
	target := s.Player(targetPlayerID)
	if target != nil && target.ClaimedBy == clientID {
		return true
	}
	if s.Status == session.StatusWaiting && target != nil && target.ClaimedBy == "" {
		return true
	}
	return false
}
