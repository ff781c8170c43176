package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/mtgturn/turnserver/internal/apperr"
)

// mintToken generates a fresh 32-byte reconnect token, 64 hex chars,
// with a 1h TTL from now.
func mintToken(now time.Time) (token string, expiry int64) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is a fatal environment problem; the spec
		// requires a secret here, so there is no safe fallback value.
		panic("session: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf), now.Add(ReconnectTokenTTL).UnixMilli()
}

// ClaimResult is returned on a successful Claim/Reconnect.
type ClaimResult struct {
	PlayerID int
	Token    string
}

// Claim attaches clientID to playerID, releasing any slot the client
// previously held and minting a fresh reconnect token. During
// non-waiting status, only unclaimed non-eliminated slots may be
// claimed (spec.md §4.7).
func (s *Session) Claim(playerID int, clientID string, now time.Time) (ClaimResult, error) {
	p := s.Player(playerID)
	if p == nil {
		return ClaimResult{}, apperr.NotFound("player not found")
	}
	if p.IsEliminated {
		return ClaimResult{}, apperr.Conflict(apperr.MsgPlayerAlreadyClaim)
	}
	if p.ClaimedBy != "" && p.ClaimedBy != clientID {
		return ClaimResult{}, apperr.Conflict(apperr.MsgPlayerAlreadyClaim)
	}

	s.releaseClaimsOf(clientID)

	token, expiry := mintToken(now)
	p.ClaimedBy = clientID
	p.ReconnectToken = token
	p.TokenExpiry = expiry

	s.ext.OnClaim(s, playerID, clientID)
	s.touch(now)
	return ClaimResult{PlayerID: playerID, Token: token}, nil
}

// Unclaim releases every slot held by clientID.
func (s *Session) Unclaim(clientID string, now time.Time) {
	s.releaseClaimsOf(clientID)
	s.touch(now)
}

func (s *Session) releaseClaimsOf(clientID string) {
	for _, p := range s.Players {
		if p.ClaimedBy == clientID {
			p.ClaimedBy = ""
			p.ReconnectToken = ""
			p.TokenExpiry = 0
		}
	}
}

// Reconnect validates a presented token for playerID and, on success,
// rotates it.
func (s *Session) Reconnect(playerID int, clientID, token string, now time.Time) (ClaimResult, error) {
	p := s.Player(playerID)
	if p == nil {
		return ClaimResult{}, apperr.NotFound("player not found")
	}
	if p.ReconnectToken == "" || p.ReconnectToken != token {
		return ClaimResult{}, apperr.Conflict(apperr.MsgInvalidToken)
	}
	if now.UnixMilli() >= p.TokenExpiry {
		return ClaimResult{}, apperr.TokenExpired(apperr.MsgTokenExpired)
	}

	p.ClaimedBy = clientID
	newToken, expiry := mintToken(now)
	p.ReconnectToken = newToken
	p.TokenExpiry = expiry

	s.touch(now)
	return ClaimResult{PlayerID: playerID, Token: newToken}, nil
}

// RenameGame sets the sanitized, length-capped display name.
func (s *Session) RenameGame(name string, now time.Time) error {
	clean, err := SanitizeName(name)
	if err != nil {
		return err
	}
	s.DisplayName = clean
	s.touch(now)
	return nil
}
