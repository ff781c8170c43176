package session

import (
	"encoding/json"

	"github.com/mtgturn/turnserver/internal/campaign"
)

// campaignExtension is the Extension implementation for campaign-mode
// sessions: damage attribution, scoring, round advancement, and
// persistent claims/names across round resets (spec.md §4.2).
type campaignExtension struct {
	state *campaign.State
}

func (c *campaignExtension) ModeName() Mode { return ModeCampaign }

func (c *campaignExtension) StartingLife() int {
	return c.state.Config.StartingLife
}

func (c *campaignExtension) OnClaim(s *Session, id int, clientID string) {
	c.state.PlayerClaims[id] = clientID
}

func (c *campaignExtension) OnNameChanged(s *Session, id int, name string) {
	c.state.PlayerNames[id] = name
}

// actingPlayer resolves who gets damage credit: interrupt stack top,
// else the original active player during targeting resolution, else
// the active player.
func (s *Session) actingPlayer() int {
	if n := len(s.Interrupts); n > 0 {
		return s.Interrupts[n-1]
	}
	if s.Targeting.State == TargetingResolving {
		return s.Targeting.OriginalActivePlayer
	}
	return s.ActivePlayer
}

// OnPlayerLifeChanged implements spec.md §4.2: only damage (a
// decrease) during an active game is attributed, and never to self.
func (c *campaignExtension) OnPlayerLifeChanged(s *Session, p int, old, newLife int) {
	if newLife >= old {
		return
	}
	if s.Status != StatusRunning {
		return
	}
	acting := s.actingPlayer()
	if acting == 0 || acting == p {
		return
	}
	damage := old - newLife
	c.state.AddDamage(acting, p, damage)
	campaign.RecalculateAllScores(c.state)
}

// OnGameComplete runs at the end of every round (a single elimination
// game completing within the campaign), not at campaign completion.
func (c *campaignExtension) OnGameComplete(s *Session, result GameResult) {
	roundData := map[int]campaign.RoundPlayerData{}
	for _, p := range s.Players {
		roundData[p.ID] = campaign.RoundPlayerData{
			TimeUsed:     s.Settings.InitialTime - p.TimeRemaining,
			Penalties:    p.Penalties,
			IsEliminated: p.IsEliminated,
		}
	}

	c.finalizeRoundScoring()
	c.recordRound(result.WinnerID, roundData)
	c.advanceRound()

	if c.checkCampaignComplete() {
		c.state.CampaignStatus = campaign.StatusCompleted
		c.state.Winner = c.overallWinner()
	} else {
		c.prepareNextRound(s)
	}
}

func (c *campaignExtension) finalizeRoundScoring() {
	campaign.RecalculateAllScores(c.state)
	for id, pts := range c.state.PlayerPoints {
		if st := c.state.PlayerStats[id]; st != nil {
			st.AccumulatedPoints = pts
		}
	}
	c.state.ResetRoundDamage()
}

func (c *campaignExtension) recordRound(winnerID *int, data map[int]campaign.RoundPlayerData) {
	c.state.RoundHistory = append(c.state.RoundHistory, campaign.RoundRecord{
		Round:    c.state.CurrentRound,
		WinnerID: winnerID,
		Players:  data,
	})
	for id, st := range c.state.PlayerStats {
		d, ok := data[id]
		if !ok {
			continue
		}
		st.TotalTimeUsed += d.TimeUsed
		st.Penalties += d.Penalties
		if d.IsEliminated {
			st.Eliminations++
		}
		if winnerID != nil && *winnerID == id {
			st.Wins++
		} else {
			st.Losses++
		}
	}
}

func (c *campaignExtension) advanceRound() {
	c.state.CurrentRound++
}

// checkCampaignComplete evaluates the win condition per spec.md §4.2.
func (c *campaignExtension) checkCampaignComplete() bool {
	cfg := c.state.Config
	switch cfg.WinCondition {
	case campaign.WinBestOf, campaign.WinFirstTo:
		for id, st := range c.state.PlayerStats {
			if st.Wins >= cfg.WinTarget {
				wid := id
				c.state.Winner = &wid
				return true
			}
		}
		if c.state.CurrentRound > c.state.MaxRounds {
			return true
		}
		return false
	case campaign.WinTotalTime, campaign.WinTotalPoints:
		return c.state.CurrentRound > c.state.MaxRounds
	default:
		return c.state.CurrentRound > c.state.MaxRounds
	}
}

// overallWinner determines the campaign winner once checkCampaignComplete
// returns true, per the win-condition table in spec.md §4.2.
func (c *campaignExtension) overallWinner() *int {
	cfg := c.state.Config
	switch cfg.WinCondition {
	case campaign.WinBestOf, campaign.WinFirstTo:
		for id, st := range c.state.PlayerStats {
			if st.Wins >= cfg.WinTarget {
				wid := id
				return &wid
			}
		}
	case campaign.WinTotalTime:
		var best *int
		var bestTime int64 = -1
		for id, st := range c.state.PlayerStats {
			if bestTime == -1 || st.TotalTimeUsed < bestTime {
				bestTime = st.TotalTimeUsed
				wid := id
				best = &wid
			}
		}
		return best
	case campaign.WinTotalPoints:
		var best *int
		bestPts := -1 << 31
		for id, pts := range c.state.PlayerPoints {
			if pts > bestPts {
				bestPts = pts
				wid := id
				best = &wid
			}
		}
		return best
	}
	// Default: most wins.
	var best *int
	bestWins := -1
	for id, st := range c.state.PlayerStats {
		if st.Wins > bestWins {
			bestWins = st.Wins
			wid := id
			best = &wid
		}
	}
	return best
}

// prepareNextRound resets players with the new per-round clock while
// reapplying persistent names/claims, per spec.md §4.2.
func (c *campaignExtension) prepareNextRound(s *Session) {
	roundTime := c.state.Config.RoundTimeFor(c.state.CurrentRound)
	for _, p := range s.Players {
		name := p.Name
		claim := p.ClaimedBy
		if n, ok := c.state.PlayerNames[p.ID]; ok {
			name = n
		}
		if cl, ok := c.state.PlayerClaims[p.ID]; ok {
			claim = cl
		}
		*p = *newPlayer(p.ID, roundTime, c.StartingLife())
		p.Name = name
		p.ClaimedBy = claim
	}
	s.Status = StatusWaiting
	s.ActivePlayer = 0
	s.Interrupts = nil
	s.Targeting = TargetingSubState{State: TargetingNone}
	s.Winner = nil
}

// CampaignState exposes the underlying campaign state for read access
// by the router/persistence layer. Returns nil for casual sessions.
func (s *Session) CampaignState() *campaign.State {
	if ce, ok := s.ext.(*campaignExtension); ok {
		return ce.state
	}
	return nil
}

func (c *campaignExtension) GetModeState() interface{} {
	return c.state
}

func (c *campaignExtension) RestoreModeState(raw json.RawMessage) error {
	var st campaign.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return err
	}
	st.Config = campaign.Reattach(st.Preset, st.Config)
	c.state = &st
	return nil
}
