package session

import (
	"testing"
	"time"
)

func TestWastelandsScoringCreditsAttacker(t *testing.T) {
	now := time.Now()
	settings := baseSettings(3, 60000) // 3 players: the life hit below must not end the round
	s, err := NewCampaign("CMP001", settings, "wastelands", now)
	if err != nil {
		t.Fatalf("new campaign: %v", err)
	}
	if err := s.Start(now); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.ActivePlayer = 1

	newLife := 10 // player 2 starts at life 20 (default); this is a 10-damage hit, not fatal
	if err := s.UpdatePlayer(2, PlayerUpdate{Life: &newLife}, now); err != nil {
		t.Fatalf("update player: %v", err)
	}

	cs := s.CampaignState()
	if cs.DamageTracker[1][2] != 10 {
		t.Fatalf("damageTracker[1][2] = %d, want 10", cs.DamageTracker[1][2])
	}
	if cs.PlayerPoints[1] != 10 {
		t.Errorf("playerPoints[1] = %d, want 10", cs.PlayerPoints[1])
	}
	if cs.PlayerLevels[1] != 2 {
		t.Errorf("playerLevels[1] = %d, want 2", cs.PlayerLevels[1])
	}
}

func TestCampaignNoSelfDamageCredit(t *testing.T) {
	now := time.Now()
	s, _ := NewCampaign("CMP002", baseSettings(2, 60000), "wastelands", now)
	s.Start(now)
	s.ActivePlayer = 1

	newLife := 5
	if err := s.UpdatePlayer(1, PlayerUpdate{Life: &newLife}, now); err != nil {
		t.Fatalf("update: %v", err)
	}
	cs := s.CampaignState()
	if len(cs.DamageTracker[1]) != 0 {
		t.Errorf("self-damage should not be credited, got %v", cs.DamageTracker[1])
	}
}

func TestCampaignRoundResetClearsDamageTracker(t *testing.T) {
	now := time.Now()
	s, _ := NewCampaign("CMP003", baseSettings(2, 60000), "wastelands", now)
	s.Start(now)
	s.ActivePlayer = 1
	l := 5
	s.UpdatePlayer(2, PlayerUpdate{Life: &l}, now)

	if err := s.Eliminate(2, now); err != nil {
		t.Fatalf("eliminate: %v", err)
	}
	cs := s.CampaignState()
	if len(cs.DamageTracker) != 0 {
		t.Errorf("damageTracker should be empty after round finalize, got %v", cs.DamageTracker)
	}
	if cs.CurrentRound != 2 {
		t.Errorf("currentRound = %d, want 2", cs.CurrentRound)
	}
	if s.Status != StatusWaiting {
		t.Errorf("status = %s, want waiting (next round prepared)", s.Status)
	}
}

func TestCampaignNamesAndClaimsSurviveRoundReset(t *testing.T) {
	now := time.Now()
	s, _ := NewCampaign("CMP004", baseSettings(2, 60000), "standard", now)
	if _, err := s.Claim(1, "alice", now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	name := "Alice"
	if err := s.UpdatePlayer(1, PlayerUpdate{Name: &name}, now); err != nil {
		t.Fatalf("update name: %v", err)
	}
	s.Start(now)
	if err := s.Eliminate(2, now); err != nil {
		t.Fatalf("eliminate: %v", err)
	}
	if s.Player(1).Name != "Alice" {
		t.Errorf("name not preserved across round reset: %q", s.Player(1).Name)
	}
	if s.Player(1).ClaimedBy != "alice" {
		t.Errorf("claim not preserved across round reset: %q", s.Player(1).ClaimedBy)
	}
}
