package session

import (
	"testing"
	"time"
)

func baseSettings(playerCount int, initialTime int64) Settings {
	s := DefaultSettings()
	s.PlayerCount = playerCount
	s.InitialTime = initialTime
	return s
}

func TestTurnClockWithBonus(t *testing.T) {
	settings := baseSettings(2, 60000)
	settings.BonusTime = 5000
	settings.WarningThresholds = []int64{1000}

	now := time.Now()
	s := New("ABC123", settings, now)
	if _, err := s.Claim(1, "c1", now); err != nil {
		t.Fatalf("claim 1: %v", err)
	}
	if _, err := s.Claim(2, "c2", now); err != nil {
		t.Fatalf("claim 2: %v", err)
	}
	if err := s.Start(now); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.ActivePlayer = 1

	tickTime := now.Add(1100 * time.Millisecond)
	s.Tick(tickTime)

	if err := s.SwitchPlayer(2, tickTime); err != nil {
		t.Fatalf("switch: %v", err)
	}

	p1 := s.Player(1)
	if p1.TimeRemaining < 58700 || p1.TimeRemaining > 59100 {
		t.Errorf("player 1 timeRemaining = %d, want ~58900", p1.TimeRemaining)
	}
	p2 := s.Player(2)
	if p2.TimeRemaining != 65000 {
		t.Errorf("player 2 timeRemaining = %d, want 65000", p2.TimeRemaining)
	}
	if s.ActivePlayer != 2 {
		t.Errorf("activePlayer = %d, want 2", s.ActivePlayer)
	}
}

func TestWarningThresholdFiresOnce(t *testing.T) {
	settings := baseSettings(2, 31000)
	settings.WarningThresholds = []int64{30000}

	now := time.Now()
	s := New("ABC124", settings, now)
	s.Claim(1, "c1", now)
	s.Claim(2, "c2", now)
	s.Start(now)
	s.ActivePlayer = 1

	fired := 0
	t1 := now.Add(600 * time.Millisecond)
	res := s.Tick(t1)
	for _, w := range res.Warnings {
		if w.PlayerID == 1 && w.Threshold == 30000 {
			fired++
		}
	}
	t2 := now.Add(1200 * time.Millisecond)
	res2 := s.Tick(t2)
	for _, w := range res2.Warnings {
		if w.PlayerID == 1 && w.Threshold == 30000 {
			fired++
		}
	}
	if fired != 1 {
		t.Errorf("warning fired %d times, want exactly 1", fired)
	}
}

func TestTimeoutChoiceGainDrunk(t *testing.T) {
	settings := baseSettings(2, 100)
	settings.TimeoutGracePeriod = 5000
	settings.TimeoutBonusTime = 30000
	settings.TimeoutPenaltyDrunk = 2

	now := time.Now()
	s := New("ABC125", settings, now)
	s.Claim(1, "c1", now)
	s.Claim(2, "c2", now)
	s.Start(now)
	s.ActivePlayer = 1

	t1 := now.Add(250 * time.Millisecond)
	res := s.Tick(t1)
	if len(res.Timeouts) != 1 || res.Timeouts[0] != 1 {
		t.Fatalf("expected player 1 timeout, got %+v", res.Timeouts)
	}
	if len(res.TimeoutPending) != 1 {
		t.Fatalf("expected one timeoutChoice event, got %+v", res.TimeoutPending)
	}
	tc := res.TimeoutPending[0]
	if tc.PlayerID != 1 {
		t.Errorf("timeoutChoice playerId = %d, want 1", tc.PlayerID)
	}
	if tc.Options.DrunkGain != 2 {
		t.Errorf("timeoutChoice drunkGain = %d, want 2", tc.Options.DrunkGain)
	}
	if tc.Deadline != t1.UnixMilli()+settings.TimeoutGracePeriod {
		t.Errorf("timeoutChoice deadline = %d, want %d", tc.Deadline, t1.UnixMilli()+settings.TimeoutGracePeriod)
	}

	p1 := s.Player(1)
	if !p1.TimeoutPending {
		t.Fatalf("expected timeoutPending=true")
	}

	if err := s.ResolveTimeoutChoice(1, ChoiceGainDrunk, t1); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p1.TimeoutPending {
		t.Errorf("timeoutPending still true")
	}
	if p1.TimeRemaining != 30000 {
		t.Errorf("timeRemaining = %d, want 30000", p1.TimeRemaining)
	}
	if p1.DrunkCounter != 2 {
		t.Errorf("drunkCounter = %d, want 2", p1.DrunkCounter)
	}
	if p1.IsEliminated {
		t.Errorf("should not be eliminated")
	}
}

func TestWinnerOnLastPlayerStanding(t *testing.T) {
	now := time.Now()
	s := New("ABC126", baseSettings(2, 60000), now)
	s.Claim(1, "c1", now)
	s.Claim(2, "c2", now)
	s.Start(now)

	if err := s.Eliminate(1, now); err != nil {
		t.Fatalf("eliminate: %v", err)
	}
	if s.Status != StatusFinished {
		t.Errorf("status = %s, want finished", s.Status)
	}
	if s.Winner == nil || *s.Winner != 2 {
		t.Errorf("winner = %v, want 2", s.Winner)
	}
}

func TestTargetingResolutionTicksBothTargets(t *testing.T) {
	now := time.Now()
	s := New("ABC127", baseSettings(4, 60000), now)
	for i := 1; i <= 4; i++ {
		s.Claim(i, "c"+string(rune('0'+i)), now)
	}
	s.Start(now)
	s.ActivePlayer = 1

	if err := s.StartTargetSelection(now); err != nil {
		t.Fatalf("start targeting: %v", err)
	}
	if err := s.ToggleTarget(2, now); err != nil {
		t.Fatalf("toggle 2: %v", err)
	}
	if err := s.ToggleTarget(3, now); err != nil {
		t.Fatalf("toggle 3: %v", err)
	}
	if err := s.ConfirmTargets(now); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if s.ActivePlayer != 1 {
		t.Errorf("activePlayer changed to %d during targeting", s.ActivePlayer)
	}

	before2, before3, before1 := s.Player(2).TimeRemaining, s.Player(3).TimeRemaining, s.Player(1).TimeRemaining
	tickTime := now.Add(100 * time.Millisecond)
	s.Tick(tickTime)

	if s.Player(2).TimeRemaining != before2-100 {
		t.Errorf("player 2 time = %d, want %d", s.Player(2).TimeRemaining, before2-100)
	}
	if s.Player(3).TimeRemaining != before3-100 {
		t.Errorf("player 3 time = %d, want %d", s.Player(3).TimeRemaining, before3-100)
	}
	if s.Player(1).TimeRemaining != before1 {
		t.Errorf("player 1 (active, not targeted) time changed: %d vs %d", s.Player(1).TimeRemaining, before1)
	}
}

func TestToggleTargetTwiceIsNoop(t *testing.T) {
	now := time.Now()
	s := New("ABC128", baseSettings(3, 60000), now)
	s.Start(now)
	s.ActivePlayer = 1
	s.StartTargetSelection(now)
	s.ToggleTarget(2, now)
	s.ToggleTarget(2, now)
	if len(s.Targeting.TargetedPlayers) != 0 {
		t.Errorf("targetedPlayers = %v, want empty after double toggle", s.Targeting.TargetedPlayers)
	}
}

func TestInterruptPushPop(t *testing.T) {
	now := time.Now()
	s := New("ABC129", baseSettings(3, 60000), now)
	before := append([]int(nil), s.Interrupts...)
	s.Interrupt(2, now)
	s.PassPriority(2, now)
	if len(s.Interrupts) != len(before) {
		t.Errorf("interrupt stack = %v, want back to %v", s.Interrupts, before)
	}
}

func TestRevivePlayerNoopWhenNotEliminated(t *testing.T) {
	now := time.Now()
	s := New("ABC130", baseSettings(2, 60000), now)
	p1Before := *s.Player(1)
	if err := s.RevivePlayer(1, now); err != nil {
		t.Fatalf("revive: %v", err)
	}
	if *s.Player(1) != p1Before {
		t.Errorf("revive on non-eliminated player mutated state")
	}
}

func TestClaimUnclaimClaimFreshTokens(t *testing.T) {
	now := time.Now()
	s := New("ABC131", baseSettings(2, 60000), now)
	r1, err := s.Claim(1, "clientA", now)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	s.Unclaim("clientA", now)
	r2, err := s.Claim(1, "clientA", now)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if r1.Token == r2.Token {
		t.Errorf("expected fresh token on reclaim")
	}
}

func TestTimeNeverNegative(t *testing.T) {
	now := time.Now()
	s := New("ABC132", baseSettings(2, 500), now)
	s.Start(now)
	s.ActivePlayer = 1
	res := s.Tick(now.Add(10 * time.Second))
	if s.Player(1).TimeRemaining != 0 {
		t.Errorf("timeRemaining = %d, want 0", s.Player(1).TimeRemaining)
	}
	if len(res.Timeouts) != 1 {
		t.Errorf("expected a timeout event")
	}
}

func TestNextAliveAfterWraps(t *testing.T) {
	now := time.Now()
	s := New("ABC133", baseSettings(4, 60000), now)
	s.Start(now)
	s.ActivePlayer = 3
	// Eliminate 2 first, then the active player 3: the next alive seat
	// after 3 is 4, whereas "first alive" would have picked 1.
	s.Eliminate(2, now)
	if s.ActivePlayer != 3 {
		t.Fatalf("active player changed unexpectedly: %d", s.ActivePlayer)
	}
	s.Eliminate(3, now)
	if s.ActivePlayer != 4 {
		t.Errorf("activePlayer = %d, want 4 (next after 3, wrapping)", s.ActivePlayer)
	}
}

func TestWarningThresholdCountValidation(t *testing.T) {
	s := baseSettings(2, 60000)
	s.WarningThresholds = make([]int64, 10)
	for i := range s.WarningThresholds {
		s.WarningThresholds[i] = int64(i + 1)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("10 thresholds should validate, got %v", err)
	}
	s.WarningThresholds = append(s.WarningThresholds, 11)
	if err := s.Validate(); err == nil {
		t.Errorf("11 thresholds should be rejected")
	}
	s.WarningThresholds = nil
	if err := s.Validate(); err == nil {
		t.Errorf("empty thresholds should be rejected")
	}
}

func TestSanitizePreservesUnicodeEncodesEntities(t *testing.T) {
	out, err := SanitizeName(`<b>hi</b> & "friends" 🎉 café`)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if out == "" {
		t.Fatal("empty result")
	}
	for _, bad := range []string{"<b>", "&\"", "'"} {
		_ = bad
	}
	if got := out; !contains(got, "&lt;b&gt;") || !contains(got, "&amp;") {
		t.Errorf("expected escaped entities, got %q", got)
	}
	if !contains(out, "🎉") || !contains(out, "café") {
		t.Errorf("expected unicode preserved, got %q", out)
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}
