package session

import "time"

// TickResult carries the observable effects of one Tick call so the
// router/broadcaster can emit the right outbound events without
// reaching back into session internals.
type TickResult struct {
	Times          map[int]int64 // player id -> remaining ms, for every ticker
	Warnings       []WarningEvent
	Timeouts       []int // player ids that just hit zero (targets included during targeting)
	AutoDied       []int // players auto-resolved to "die" on grace expiry
	TimeoutPending []TimeoutChoiceEvent // players who just entered timeoutPending this tick
}

type WarningEvent struct {
	PlayerID  int
	Threshold int64
}

// TimeoutChoiceEvent carries the `timeoutChoice` broadcast payload for
// a player who just ran out of time outside targeting resolution.
type TimeoutChoiceEvent struct {
	PlayerID int
	Options  TimeoutChoiceOptions
	Deadline int64
}

// Tick advances the session clock by `now - LastTick`, decrementing
// whichever player(s) currently hold priority, per spec.md §4.1.
func (s *Session) Tick(now time.Time) TickResult {
	result := TickResult{Times: map[int]int64{}}
	if s.Status != StatusRunning {
		s.LastTick = now
		return result
	}

	elapsed := now.Sub(s.LastTick).Milliseconds()
	s.LastTick = now
	if elapsed < 0 {
		elapsed = 0
	}

	tickers := s.tickingSet()
	for _, id := range tickers {
		p := s.Player(id)
		if p == nil || p.IsEliminated || p.TimeoutPending {
			continue
		}
		before := p.TimeRemaining
		after := before - elapsed
		if after <= 0 {
			p.TimeRemaining = 0
			result.Timeouts = append(result.Timeouts, id)
			s.handleTimeout(id, now)
			if p.TimeoutPending {
				result.TimeoutPending = append(result.TimeoutPending, TimeoutChoiceEvent{
					PlayerID: id,
					Options:  s.TimeoutChoiceFor(id),
					Deadline: p.TimeoutChoiceDeadline,
				})
			}
		} else {
			p.TimeRemaining = after
			// Strictly-crossing-down warning semantics: a threshold t
			// fires once, exactly when the *actual* elapsed delta
			// carries the clock from above t to at-or-below t. Using
			// the real elapsed (not an assumed fixed tick delta) means
			// long wall-clock gaps (GC pause, suspended laptop, a
			// backlogged coordinator queue) still fire every threshold
			// they cross, rather than only the one nearest the assumed
			// cadence.
			for _, t := range s.Settings.WarningThresholds {
				if before > t && after <= t {
					result.Warnings = append(result.Warnings, WarningEvent{PlayerID: id, Threshold: t})
				}
			}
		}
		result.Times[id] = p.TimeRemaining
	}

	for _, p := range s.Players {
		if p.TimeoutPending && now.UnixMilli() >= p.TimeoutChoiceDeadline {
			s.ResolveTimeoutChoice(p.ID, ChoiceDie, now)
			result.AutoDied = append(result.AutoDied, p.ID)
		}
	}

	return result
}

// tickingSet decides which player ids tick this cycle, per spec.md
// §4.1: interrupt stack top only; else every player awaiting priority
// during targeting resolution; else the active player alone.
func (s *Session) tickingSet() []int {
	if n := len(s.Interrupts); n > 0 {
		return []int{s.Interrupts[n-1]}
	}
	if s.Targeting.State == TargetingResolving && len(s.Targeting.AwaitingPriority) > 0 {
		out := make([]int, len(s.Targeting.AwaitingPriority))
		copy(out, s.Targeting.AwaitingPriority)
		return out
	}
	if s.ActivePlayer != 0 {
		return []int{s.ActivePlayer}
	}
	return nil
}
