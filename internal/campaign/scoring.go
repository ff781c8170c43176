package campaign

import "math"

// wastelandsFormula implements the scoring formula from spec.md §4.2:
//
//	playerPoints[p] = accumulatedPoints[p]
//	                + floor(sum_t(damageTracker[p][t])
//	                        * playerMultipliers[uniqueTargetCount(p)]
//	                        * battleMultipliers[currentRound])
func wastelandsFormula(s *State, p int) int {
	total := 0
	for _, dmg := range s.DamageTracker[p] {
		total += dmg
	}
	pm := s.Config.PlayerMultipliers[s.UniqueTargetCount(p)]
	if pm == 0 {
		pm = 1.0
	}
	bm := s.Config.BattleMultipliers[s.CurrentRound]
	if bm == 0 {
		bm = 1.0
	}
	base := 0
	if stats := s.PlayerStats[p]; stats != nil {
		base = stats.AccumulatedPoints
	}
	return base + int(math.Floor(float64(total)*pm*bm))
}

// flatFormula is used by presets that don't accumulate battle points
// (standard/blitz/endurance use wins/time, not a points ladder); it
// simply surfaces accumulated points unchanged so PlayerPoints/
// PlayerLevels stay defined and the invariant in spec.md §3 still
// holds for every preset, not just wastelands.
func flatFormula(s *State, p int) int {
	if stats := s.PlayerStats[p]; stats != nil {
		return stats.AccumulatedPoints
	}
	return 0
}

// RecalculateAllScores recomputes PlayerPoints and PlayerLevels for
// every tracked player, maintaining the invariant
// playerPoints[p] == scoringFormula(state, p) and
// playerLevels[p] == 1 + count(levelThresholds <= playerPoints[p]).
func RecalculateAllScores(s *State) {
	formula := s.Config.ScoringFormula
	if formula == nil {
		formula = flatFormula
	}
	for p := range s.PlayerStats {
		pts := formula(s, p)
		s.PlayerPoints[p] = pts
		level := 1
		for _, th := range s.Config.LevelThresholds {
			if th <= pts {
				level++
			}
		}
		s.PlayerLevels[p] = level
	}
}
