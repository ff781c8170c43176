package campaign

// PlayerStats accumulates one player's cross-round record.
type PlayerStats struct {
	Wins              int   `json:"wins"`
	Losses            int   `json:"losses"`
	TotalTimeUsed     int64 `json:"totalTimeUsed"`
	Penalties         int   `json:"penalties"`
	Eliminations      int   `json:"eliminations"`
	AccumulatedPoints int   `json:"accumulatedPoints"`
}

// RoundRecord is one append-only entry in the campaign's round
// history.
type RoundRecord struct {
	Round    int                     `json:"round"`
	WinnerID *int                    `json:"winnerId,omitempty"`
	Players  map[int]RoundPlayerData `json:"players"`
}

// RoundPlayerData is the per-player snapshot recorded at the end of a
// round, used for scoring and display.
type RoundPlayerData struct {
	TimeUsed     int64 `json:"timeUsed"`
	Penalties    int   `json:"penalties"`
	IsEliminated bool  `json:"isEliminated"`
}

// State is the mutable campaign extension a session carries in
// addition to its core player records.
type State struct {
	Preset string `json:"preset"`
	Config Config `json:"config"`

	CurrentRound int `json:"currentRound"` // 1..MaxRounds, may transiently be MaxRounds+1
	MaxRounds    int `json:"maxRounds"`

	PlayerStats map[int]*PlayerStats `json:"playerStats"`

	RoundHistory []RoundRecord `json:"roundHistory"`

	// DamageTracker[attacker][target] = cumulative damage this round.
	DamageTracker map[int]map[int]int `json:"damageTracker"`

	PlayerPoints map[int]int `json:"playerPoints"`
	PlayerLevels map[int]int `json:"playerLevels"`

	// Persistent across round resets.
	PlayerNames  map[int]string `json:"playerNames"`
	PlayerClaims map[int]string `json:"playerClaims"`

	CampaignStatus Status `json:"campaignStatus"`
	Winner         *int   `json:"winner,omitempty"`
}

// NewState builds a fresh campaign state for the given preset/config,
// starting at round 1.
func NewState(preset string, cfg Config, playerIDs []int) *State {
	s := &State{
		Preset:         preset,
		Config:         cfg,
		CurrentRound:   1,
		MaxRounds:      cfg.Rounds,
		PlayerStats:    map[int]*PlayerStats{},
		DamageTracker:  map[int]map[int]int{},
		PlayerPoints:   map[int]int{},
		PlayerLevels:   map[int]int{},
		PlayerNames:    map[int]string{},
		PlayerClaims:   map[int]string{},
		CampaignStatus: StatusInProgress,
	}
	for _, id := range playerIDs {
		s.PlayerStats[id] = &PlayerStats{}
		s.PlayerPoints[id] = 0
		s.PlayerLevels[id] = 1
	}
	return s
}

// ResetRoundDamage clears the damage tracker, mandated to be empty at
// the start of every round.
func (s *State) ResetRoundDamage() {
	s.DamageTracker = map[int]map[int]int{}
}

// UniqueTargetCount returns the number of distinct targets attacker p
// has dealt positive cumulative damage to this round.
func (s *State) UniqueTargetCount(p int) int {
	n := 0
	for _, dmg := range s.DamageTracker[p] {
		if dmg > 0 {
			n++
		}
	}
	return n
}

// AddDamage credits damage from attacker to target this round.
func (s *State) AddDamage(attacker, target int, amount int) {
	if amount <= 0 {
		return
	}
	if s.DamageTracker[attacker] == nil {
		s.DamageTracker[attacker] = map[int]int{}
	}
	s.DamageTracker[attacker][target] += amount
}
