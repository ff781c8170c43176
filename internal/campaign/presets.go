package campaign

import "time"

func ms(d time.Duration) int64 { return int64(d / time.Millisecond) }

// registry is the table of known presets. It is populated once at
// package init and never mutated after, so reads need no lock — the
// scoring formula is a pure function, re-attached on restore by
// looking the preset name back up here rather than being persisted.
var registry = map[string]Config{
	"standard": {
		Rounds:               5,
		TimePerRound:         ms(10 * time.Minute),
		TimeDecreasePerRound: ms(1 * time.Minute),
		MinTime:              ms(5 * time.Minute),
		WinCondition:         WinBestOf,
		WinTarget:            3,
		ScoringFormula:       flatFormula,
	},
	"blitz": {
		Rounds:               7,
		TimePerRound:         ms(5 * time.Minute),
		TimeDecreasePerRound: ms(30 * time.Second),
		MinTime:              ms(2 * time.Minute),
		WinCondition:         WinFirstTo,
		WinTarget:            4,
		ScoringFormula:       flatFormula,
	},
	"endurance": {
		Rounds:               10,
		TimePerRound:         ms(15 * time.Minute),
		TimeDecreasePerRound: 0,
		MinTime:              ms(15 * time.Minute),
		WinCondition:         WinTotalTime,
		ScoringFormula:       flatFormula,
	},
	"wastelands": {
		Rounds:               3,
		TimePerRound:         ms(6 * time.Minute),
		TimeDecreasePerRound: 0,
		MinTime:              ms(6 * time.Minute),
		BonusTime:            ms(30 * time.Second),
		WinCondition:         WinTotalPoints,
		BattleMultipliers: map[int]float64{
			1: 1.0,
			2: 1.25,
			3: 1.5,
		},
		PlayerMultipliers: map[int]float64{
			0: 1.0,
			1: 1.0,
			2: 1.2,
			3: 1.5,
		},
		LevelThresholds: []int{10, 25, 50, 100},
		ScoringFormula:  wastelandsFormula,
	},
}

// Get returns the named preset's config with its scoring formula
// attached. The returned Config is a value copy; maps are shared
// (read-only) across callers.
func Get(name string) (Config, bool) {
	c, ok := registry[name]
	return c, ok
}

// Reattach re-links the non-serializable ScoringFormula onto a config
// restored from persistence, keyed by the preset name recorded on the
// campaign state.
func Reattach(preset string, cfg Config) Config {
	if known, ok := registry[preset]; ok {
		cfg.ScoringFormula = known.ScoringFormula
	} else {
		cfg.ScoringFormula = flatFormula
	}
	return cfg
}

// Names returns the known preset identifiers, for validation error
// messages and the create-command payload schema.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}
