package session

import "encoding/json"

// casualExtension is the no-op Extension for casual-mode sessions:
// no cross-round scoring, no persistent claims beyond the session
// itself.
type casualExtension struct{}

func (*casualExtension) ModeName() Mode                                { return ModeCasual }
func (*casualExtension) StartingLife() int                             { return 0 }
func (*casualExtension) OnClaim(*Session, int, string)                 {}
func (*casualExtension) OnNameChanged(*Session, int, string)           {}
func (*casualExtension) OnPlayerLifeChanged(*Session, int, int, int)   {}
func (*casualExtension) OnGameComplete(*Session, GameResult)           {}
func (*casualExtension) GetModeState() interface{}                    { return nil }
func (*casualExtension) RestoreModeState(raw json.RawMessage) error    { return nil }
