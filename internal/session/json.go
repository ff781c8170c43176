package session

import (
	"encoding/json"
	"time"
)

// PublicPlayer is the wire shape of a player in the outbound `state`
// event: no reconnect secrets.
type PublicPlayer struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	TimeRemaining  int64  `json:"timeRemaining"`
	Life           int    `json:"life"`
	DrunkCounter   int    `json:"drunkCounter"`
	GenericCounter int    `json:"genericCounter"`
	IsEliminated   bool   `json:"isEliminated"`
	ClaimedBy      string `json:"claimedBy,omitempty"`
	TimeoutPending bool   `json:"timeoutPending"`
	Color          string `json:"color,omitempty"`
}

func (p *Player) toPublic() PublicPlayer {
	return PublicPlayer{
		ID:             p.ID,
		Name:           p.Name,
		TimeRemaining:  p.TimeRemaining,
		Life:           p.Life,
		DrunkCounter:   p.DrunkCounter,
		GenericCounter: p.GenericCounter,
		IsEliminated:   p.IsEliminated,
		ClaimedBy:      p.ClaimedBy,
		TimeoutPending: p.TimeoutPending,
		Color:          p.Color,
	}
}

// PersistedPlayer is the full on-disk/in-store shape, adding the
// fields the public view omits (spec.md §6). Life is a pointer so a
// legacy/partial record that never wrote it (nil) can be told apart
// from a player whose life actually reached exactly 0.
type PersistedPlayer struct {
	PublicPlayer
	Life                  *int   `json:"life,omitempty"`
	ReconnectToken        string `json:"reconnectToken,omitempty"`
	TokenExpiry           int64  `json:"tokenExpiry,omitempty"`
	Penalties             int    `json:"penalties"`
	TimeoutChoiceDeadline int64  `json:"timeoutChoiceDeadline,omitempty"`
}

func (p *Player) toPersisted() PersistedPlayer {
	life := p.Life
	return PersistedPlayer{
		PublicPlayer:          p.toPublic(),
		Life:                  &life,
		ReconnectToken:        p.ReconnectToken,
		TokenExpiry:           p.TokenExpiry,
		Penalties:             p.Penalties,
		TimeoutChoiceDeadline: p.TimeoutChoiceDeadline,
	}
}

// fromPersistedPlayer hydrates a player, applying spec.md §4.5's
// default-on-missing rules: life defaults to 20, counters/flags/arrays
// default to their Go zero value, which is already what a partial
// record decodes every other field to.
func fromPersistedPlayer(pp PersistedPlayer) *Player {
	life := DefaultLife
	if pp.Life != nil {
		life = *pp.Life
	}
	return &Player{
		ID:                    pp.ID,
		Name:                  pp.Name,
		TimeRemaining:         pp.TimeRemaining,
		Life:                  clampInt(life, MinLife, MaxLife),
		DrunkCounter:          pp.DrunkCounter,
		GenericCounter:        pp.GenericCounter,
		IsEliminated:          pp.IsEliminated,
		ClaimedBy:             pp.ClaimedBy,
		ReconnectToken:        pp.ReconnectToken,
		TokenExpiry:           pp.TokenExpiry,
		TimeoutPending:        pp.TimeoutPending,
		TimeoutChoiceDeadline: pp.TimeoutChoiceDeadline,
		Color:                 pp.Color,
	}
}

// PublicState is the `state` event payload.
type PublicState struct {
	ID            string          `json:"id"`
	Mode          Mode            `json:"mode"`
	DisplayName   string          `json:"displayName"`
	Status        Status          `json:"status"`
	OwnerClientID string          `json:"ownerClientId,omitempty"`
	Players       []PublicPlayer  `json:"players"`
	ActivePlayer  int             `json:"activePlayer,omitempty"`
	Interrupts    []int           `json:"interrupts"`
	Targeting     TargetingSubState `json:"targeting"`
	Winner        *int            `json:"winner,omitempty"`
	Settings      Settings        `json:"settings"`
	ModeState     interface{}     `json:"modeState,omitempty"`
}

// ToPublicState builds the outbound `state` snapshot.
func (s *Session) ToPublicState() PublicState {
	players := make([]PublicPlayer, len(s.Players))
	for i, p := range s.Players {
		players[i] = p.toPublic()
	}
	return PublicState{
		ID:            s.ID,
		Mode:          s.Mode,
		DisplayName:   s.DisplayName,
		Status:        s.Status,
		OwnerClientID: s.OwnerClientID,
		Players:       players,
		ActivePlayer:  s.ActivePlayer,
		Interrupts:    append([]int(nil), s.Interrupts...),
		Targeting:     s.Targeting,
		Winner:        s.Winner,
		Settings:      s.Settings,
		ModeState:     s.ext.GetModeState(),
	}
}

// PersistedState is the full on-disk/in-store shape (spec.md §6).
type PersistedState struct {
	ID            string            `json:"id"`
	Mode          Mode              `json:"mode"`
	DisplayName   string            `json:"displayName"`
	Status        Status            `json:"status"`
	CreatedAt     time.Time         `json:"createdAt"`
	LastActivity  time.Time         `json:"lastActivity"`
	LastTick      time.Time         `json:"lastTick"`
	OwnerClientID string            `json:"ownerClientId,omitempty"`
	Players       []PersistedPlayer `json:"players"`
	ActivePlayer  int               `json:"activePlayer,omitempty"`
	Interrupts    []int             `json:"interrupts"`
	Targeting     TargetingSubState `json:"targeting"`
	Winner        *int              `json:"winner,omitempty"`
	Settings      Settings          `json:"settings"`
	IsClosed      bool              `json:"isClosed"`
	ModeState     json.RawMessage   `json:"modeState,omitempty"`
}

// ToPersisted builds the full on-disk/in-store representation.
func (s *Session) ToPersisted() (PersistedState, error) {
	players := make([]PersistedPlayer, len(s.Players))
	for i, p := range s.Players {
		players[i] = p.toPersisted()
	}
	modeState, err := json.Marshal(s.ext.GetModeState())
	if err != nil {
		return PersistedState{}, err
	}
	if string(modeState) == "null" {
		modeState = nil
	}
	return PersistedState{
		ID:            s.ID,
		Mode:          s.Mode,
		DisplayName:   s.DisplayName,
		Status:        s.Status,
		CreatedAt:     s.CreatedAt,
		LastActivity:  s.LastActivity,
		LastTick:      s.LastTick,
		OwnerClientID: s.OwnerClientID,
		Players:       players,
		ActivePlayer:  s.ActivePlayer,
		Interrupts:    append([]int(nil), s.Interrupts...),
		Targeting:     s.Targeting,
		Winner:        s.Winner,
		Settings:      s.Settings,
		IsClosed:      s.IsClosed,
		ModeState:     modeState,
	}, nil
}

// FromPersisted restores a session from its persisted representation,
// applying hydrate defaults (spec.md §4.5): missing fields default
// safely, and a `running` status is always coerced to `paused` —
// clocks must not be silently consumed while the service was down,
// and on resume no grace time is refunded for the outage gap.
func FromPersisted(data PersistedState) (*Session, error) {
	if data.ID == "" {
		return nil, errRequiredField("id")
	}

	mode := data.Mode
	if mode != ModeCampaign {
		mode = ModeCasual // unknown/missing mode defaults to casual
	}

	s := &Session{
		ID:               data.ID,
		Mode:             mode,
		DisplayName:      data.DisplayName,
		Status:           data.Status,
		CreatedAt:        data.CreatedAt,
		LastActivity:     data.LastActivity,
		LastTick:         data.LastTick,
		OwnerClientID:    data.OwnerClientID,
		ActivePlayer:     data.ActivePlayer,
		Interrupts:       append([]int(nil), data.Interrupts...),
		Targeting:        data.Targeting,
		Winner:           data.Winner,
		Settings:         data.Settings,
		IsClosed:         data.IsClosed,
		connectedClients: map[string]struct{}{},
	}
	if s.Status == StatusRunning {
		s.Status = StatusPaused
	}
	if s.Status == "" {
		s.Status = StatusWaiting
	}

	s.Players = make([]*Player, len(data.Players))
	for i, pp := range data.Players {
		s.Players[i] = fromPersistedPlayer(pp)
	}

	if mode == ModeCampaign {
		ext := &campaignExtension{}
		if len(data.ModeState) > 0 {
			if err := ext.RestoreModeState(data.ModeState); err != nil {
				return nil, err
			}
		}
		s.ext = ext
	} else {
		s.ext = &casualExtension{}
	}

	return s, nil
}

type fieldErr struct{ field string }

func (e fieldErr) Error() string { return "session: missing required field " + e.field }

func errRequiredField(field string) error { return fieldErr{field: field} }
