package session

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/mtgturn/turnserver/internal/apperr"
	"github.com/mtgturn/turnserver/internal/campaign"
)

// GameResult is passed to Extension.OnGameComplete when a session (or
// campaign round) reaches a terminal state.
type GameResult struct {
	WinnerID *int
	Draw     bool
}

// Extension is the narrow interface a mode variant implements on top
// of the shared core state. It replaces a class hierarchy: the preset
// configuration is data, not inheritance, and campaignExtension is
// the only non-trivial implementation.
type Extension interface {
	ModeName() Mode
	StartingLife() int // 0 means "use the mode default" (20)
	OnClaim(s *Session, id int, clientID string)
	OnNameChanged(s *Session, id int, name string)
	OnPlayerLifeChanged(s *Session, id int, old, new int)
	OnGameComplete(s *Session, result GameResult)
	GetModeState() interface{}
	RestoreModeState(raw json.RawMessage) error
}

// Session is one game instance, identified by a 6-char code. It is
// mutated exclusively from within the coordinator's per-session
// critical section (internal/coordinator) — it carries no mutex of
// its own.
type Session struct {
	ID          string
	Mode        Mode
	DisplayName string
	Status      Status

	CreatedAt    time.Time
	LastActivity time.Time
	LastTick     time.Time // monotonic-ish wall clock used for elapsed-time calc

	OwnerClientID string

	Players      []*Player // ordered, index 0 == player 1
	ActivePlayer int       // 0 means "none"

	Interrupts []int // stack; tail has priority; duplicates allowed

	Targeting TargetingSubState

	Winner *int // player id, nil if unset/draw

	Settings Settings

	IsClosed bool

	ext Extension

	// connectedClients tracks which client ids currently have an open
	// transport connection to this session, for the reaper's
	// "zero connected clients" rule and handleClientDisconnect.
	connectedClients map[string]struct{}
}

// TargetingSubState is the targeting resolution sub-state (spec §4.1).
type TargetingSubState struct {
	State               TargetingState
	TargetedPlayers     []int
	AwaitingPriority    []int
	OriginalActivePlayer int
}

// New constructs a fresh casual session with the given id and
// settings. Use NewCampaign for campaign mode.
func New(id string, settings Settings, now time.Time) *Session {
	s := &Session{
		ID:               id,
		Mode:             ModeCasual,
		Status:           StatusWaiting,
		CreatedAt:        now,
		LastActivity:     now,
		Settings:         settings,
		ext:              &casualExtension{},
		connectedClients: map[string]struct{}{},
	}
	s.initPlayers(now)
	return s
}

// NewCampaign constructs a fresh campaign session for the given
// preset.
func NewCampaign(id string, settings Settings, preset string, now time.Time) (*Session, error) {
	cfg, ok := campaign.Get(preset)
	if !ok {
		return nil, apperr.Validation("unknown campaign preset")
	}
	ids := make([]int, settings.PlayerCount)
	for i := range ids {
		ids[i] = i + 1
	}
	st := campaign.NewState(preset, cfg, ids)

	if settings.BonusTime == 0 && cfg.BonusTime != 0 {
		settings.BonusTime = cfg.BonusTime
	}

	s := &Session{
		ID:               id,
		Mode:             ModeCampaign,
		Status:           StatusWaiting,
		CreatedAt:        now,
		LastActivity:     now,
		Settings:         settings,
		connectedClients: map[string]struct{}{},
	}
	s.ext = &campaignExtension{state: st}
	s.initPlayers(now)
	campaign.RecalculateAllScores(st)
	return s, nil
}

func (s *Session) initPlayers(now time.Time) {
	s.Players = make([]*Player, s.Settings.PlayerCount)
	for i := 0; i < s.Settings.PlayerCount; i++ {
		id := i + 1
		p := newPlayer(id, s.Settings.InitialTime, s.ext.StartingLife())
		if ce, ok := s.ext.(*campaignExtension); ok {
			if name, ok := ce.state.PlayerNames[id]; ok {
				p.Name = name
			}
			if claim, ok := ce.state.PlayerClaims[id]; ok {
				p.ClaimedBy = claim
			}
		}
		s.Players[i] = p
	}
	s.ActivePlayer = 0
	s.Interrupts = nil
	s.Targeting = TargetingSubState{State: TargetingNone}
	s.LastTick = now
}

// Player returns the player with the given id, or nil.
func (s *Session) Player(id int) *Player {
	if id < 1 || id > len(s.Players) {
		return nil
	}
	return s.Players[id-1]
}

// NonEliminatedCount returns how many players are still in the game.
func (s *Session) NonEliminatedCount() int {
	n := 0
	for _, p := range s.Players {
		if !p.IsEliminated {
			n++
		}
	}
	return n
}

// nonEliminatedIDsSorted returns the ids of non-eliminated players in
// ascending order.
func (s *Session) nonEliminatedIDsSorted() []int {
	var ids []int
	for _, p := range s.Players {
		if !p.IsEliminated {
			ids = append(ids, p.ID)
		}
	}
	sort.Ints(ids)
	return ids
}

// touch refreshes the last-activity timestamp, called by every
// routed command.
func (s *Session) touch(now time.Time) {
	s.LastActivity = now
}

// ConnectedClientCount reports how many distinct clients are
// currently attached, used by the reaper's empty-session rule.
func (s *Session) ConnectedClientCount() int {
	return len(s.connectedClients)
}

// MarkConnected/MarkDisconnected track transport attachment.
// MarkConnected is invoked by the router when a client creates, joins
// or reconnects to the session; MarkDisconnected is reached through
// HandleClientDisconnect when the transport unregisters a client.
// Both work outside of a player claim (a client may be connected but
// unclaimed, e.g. spectating before choosing a seat).
func (s *Session) MarkConnected(clientID string, now time.Time) {
	s.connectedClients[clientID] = struct{}{}
	s.touch(now)
}

func (s *Session) MarkDisconnected(clientID string, now time.Time) {
	delete(s.connectedClients, clientID)
	s.touch(now)
}
