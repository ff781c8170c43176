package session

// Player is one seat, 1..N, within a session. Field visibility for
// wire/storage purposes is decided entirely in json.go — this struct
// carries no json tags of its own since the public `state` event and
// the persisted snapshot expose different subsets.
type Player struct {
	ID   int
	Name string

	TimeRemaining  int64 // ms, clamped [0, MaxTimeMS]
	Life           int
	DrunkCounter   int
	GenericCounter int
	Penalties      int
	IsEliminated   bool

	ClaimedBy      string // client id, empty if unclaimed
	ReconnectToken string // opaque secret, persisted only
	TokenExpiry    int64  // epoch ms, persisted only

	TimeoutPending        bool
	TimeoutChoiceDeadline int64 // epoch ms, persisted only

	Color string
}

func newPlayer(id int, initialTime int64, startingLife int) *Player {
	life := DefaultLife
	if startingLife != 0 {
		life = startingLife
	}
	return &Player{
		ID:            id,
		TimeRemaining: clampInt64(initialTime, 0, MaxTimeMS),
		Life:          clampInt(life, MinLife, MaxLife),
	}
}
