package call

type State int32

const (
	Idle State = iota
	TokenRequested
	RoomJoining
	RoomJoined
	Publishing
	Active
	Leaving
	Closed
)

var stateNames = [...]string{
	Idle:           "idle",
	TokenRequested: "token_requested",
	RoomJoining:    "room_joining",
	RoomJoined:     "room_joined",
	Publishing:     "publishing",
	Active:         "active",
	Leaving:        "leaving",
	Closed:         "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

var transitions = map[State][]State{
	Idle:           {TokenRequested, Closed},
	TokenRequested: {RoomJoining, Leaving},
	RoomJoining:    {RoomJoined, Leaving},
	RoomJoined:     {Publishing, Leaving},
	Publishing:     {Active, Leaving},
	Active:         {Leaving},
	Leaving:        {Closed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// mediaReady reports whether device toggles apply in s.
func (s State) mediaReady() bool { return s == Publishing || s == Active }
