package relay

// State is a step of a single pipeline run.
type State int

const (
	Received State = iota
	Downloading
	Transcribing
	Restyling
	Done
	Failed
)

var stateNames = [...]string{
	Received:     "received",
	Downloading:  "downloading",
	Transcribing: "transcribing",
	Restyling:    "restyling",
	Done:         "done",
	Failed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}
