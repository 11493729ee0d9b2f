package agent

import "fmt"

// State is one phase of the answer pipeline. Every session walks an explicit
// path through these states; illegal jumps are programming errors and fail
// loudly rather than silently.
type State int

const (
	StateStarted State = iota
	StateRetrieving
	StateGenerating
	StateValidating
	StateEscalated
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateRetrieving:
		return "retrieving"
	case StateGenerating:
		return "generating"
	case StateValidating:
		return "validating"
	case StateEscalated:
		return "escalated"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// transitions is the full set of legal state changes. Retrieving loops once
// for the reformulated second round; Validating loops back to Generating for
// the single regeneration attempt, and back to Retrieving when a validated
// answer turned out ungrounded and a reformulated search round remains.
var transitions = map[State][]State{
	StateStarted:    {StateRetrieving},
	StateRetrieving: {StateRetrieving, StateGenerating, StateEscalated},
	StateGenerating: {StateValidating, StateEscalated},
	StateValidating: {StateRetrieving, StateGenerating, StateDone, StateEscalated},
	StateEscalated:  {},
	StateDone:       {},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// session tracks one question's walk through the pipeline.
type session struct {
	id    string
	state State
	trace []string
}

func newSession(id string) *session {
	return &session{
		id:    id,
		state: StateStarted,
		trace: []string{StateStarted.String()},
	}
}

func (s *session) transition(to State) error {
	if !canTransition(s.state, to) {
		return fmt.Errorf("illegal transition %s -> %s", s.state, to)
	}
	s.state = to
	s.trace = append(s.trace, to.String())
	return nil
}

func (s *session) terminal() bool {
	return s.state == StateDone || s.state == StateEscalated
}
