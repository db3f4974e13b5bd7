// Package session defines the c2w peer session states and the transitions
// each role may take between them.
package session

import (
	"errors"
	"fmt"
)

// State is the handshake/room state of one peer session.
type State uint8

const (
	Disconnected State = iota
	Connecting
	LoginOkPending
	UserListPending
	MovieListPending
	UserListReceived
	MovieListReceived
	InitComplete
	CorrectUsernamePending
	InRoom
	ToRoomRequestPending
	ToOutOfSystemPending
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case LoginOkPending:
		return "LoginOkPending"
	case UserListPending:
		return "UserListPending"
	case MovieListPending:
		return "MovieListPending"
	case UserListReceived:
		return "UserListReceived"
	case MovieListReceived:
		return "MovieListReceived"
	case InitComplete:
		return "InitComplete"
	case CorrectUsernamePending:
		return "CorrectUsernamePending"
	case InRoom:
		return "InRoom"
	case ToRoomRequestPending:
		return "ToRoomRequestPending"
	case ToOutOfSystemPending:
		return "ToOutOfSystemPending"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Role selects the transition table.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

// String returns the string representation of the role.
func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// ErrInvalidTransition is returned when a role's table has no edge between
// two states.
var ErrInvalidTransition = errors.New("session: invalid state transition")

type edges map[State][]State

// Every state may drop to Disconnected (explicit close or lost transport);
// that edge is implied and not listed below.
var (
	clientEdges = edges{
		Disconnected:         {Connecting},
		Connecting:           {Connecting, UserListReceived, MovieListReceived},
		UserListReceived:     {InitComplete},
		MovieListReceived:    {InitComplete},
		InitComplete:         {InRoom},
		InRoom:               {ToRoomRequestPending, ToOutOfSystemPending},
		ToRoomRequestPending: {InRoom},
	}

	serverEdges = edges{
		Disconnected:     {Connecting},
		Connecting:       {LoginOkPending, CorrectUsernamePending},
		LoginOkPending:   {UserListPending},
		UserListPending:  {MovieListPending},
		MovieListPending: {InitComplete},
		InitComplete:     {InRoom},
		InRoom:           {InRoom},
	}
)

// CanTransition reports whether role may move from one state to another.
func CanTransition(role Role, from, to State) bool {
	if to == Disconnected {
		return true
	}
	// A login request restarts the server handshake from any state.
	if role == RoleServer && (to == LoginOkPending || to == CorrectUsernamePending) {
		return true
	}
	table := clientEdges
	if role == RoleServer {
		table = serverEdges
	}
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Machine tracks the state of one peer session.
// It is not safe for concurrent use.
type Machine struct {
	role  Role
	state State
}

// NewMachine returns a machine for role in state Disconnected.
func NewMachine(role Role) *Machine {
	return &Machine{role: role}
}

// Role returns the machine's role.
func (m *Machine) Role() Role {
	return m.role
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Is reports whether the current state is one of states.
func (m *Machine) Is(states ...State) bool {
	for _, s := range states {
		if m.state == s {
			return true
		}
	}
	return false
}

// Transition moves to state to, or returns ErrInvalidTransition and leaves
// the state unchanged.
func (m *Machine) Transition(to State) error {
	if !CanTransition(m.role, m.state, to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, m.role, m.state, to)
	}
	m.state = to
	return nil
}
