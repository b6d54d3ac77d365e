// Package auth owns the client session: the data model, the state machine that turns
// login/register/refresh/logout into one authoritative State, the observer bus that
// publishes it, and the process-wide context that holds the manager.
//
// The Manager orchestrates a TokenStore (encrypted persistence) and a Backend (the
// identity endpoints). Every committed transition is persisted before it is published.
package auth

// Phase is the state machine position.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseInitializing
	PhaseAuthenticated
	PhaseUnauthenticated
	PhaseRefreshing
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseInitializing:
		return "initializing"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseRefreshing:
		return "refreshing"
	}
	return "unknown"
}

// State is a snapshot of the authentication state. Values are never mutated after
// publication; pointer fields point at copies owned by the snapshot.
type State struct {
	User        *User
	Session     *Session
	Phase       Phase
	Initialized bool
	// Err is the error that settled the state to Unauthenticated, if any.
	Err error
}

// Authenticated reports whether the state holds a usable session. A refresh in
// flight still counts: the previous session stays valid until replaced.
func (s State) Authenticated() bool {
	return s.Session != nil && s.User != nil &&
		(s.Phase == PhaseAuthenticated || s.Phase == PhaseRefreshing)
}

func authenticatedState(d AuthData) State {
	u, sess := d.User, d.Session
	return State{User: &u, Session: &sess, Phase: PhaseAuthenticated, Initialized: true}
}

func unauthenticatedState(err error) State {
	return State{Phase: PhaseUnauthenticated, Initialized: true, Err: err}
}
