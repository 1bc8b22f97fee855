package turn

import (
	"sync"
	"time"
)

// StateChange represents a state transition event.
type StateChange struct {
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
}

// StateListener observes turn state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// StateListenerFunc adapts a function to StateListener.
type StateListenerFunc func(event StateChange)

func (f StateListenerFunc) OnStateChange(event StateChange) { f(event) }

var validTransitions = map[State][]State{
	StateListenIdle:        {StateUserSpeaking, StateAwaitingReply},
	StateUserSpeaking:      {StateAwaitingReply, StateListenIdle},
	StateAwaitingReply:     {StateAssistantSpeaking, StateListenIdle, StateUserSpeaking},
	StateAssistantSpeaking: {StateListenIdle, StateUserSpeaking, StateAwaitingReply},
}

// stateMachine implements the finite state machine for turn management.
type stateMachine struct {
	mu           sync.RWMutex
	currentState State
	enteredAt    time.Time
	listeners    []StateListener
}

func newStateMachine() *stateMachine {
	return &stateMachine{currentState: StateListenIdle, enteredAt: time.Now()}
}

// State returns the current state.
func (tm *stateMachine) State() State {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.currentState
}

// Since returns how long the machine has been in its current state.
func (tm *stateMachine) Since() time.Duration {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return time.Since(tm.enteredAt)
}

func transitionValid(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves to a new state with validation.
func (tm *stateMachine) Transition(state State, reason string) error {
	return tm.TransitionFrom(nil, state, reason)
}

// TransitionFrom moves to state only if the current state is one of from
// (any state when from is empty). The check and the move happen under one
// lock. A self transition is a no-op.
func (tm *stateMachine) TransitionFrom(from []State, state State, reason string) error {
	tm.mu.Lock()
	current := tm.currentState
	if len(from) > 0 && !containsState(from, current) {
		tm.mu.Unlock()
		return &InvalidTransitionError{From: current, To: state}
	}
	if current == state {
		tm.mu.Unlock()
		return nil
	}
	if !transitionValid(current, state) {
		tm.mu.Unlock()
		return &InvalidTransitionError{From: current, To: state}
	}
	now := time.Now()
	tm.currentState = state
	tm.enteredAt = now
	listeners := make([]StateListener, len(tm.listeners))
	copy(listeners, tm.listeners)
	tm.mu.Unlock()

	// Listeners run outside the lock so they may query the machine.
	event := StateChange{FromState: current, ToState: state, Timestamp: now, Reason: reason}
	for _, listener := range listeners {
		listener.OnStateChange(event)
	}
	return nil
}

// AddListener registers a listener for state change events.
func (tm *stateMachine) AddListener(listener StateListener) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.listeners = append(tm.listeners, listener)
}

func containsState(list []State, s State) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// InvalidTransitionError represents an invalid state transition attempt
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}
