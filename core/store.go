package core

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hc-network/gcond/params"
)

// reducerFn applies one action to state. Reducers run only on the store
// goroutine and never re-enter the store.
type reducerFn func(st *State, a Action)

// Store is the single-writer state machine. Actions are applied in FIFO
// order off a bounded queue; producers block when the queue is full.
// Observers are woken after every application.
type Store struct {
	mu     sync.RWMutex
	state  *State
	notify chan struct{}

	actions chan Action
	reduce  reducerFn
	quit    chan struct{}
	done    chan struct{}
	log     *logrus.Entry
}

// NewStore starts the reducer goroutine over a fresh state.
func NewStore(reduce reducerFn) *Store {
	s := &Store{
		state:   newState(),
		notify:  make(chan struct{}),
		actions: make(chan Action, params.ActionQueueBound),
		reduce:  reduce,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		log:     logrus.WithField("pkg", "core"),
	}
	go s.loop()
	return s
}

// Stop drains the reducer goroutine.
func (s *Store) Stop() {
	close(s.quit)
	<-s.done
}

func (s *Store) loop() {
	defer close(s.done)
	for {
		select {
		case a := <-s.actions:
			s.apply(a)
		case <-s.quit:
			// Drain what is already queued, then exit.
			for {
				select {
				case a := <-s.actions:
					s.apply(a)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) apply(a Action) {
	s.mu.Lock()
	s.reduce(s.state, a)
	// Wake every observer of the previous snapshot.
	close(s.notify)
	s.notify = make(chan struct{})
	s.mu.Unlock()
}

// Dispatch enqueues one action, blocking when the queue is full.
func (s *Store) Dispatch(a Action) {
	select {
	case s.actions <- a:
	case <-s.quit:
	}
}

// View runs fn under the read lock against the current snapshot. fn must
// not dispatch or block.
func (s *Store) View(fn func(st *State)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// watch returns the channel closed at the next state change.
func (s *Store) watch() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notify
}

// WaitFor blocks until pred observes a satisfying snapshot or ctx ends.
// The predicate re-runs after every reduction.
func (s *Store) WaitFor(ctx context.Context, pred func(st *State) bool) error {
	for {
		var ok bool
		ch := s.watch()
		s.View(func(st *State) { ok = pred(st) })
		if ok {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-s.quit:
			return context.Canceled
		}
	}
}
