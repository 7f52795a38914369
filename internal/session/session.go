// Package session implements the Session Manager (§4.2): the connection and
// session tables, and each session's bounded request queue.
package session

import (
	"sync"
)

// Credentials carries a peer's SO_PEERCRED-equivalent uid/gid.
type Credentials struct {
	UID uint32
	GID uint32
}

// Privileged reports whether these credentials may assume any effective
// user (root, uid 0).
func (c Credentials) Privileged() bool {
	return c.UID == 0
}

// requestQueueCapacity bounds a session's pending-request FIFO (§9 Open
// Question (a): once 64 requests are already in flight, Enqueue blocks the
// caller — the connection's reader goroutine — until the Data Manager drains
// one, applying backpressure instead of dropping the request or growing the
// queue unboundedly. This preserves per-session FIFO delivery: a request
// never completes out of order or gets silently lost for arriving while the
// session is busy.
const requestQueueCapacity = 64

// Session is one client's editing context: its identity, its target
// datastore, and its FIFO of pending requests (§3 "Session"). The FIFO
// itself is a mutex/cond-guarded slice rather than a buffered channel
// (mirrored on brennhill-gasoline-mcp-ai-devtools/internal/queries'
// queryCond-guarded pending-query slice), since a channel can't let Enqueue
// block for room *and* wake cleanly on stop without risking a send racing a
// concurrent close.
type Session struct {
	ID           uint32
	ConnectionID uint64
	RealUser     Credentials
	EffectiveUser Credentials
	Datastore    string

	mu          sync.Mutex
	notFull     *sync.Cond
	notEmpty    *sync.Cond
	queue       []func()
	stopped     bool
	outstanding int
}

func newSession(id uint32, connID uint64, real, effective Credentials, ds string) *Session {
	s := &Session{
		ID:           id,
		ConnectionID: connID,
		RealUser:     real,
		EffectiveUser: effective,
		Datastore:    ds,
	}
	s.notFull = sync.NewCond(&s.mu)
	s.notEmpty = sync.NewCond(&s.mu)
	return s
}

// Enqueue appends a job to the session's FIFO, blocking while the queue is
// at capacity so the caller is held until room frees up rather than having
// its request dropped (§9 Open Question (a)). It returns ErrSessionStopped
// once the session has been dropped, whether or not the caller was already
// blocked waiting for room; a job that was already accepted before stop was
// called is still run by Run.
func (s *Session) Enqueue(job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) >= requestQueueCapacity && !s.stopped {
		s.notFull.Wait()
	}
	if s.stopped {
		return ErrSessionStopped
	}
	s.queue = append(s.queue, job)
	s.outstanding++
	s.notEmpty.Signal()
	return nil
}

// Run drains the session's queue one job at a time, giving per-session
// sequential consistency (§5) while letting different sessions run
// concurrently on their own goroutine. It keeps draining whatever is left
// after stop fires before returning, so no job accepted by Enqueue is ever
// abandoned.
func (s *Session) Run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.notEmpty.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		job := s.queue[0]
		s.queue = s.queue[1:]
		s.notFull.Signal()
		s.mu.Unlock()

		job()

		s.mu.Lock()
		s.outstanding--
		s.mu.Unlock()
	}
}

// Outstanding reports the number of jobs enqueued but not yet finished.
func (s *Session) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outstanding
}

// stop marks the session stopped and wakes every blocked Enqueue/Run
// waiter so they can recheck it. Safe to call more than once.
func (s *Session) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.notFull.Broadcast()
	s.notEmpty.Broadcast()
}
