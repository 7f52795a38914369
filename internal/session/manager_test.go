package session

import (
	"sync"
	"testing"
	"time"
)

func TestSessionCreateDefaultsEffectiveUserToReal(t *testing.T) {
	m := NewManager()
	conn := m.AddConnection(Credentials{UID: 1000, GID: 1000})

	sess, err := m.SessionCreate(conn.ID, "running", nil)
	if err != nil {
		t.Fatalf("SessionCreate() error = %v", err)
	}
	if sess.EffectiveUser != sess.RealUser {
		t.Errorf("EffectiveUser = %+v, want it to default to RealUser %+v", sess.EffectiveUser, sess.RealUser)
	}
}

func TestSessionCreateUnprivilegedCannotAssumeOtherUser(t *testing.T) {
	m := NewManager()
	conn := m.AddConnection(Credentials{UID: 1000, GID: 1000})

	other := Credentials{UID: 2000, GID: 2000}
	_, err := m.SessionCreate(conn.ID, "running", &other)
	if err != ErrUnauthorizedEffectiveUser {
		t.Errorf("SessionCreate() error = %v, want ErrUnauthorizedEffectiveUser", err)
	}
}

func TestSessionCreatePrivilegedMayAssumeAnyUser(t *testing.T) {
	m := NewManager()
	conn := m.AddConnection(Credentials{UID: 0, GID: 0})

	other := Credentials{UID: 2000, GID: 2000}
	sess, err := m.SessionCreate(conn.ID, "running", &other)
	if err != nil {
		t.Fatalf("SessionCreate() error = %v", err)
	}
	if sess.EffectiveUser != other {
		t.Errorf("EffectiveUser = %+v, want %+v", sess.EffectiveUser, other)
	}
}

func TestSessionCreateUnknownConnection(t *testing.T) {
	m := NewManager()
	if _, err := m.SessionCreate(999, "running", nil); err != ErrUnknownConnection {
		t.Errorf("SessionCreate() error = %v, want ErrUnknownConnection", err)
	}
}

func TestSessionDropRemovesFromBothTables(t *testing.T) {
	m := NewManager()
	conn := m.AddConnection(Credentials{UID: 1000})
	sess, _ := m.SessionCreate(conn.ID, "running", nil)

	m.SessionDrop(sess.ID)

	if _, ok := m.Session(sess.ID); ok {
		t.Error("session still present after SessionDrop")
	}
	c, _ := m.Connection(conn.ID)
	c.mu.Lock()
	_, stillThere := c.sessions[sess.ID]
	c.mu.Unlock()
	if stillThere {
		t.Error("session still registered on its connection after SessionDrop")
	}
}

func TestRemoveConnectionDropsItsSessions(t *testing.T) {
	m := NewManager()
	conn := m.AddConnection(Credentials{UID: 1000})
	a, _ := m.SessionCreate(conn.ID, "running", nil)
	b, _ := m.SessionCreate(conn.ID, "candidate", nil)

	dropped := m.RemoveConnection(conn.ID)
	if len(dropped) != 2 {
		t.Fatalf("RemoveConnection() dropped %d sessions, want 2", len(dropped))
	}

	if _, ok := m.Session(a.ID); ok {
		t.Error("session a still present after RemoveConnection")
	}
	if _, ok := m.Session(b.ID); ok {
		t.Error("session b still present after RemoveConnection")
	}
	if _, ok := m.Connection(conn.ID); ok {
		t.Error("connection still present after RemoveConnection")
	}
}

func TestSessionEnqueueRunsJobsInOrder(t *testing.T) {
	m := NewManager()
	conn := m.AddConnection(Credentials{UID: 1000})
	sess, _ := m.SessionCreate(conn.ID, "running", nil)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)

	for i := 0; i < 3; i++ {
		i := i
		if err := sess.Enqueue(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}

	wg.Wait()
	for i, v := range order {
		if v != i {
			t.Errorf("order = %v, want 0,1,2 (FIFO)", order)
			break
		}
	}
}

func TestSessionEnqueueAfterDropFails(t *testing.T) {
	m := NewManager()
	conn := m.AddConnection(Credentials{UID: 1000})
	sess, _ := m.SessionCreate(conn.ID, "running", nil)

	m.SessionDrop(sess.ID)

	// Give the Run goroutine a moment to observe the closed channel and
	// return before asserting the post-stop Enqueue behaviour.
	time.Sleep(10 * time.Millisecond)

	if err := sess.Enqueue(func() {}); err != ErrSessionStopped {
		t.Errorf("Enqueue() after drop error = %v, want ErrSessionStopped", err)
	}
}

func TestSessionEnqueueBlocksOnceQueueFull(t *testing.T) {
	m := NewManager()
	conn := m.AddConnection(Credentials{UID: 1000})
	sess, _ := m.SessionCreate(conn.ID, "running", nil)

	block := make(chan struct{})
	// Occupy the Run goroutine with one blocking job, then fill the
	// buffer behind it.
	if err := sess.Enqueue(func() { <-block }); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	for i := 0; i < requestQueueCapacity; i++ {
		if err := sess.Enqueue(func() {}); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}

	// The queue (and the one job already running) is now fully occupied;
	// one more Enqueue must block instead of erroring.
	enqueued := make(chan error, 1)
	go func() { enqueued <- sess.Enqueue(func() {}) }()

	select {
	case err := <-enqueued:
		t.Fatalf("Enqueue() on a full queue returned %v without blocking", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(block)

	select {
	case err := <-enqueued:
		if err != nil {
			t.Errorf("Enqueue() after room freed up error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue() never unblocked once room freed up")
	}
}

func TestSessionEnqueueUnblocksWithErrSessionStoppedWhenDropped(t *testing.T) {
	m := NewManager()
	conn := m.AddConnection(Credentials{UID: 1000})
	sess, _ := m.SessionCreate(conn.ID, "running", nil)

	block := make(chan struct{})
	defer close(block)
	if err := sess.Enqueue(func() { <-block }); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	for i := 0; i < requestQueueCapacity; i++ {
		if err := sess.Enqueue(func() {}); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}

	enqueued := make(chan error, 1)
	go func() { enqueued <- sess.Enqueue(func() {}) }()

	// Give the goroutine a moment to block inside Enqueue before dropping.
	time.Sleep(10 * time.Millisecond)
	m.SessionDrop(sess.ID)

	select {
	case err := <-enqueued:
		if err != ErrSessionStopped {
			t.Errorf("Enqueue() on a dropped session = %v, want ErrSessionStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue() never unblocked once the session was dropped")
	}
}
