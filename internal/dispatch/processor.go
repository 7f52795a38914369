// Package dispatch implements the Request Processor (§4.6): it runs each
// session's requests through its own FIFO, applies access control, and maps
// every wire operation onto the Data Manager, Notification Processor or
// Access Control component that owns it.
package dispatch

import (
	"strconv"

	"github.com/cuemby/sysrepo-engine/internal/access"
	"github.com/cuemby/sysrepo-engine/internal/engine"
	"github.com/cuemby/sysrepo-engine/internal/metrics"
	"github.com/cuemby/sysrepo-engine/internal/notify"
	"github.com/cuemby/sysrepo-engine/internal/schema"
	"github.com/cuemby/sysrepo-engine/internal/session"
	"github.com/cuemby/sysrepo-engine/internal/telemetry"
	"github.com/cuemby/sysrepo-engine/internal/transport"
	"github.com/cuemby/sysrepo-engine/internal/wire"
)

// Processor implements transport.RequestHandler, fanning out wire.Request
// operations to the engine's components.
type Processor struct {
	engine    *engine.Handle
	sessions  *session.Manager
	access    *access.Controller
	iterators *access.IteratorRegistry
	subs      *notify.Index
	installed map[string]*schema.Module
}

// New creates a Request Processor bound to every component it dispatches
// to. installable is the set of schema modules module_install may activate
// by name (internal/builtin.Registry() in production, a smaller fixture in
// tests).
func New(h *engine.Handle, sessions *session.Manager, ctl *access.Controller, iterators *access.IteratorRegistry, subs *notify.Index, installable map[string]*schema.Module) *Processor {
	return &Processor{
		engine:    h,
		sessions:  sessions,
		access:    ctl,
		iterators: iterators,
		subs:      subs,
		installed: installable,
	}
}

// Handle implements transport.RequestHandler. session_start is handled
// inline since no session exists yet to queue it on; every other operation
// runs through the target session's own FIFO so per-session ordering (§5)
// holds even though the connection's goroutine blocks here until the job
// completes.
func (p *Processor) Handle(conn transport.Conn, req *wire.Request) *wire.Response {
	log := telemetry.WithComponent("dispatch")
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RequestDuration, string(req.Op))

	var resp *wire.Response
	if req.Op == wire.OpSessionStart {
		resp = p.sessionStart(conn, req)
	} else if sess, ok := p.sessions.Session(req.SessionID); ok {
		resp = p.runQueued(sess, conn, req)
	} else {
		resp = errResp(req, engine.NotFound, "", "unknown session %d", req.SessionID)
	}

	code := "OK"
	if len(resp.Errors) > 0 {
		code = resp.Errors[0].Code
	}
	metrics.RequestsTotal.WithLabelValues(string(req.Op), code).Inc()
	if code != "OK" {
		log.Debug().Str("op", string(req.Op)).Str("code", code).Uint32("session_id", req.SessionID).Msg("request error")
	}
	return resp
}

// runQueued enqueues the request onto the session's FIFO and blocks until it
// completes. Enqueue itself blocks the caller while the session's backlog
// is full (§9 Open Question (a)), so the only failure here is the session
// having been dropped out from under the request.
func (p *Processor) runQueued(sess *session.Session, conn transport.Conn, req *wire.Request) *wire.Response {
	result := make(chan *wire.Response, 1)
	err := sess.Enqueue(func() {
		result <- p.dispatch(sess, conn, req)
	})
	if err != nil {
		return errResp(req, engine.NotFound, "", "session %d: %v", req.SessionID, err)
	}
	metrics.RequestQueueDepth.WithLabelValues(strconv.FormatUint(uint64(req.SessionID), 10)).Set(float64(sess.Outstanding()))
	return <-result
}

// ConnectionClosed implements transport.RequestHandler: it tears down every
// session the connection held, releasing engine locks/overlays, forgetting
// any open iterators, and purging the connection's subscriptions — the
// cleanup §3 describes as happening "on session end (including abrupt
// disconnect)".
func (p *Processor) ConnectionClosed(connID uint64) {
	ids := p.sessions.RemoveConnection(connID)
	for _, id := range ids {
		p.engine.SessionEnd(id)
		p.iterators.CloseSession(id)
		metrics.SessionsActive.Dec()
	}
	if p.subs != nil {
		_ = p.subs.PurgeAddress(transport.DestinationAddress(connID))
	}
}

func (p *Processor) sessionStart(conn transport.Conn, req *wire.Request) *wire.Response {
	var effective *session.Credentials
	if req.EffectiveUser != nil {
		effective = &session.Credentials{UID: *req.EffectiveUser, GID: conn.RealUser.GID}
	}

	ds := req.Datastore
	if ds == "" {
		ds = "running"
	}

	sess, err := p.sessions.SessionCreate(conn.ID, ds, effective)
	if err != nil {
		if err == session.ErrUnauthorizedEffectiveUser {
			return errResp(req, engine.Unauthorized, "", "%v", err)
		}
		return errResp(req, engine.Internal, "", "%v", err)
	}
	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.Inc()

	return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op}
}
