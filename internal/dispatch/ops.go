package dispatch

import (
	"github.com/cuemby/sysrepo-engine/internal/access"
	"github.com/cuemby/sysrepo-engine/internal/datastore"
	"github.com/cuemby/sysrepo-engine/internal/engine"
	"github.com/cuemby/sysrepo-engine/internal/metrics"
	"github.com/cuemby/sysrepo-engine/internal/notify"
	"github.com/cuemby/sysrepo-engine/internal/session"
	"github.com/cuemby/sysrepo-engine/internal/transport"
	"github.com/cuemby/sysrepo-engine/internal/wire"
)

// dispatch runs on the target session's own goroutine (via runQueued), so it
// may call engine methods freely without additional synchronisation beyond
// what internal/engine.Handle itself provides.
func (p *Processor) dispatch(sess *session.Session, conn transport.Conn, req *wire.Request) *wire.Response {
	switch req.Op {
	case wire.OpSessionStop:
		return p.sessionStop(sess, req)
	case wire.OpSessionRefresh:
		return p.sessionRefresh(sess, req)

	case wire.OpListSchemas:
		return p.listSchemas(req)
	case wire.OpGetSchema:
		return p.getSchema(req)

	case wire.OpGetItem:
		return p.getItem(sess, req)
	case wire.OpGetItems:
		return p.getItems(sess, req)
	case wire.OpGetItemsIter:
		return p.getItemsIter(sess, req)
	case wire.OpGetItemNext:
		return p.getItemNext(req)

	case wire.OpSetItem:
		return p.setItem(sess, req)
	case wire.OpDeleteItem:
		return p.deleteItem(sess, req)
	case wire.OpMoveItem:
		return p.moveItem(sess, req)

	case wire.OpValidate:
		return p.validate(sess, req)
	case wire.OpCommit:
		return p.commit(sess, req)
	case wire.OpDiscardChanges:
		p.engine.DiscardChanges(sess.ID)
		return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op}

	case wire.OpLockModule:
		return p.lockModule(sess, req)
	case wire.OpUnlockModule:
		return p.unlockModule(sess, req)
	case wire.OpLockDatastore:
		return p.lockDatastore(sess, req)
	case wire.OpUnlockDatastore:
		return p.unlockDatastore(sess, req)

	case wire.OpModuleInstall:
		return p.moduleInstall(sess, req)
	case wire.OpFeatureEnable:
		return toResp(req, sess.ID, p.engine.SetFeature(req.Module, req.Feature, req.Enable))

	case wire.OpSubscribe:
		return p.subscribe(conn, sess, req)
	case wire.OpUnsubscribe:
		return p.unsubscribe(conn, sess, req)

	default:
		return errResp(req, engine.Unsupported, "", "unsupported operation %q", req.Op)
	}
}

func (p *Processor) sessionStop(sess *session.Session, req *wire.Request) *wire.Response {
	p.engine.SessionEnd(sess.ID)
	p.iterators.CloseSession(sess.ID)
	p.sessions.SessionDrop(sess.ID)
	metrics.SessionsActive.Dec()
	return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op}
}

func (p *Processor) sessionRefresh(sess *session.Session, req *wire.Request) *wire.Response {
	errs := p.engine.SessionRefreshAll(sess.ID, sess.Datastore)
	if len(errs) > 0 {
		return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op, Errors: toErrorDetails(errs)}
	}
	return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op}
}

func (p *Processor) listSchemas(req *wire.Request) *wire.Response {
	mods := p.engine.ListSchemas()
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = m.Name
	}
	return &wire.Response{ID: req.ID, SessionID: req.SessionID, Op: req.Op, Schemas: names}
}

func (p *Processor) getSchema(req *wire.Request) *wire.Response {
	text, err := p.engine.GetSchema(req.Module, req.Revision)
	if err != nil {
		return errFromEngine(req, err)
	}
	return &wire.Response{ID: req.ID, SessionID: req.SessionID, Op: req.Op, Schema: text}
}

func (p *Processor) getItem(sess *session.Session, req *wire.Request) *wire.Response {
	module, err := moduleFromPath(req.Path)
	if err != nil {
		return errResp(req, engine.InvalArg, req.Path, "%v", err)
	}
	if err := p.access.Check(sess.EffectiveUser, module, sess.Datastore, access.Read); err != nil {
		return errResp(req, engine.Unauthorized, req.Path, "%v", err)
	}

	tree, err := p.engine.GetDataTree(sess.ID, module, sess.Datastore)
	if err != nil {
		return errFromEngine(req, err)
	}
	val, err := tree.Get(req.Path)
	if err != nil {
		return errResp(req, engine.BadElement, schemaErrPath(err, req.Path), "%v", err)
	}
	return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op, Values: []wire.Value{{Path: req.Path, Type: valueTypeOf(val), Data: val}}}
}

func (p *Processor) getItems(sess *session.Session, req *wire.Request) *wire.Response {
	module, err := moduleFromPath(req.Path)
	if err != nil {
		return errResp(req, engine.InvalArg, req.Path, "%v", err)
	}
	if err := p.access.Check(sess.EffectiveUser, module, sess.Datastore, access.Read); err != nil {
		return errResp(req, engine.Unauthorized, req.Path, "%v", err)
	}

	tree, err := p.engine.GetDataTree(sess.ID, module, sess.Datastore)
	if err != nil {
		return errFromEngine(req, err)
	}
	items := filterUnderPath(tree.Items(), req.Path)
	return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op, Values: toWireValues(items)}
}

func (p *Processor) getItemsIter(sess *session.Session, req *wire.Request) *wire.Response {
	module, err := moduleFromPath(req.Path)
	if err != nil {
		return errResp(req, engine.InvalArg, req.Path, "%v", err)
	}
	if err := p.access.Check(sess.EffectiveUser, module, sess.Datastore, access.Read); err != nil {
		return errResp(req, engine.Unauthorized, req.Path, "%v", err)
	}

	tree, err := p.engine.GetDataTree(sess.ID, module, sess.Datastore)
	if err != nil {
		return errFromEngine(req, err)
	}
	items := filterUnderPath(tree.Items(), req.Path)
	tok, err := p.iterators.Open(sess.ID, items)
	if err != nil {
		return errResp(req, engine.Internal, req.Path, "%v", err)
	}
	return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op, Iterator: tok}
}

func (p *Processor) getItemNext(req *wire.Request) *wire.Response {
	item, done, err := p.iterators.Next(req.Iterator)
	if err != nil {
		switch err {
		case access.ErrUnknownIterator, access.ErrIteratorDead:
			return errResp(req, engine.InvalArg, "", "%v", err)
		default:
			return errResp(req, engine.Internal, "", "%v", err)
		}
	}
	if done {
		return &wire.Response{ID: req.ID, SessionID: req.SessionID, Op: req.Op, Done: true}
	}
	return &wire.Response{ID: req.ID, SessionID: req.SessionID, Op: req.Op, Values: []wire.Value{{Path: item.Path, Type: valueTypeOf(item.Value), Data: item.Value}}}
}

func (p *Processor) setItem(sess *session.Session, req *wire.Request) *wire.Response {
	module, err := moduleFromPath(req.Path)
	if err != nil {
		return errResp(req, engine.InvalArg, req.Path, "%v", err)
	}
	if err := p.access.Check(sess.EffectiveUser, module, sess.Datastore, access.ReadWrite); err != nil {
		return errResp(req, engine.Unauthorized, req.Path, "%v", err)
	}

	var value any
	if req.Value != nil {
		value = req.Value.Data
	}
	flags := toDatastoreFlags(req.Flags)
	if err := p.engine.SetItem(sess.ID, module, sess.Datastore, req.Path, value, flags); err != nil {
		return errFromEngine(req, err)
	}
	return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op}
}

func (p *Processor) deleteItem(sess *session.Session, req *wire.Request) *wire.Response {
	module, err := moduleFromPath(req.Path)
	if err != nil {
		return errResp(req, engine.InvalArg, req.Path, "%v", err)
	}
	if err := p.access.Check(sess.EffectiveUser, module, sess.Datastore, access.ReadWrite); err != nil {
		return errResp(req, engine.Unauthorized, req.Path, "%v", err)
	}

	flags := toDatastoreFlags(req.Flags)
	if err := p.engine.DeleteItem(sess.ID, module, sess.Datastore, req.Path, flags); err != nil {
		return errFromEngine(req, err)
	}
	return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op}
}

func (p *Processor) moveItem(sess *session.Session, req *wire.Request) *wire.Response {
	module, err := moduleFromPath(req.Path)
	if err != nil {
		return errResp(req, engine.InvalArg, req.Path, "%v", err)
	}
	if err := p.access.Check(sess.EffectiveUser, module, sess.Datastore, access.ReadWrite); err != nil {
		return errResp(req, engine.Unauthorized, req.Path, "%v", err)
	}

	dir, err := toDatastoreDirection(req.Direction)
	if err != nil {
		return errResp(req, engine.Unsupported, req.Path, "%v", err)
	}
	if err := p.engine.MoveList(sess.ID, module, sess.Datastore, req.Path, dir); err != nil {
		return errFromEngine(req, err)
	}
	return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op}
}

func (p *Processor) validate(sess *session.Session, req *wire.Request) *wire.Response {
	timer := metrics.NewTimer()
	errs := p.engine.Validate(sess.ID)
	timer.ObserveDuration(metrics.ValidateDuration)
	if len(errs) > 0 {
		return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op, Errors: toErrorDetails(errs)}
	}
	return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op}
}

func (p *Processor) commit(sess *session.Session, req *wire.Request) *wire.Response {
	timer := metrics.NewTimer()
	errs := p.engine.Commit(sess.ID, sess.Datastore)
	timer.ObserveDuration(metrics.CommitDuration)
	if len(errs) > 0 {
		metrics.CommitsTotal.WithLabelValues("failure").Inc()
		return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op, Errors: toErrorDetails(errs)}
	}
	metrics.CommitsTotal.WithLabelValues("success").Inc()
	return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op}
}

func (p *Processor) lockModule(sess *session.Session, req *wire.Request) *wire.Response {
	err := p.engine.LockModule(sess.ID, req.Module)
	if err == nil {
		metrics.ModuleLocksHeld.Inc()
	}
	return toResp(req, sess.ID, err)
}

func (p *Processor) unlockModule(sess *session.Session, req *wire.Request) *wire.Response {
	err := p.engine.UnlockModule(sess.ID, req.Module)
	if err == nil {
		metrics.ModuleLocksHeld.Dec()
	}
	return toResp(req, sess.ID, err)
}

func (p *Processor) lockDatastore(sess *session.Session, req *wire.Request) *wire.Response {
	err := p.engine.LockDatastore(sess.ID)
	if err == nil {
		metrics.DatastoreLocksHeld.Inc()
	}
	return toResp(req, sess.ID, err)
}

func (p *Processor) unlockDatastore(sess *session.Session, req *wire.Request) *wire.Response {
	err := p.engine.UnlockDatastore(sess.ID)
	if err == nil {
		metrics.DatastoreLocksHeld.Dec()
	}
	return toResp(req, sess.ID, err)
}

func (p *Processor) moduleInstall(sess *session.Session, req *wire.Request) *wire.Response {
	if !sess.RealUser.Privileged() {
		return errResp(req, engine.Unauthorized, "/"+req.Module, "module_install requires a privileged peer")
	}
	mod, ok := p.installed[req.Module]
	if !ok {
		return errResp(req, engine.UnknownModel, "/"+req.Module, "no compiled-in schema for module %q", req.Module)
	}
	if err := p.engine.InstallModule(mod); err != nil {
		return errFromEngine(req, err)
	}
	return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op}
}

func (p *Processor) subscribe(conn transport.Conn, sess *session.Session, req *wire.Request) *wire.Response {
	sub := notify.Subscription{
		Event:              notify.EventKind(req.Event),
		DestinationAddress: transport.DestinationAddress(conn.ID),
		DestinationID:      req.Destination,
		Path:               req.Path,
		ModuleName:         req.Module,
	}
	if err := p.subs.Subscribe(sub); err != nil {
		return errResp(req, engine.IO, "", "subscribe: %v", err)
	}
	transient, durable := p.subs.Count()
	metrics.SubscriptionsActive.WithLabelValues("transient").Set(float64(transient))
	metrics.SubscriptionsActive.WithLabelValues("durable").Set(float64(durable))
	return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op}
}

func (p *Processor) unsubscribe(conn transport.Conn, sess *session.Session, req *wire.Request) *wire.Response {
	sub := notify.Subscription{
		Event:              notify.EventKind(req.Event),
		DestinationAddress: transport.DestinationAddress(conn.ID),
		DestinationID:      req.Destination,
		Path:               req.Path,
		ModuleName:         req.Module,
	}
	if err := p.subs.Unsubscribe(sub); err != nil {
		return errResp(req, engine.IO, "", "unsubscribe: %v", err)
	}
	transient, durable := p.subs.Count()
	metrics.SubscriptionsActive.WithLabelValues("transient").Set(float64(transient))
	metrics.SubscriptionsActive.WithLabelValues("durable").Set(float64(durable))
	return &wire.Response{ID: req.ID, SessionID: sess.ID, Op: req.Op}
}

// filterUnderPath keeps only items at or beneath prefix. A list node's own
// path is immediately followed by its key predicate (e.g.
// "/test-module:list[key='a']/leaf" under prefix "/test-module:list"), so
// the boundary check accepts '/' or '[' as well as an exact match, not just
// a path separator.
func filterUnderPath(items []datastore.Item, prefix string) []datastore.Item {
	if prefix == "" || prefix == "/" {
		return items
	}
	out := make([]datastore.Item, 0, len(items))
	for _, it := range items {
		if it.Path == prefix {
			out = append(out, it)
			continue
		}
		if len(it.Path) > len(prefix) && it.Path[:len(prefix)] == prefix {
			switch it.Path[len(prefix)] {
			case '/', '[':
				out = append(out, it)
			}
		}
	}
	return out
}

func toWireValues(items []datastore.Item) []wire.Value {
	out := make([]wire.Value, len(items))
	for i, it := range items {
		out[i] = wire.Value{Path: it.Path, Type: valueTypeOf(it.Value), Data: it.Value}
	}
	return out
}
