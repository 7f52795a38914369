package dispatch

import (
	"fmt"

	"github.com/cuemby/sysrepo-engine/internal/datastore"
	"github.com/cuemby/sysrepo-engine/internal/engine"
	"github.com/cuemby/sysrepo-engine/internal/schema"
	"github.com/cuemby/sysrepo-engine/internal/wire"
)

// errResp builds a single-error Response of the given engine code.
func errResp(req *wire.Request, code engine.Code, path, format string, args ...any) *wire.Response {
	return &wire.Response{
		ID:        req.ID,
		SessionID: req.SessionID,
		Op:        req.Op,
		Errors:    []wire.ErrorDetail{{Code: code.String(), Message: fmt.Sprintf(format, args...), Path: path}},
	}
}

// errFromEngine wraps a single error returned by an internal/engine call,
// preserving its Code/Path when it's an *engine.Error.
func errFromEngine(req *wire.Request, err error) *wire.Response {
	return &wire.Response{ID: req.ID, SessionID: req.SessionID, Op: req.Op, Errors: []wire.ErrorDetail{toErrorDetail(err)}}
}

// schemaErrPath extracts the truncated path a *schema.Error already carries
// (set by Tree's navigate failure at the step it stopped on), falling back to
// the full requested path for anything else. Mirrors internal/engine.pathOf.
func schemaErrPath(err error, fallback string) string {
	if se, ok := err.(*schema.Error); ok {
		return se.Path
	}
	return fallback
}

// toResp builds a bare success/failure Response from a single error, used by
// the lock/feature operations that carry no payload beyond ok-or-not.
func toResp(req *wire.Request, sessionID uint32, err error) *wire.Response {
	if err != nil {
		return &wire.Response{ID: req.ID, SessionID: sessionID, Op: req.Op, Errors: []wire.ErrorDetail{toErrorDetail(err)}}
	}
	return &wire.Response{ID: req.ID, SessionID: sessionID, Op: req.Op}
}

func toErrorDetails(errs []error) []wire.ErrorDetail {
	out := make([]wire.ErrorDetail, len(errs))
	for i, err := range errs {
		out[i] = toErrorDetail(err)
	}
	return out
}

// toErrorDetail maps an error from any of the engine's layers onto the
// wire's flat (code, message, path) shape (§7): *engine.Error already
// carries a taxonomy code, *schema.Error (surfaced by Tree.Validate) carries
// a path but no code of its own and is reported as VALIDATION_FAILED, and
// anything else (a defensive fallback, not expected in practice) becomes
// INTERNAL.
func toErrorDetail(err error) wire.ErrorDetail {
	switch e := err.(type) {
	case *engine.Error:
		return wire.ErrorDetail{Code: e.Code.String(), Message: e.Message, Path: e.Path}
	case *schema.Error:
		return wire.ErrorDetail{Code: engine.ValidationFailed.String(), Message: e.Message, Path: e.Path}
	default:
		return wire.ErrorDetail{Code: engine.Internal.String(), Message: err.Error()}
	}
}

// valueTypeOf infers a wire.ValueType from a value's Go dynamic type. This
// is a deliberate simplification: internal/datastore.Tree doesn't expose a
// leaf's declared schema.LeafType on read, only its stored Go value, so the
// wire label is reconstructed from the value's shape rather than looked up.
// It's precise enough for every builtin module's leaf types (string, bool,
// integer) and falls back to STRING/EMPTY at the edges.
func valueTypeOf(v any) wire.ValueType {
	switch v.(type) {
	case nil:
		return wire.TypeEmpty
	case bool:
		return wire.TypeBool
	case string:
		return wire.TypeString
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return wire.TypeInt64
	default:
		return wire.TypeString
	}
}

// moduleFromPath extracts the module name from a path's first step, the
// addressing scheme every read/write operation keys off of.
func moduleFromPath(path string) (string, error) {
	steps, err := datastore.ParsePath(path)
	if err != nil {
		return "", err
	}
	if len(steps) == 0 || steps[0].Module == "" {
		return "", fmt.Errorf("dispatch: path %q has no module prefix", path)
	}
	return steps[0].Module, nil
}

// toDatastoreFlags converts the wire's edit-mode flags to internal/datastore's,
// which use a different bit layout (wire.FlagNonRecursive=1, FlagStrictExists=2
// vs. datastore.FlagStrict=2, FlagNonRecursive=4): each flag is translated by
// name, not by raw value.
func toDatastoreFlags(f wire.Flags) datastore.Flag {
	var out datastore.Flag
	if f&wire.FlagNonRecursive != 0 {
		out |= datastore.FlagNonRecursive
	}
	if f&wire.FlagStrictExists != 0 {
		out |= datastore.FlagStrict
	}
	return out
}

// toDatastoreDirection converts a wire.Direction to datastore.Direction,
// rejecting the anchor-relative directions the datastore subset doesn't
// implement (§4.3).
func toDatastoreDirection(d wire.Direction) (datastore.Direction, error) {
	switch d {
	case wire.DirectionUp:
		return datastore.MoveUp, nil
	case wire.DirectionDown:
		return datastore.MoveDown, nil
	case wire.DirectionFirst:
		return datastore.MoveFirst, nil
	case wire.DirectionLast:
		return datastore.MoveLast, nil
	default:
		return 0, fmt.Errorf("dispatch: direction %q is not supported", d)
	}
}
