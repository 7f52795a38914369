package wire

// Op is the operation discriminator carried on Request/Response frames,
// drawn from the Request Processor's operation surface (§4.6). Names are
// interface-level, not a wire-format detail in themselves.
type Op string

const (
	OpSessionStart  Op = "session_start"
	OpSessionStop   Op = "session_stop"
	OpSessionRefresh Op = "session_refresh"

	OpListSchemas Op = "list_schemas"
	OpGetSchema   Op = "get_schema"

	OpGetItem      Op = "get_item"
	OpGetItems     Op = "get_items"
	OpGetItemsIter Op = "get_items_iter"
	OpGetItemNext  Op = "get_item_next"

	OpSetItem    Op = "set_item"
	OpDeleteItem Op = "delete_item"
	OpMoveItem   Op = "move_item"

	OpValidate       Op = "validate"
	OpCommit         Op = "commit"
	OpDiscardChanges Op = "discard_changes"

	OpLockModule      Op = "lock_module"
	OpUnlockModule    Op = "unlock_module"
	OpLockDatastore   Op = "lock_datastore"
	OpUnlockDatastore Op = "unlock_datastore"

	OpModuleInstall Op = "module_install"
	OpFeatureEnable Op = "feature_enable"

	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
)

// ValueType enumerates the typed scalar carrier's kinds (§6). DECIMAL64
// carries an integer mantissa; its scale is implicit from the leaf's
// schema, not carried on the wire.
type ValueType string

const (
	TypeContainer   ValueType = "CONTAINER"
	TypeList        ValueType = "LIST"
	TypeString      ValueType = "STRING"
	TypeBinary      ValueType = "BINARY"
	TypeEnum        ValueType = "ENUM"
	TypeBits        ValueType = "BITS"
	TypeBool        ValueType = "BOOL"
	TypeEmpty       ValueType = "EMPTY"
	TypeIdentityref ValueType = "IDENTITYREF"
	TypeInstanceID  ValueType = "INSTANCE_ID"
	TypeInt8        ValueType = "INT8"
	TypeInt16       ValueType = "INT16"
	TypeInt32       ValueType = "INT32"
	TypeInt64       ValueType = "INT64"
	TypeUint8       ValueType = "UINT8"
	TypeUint16      ValueType = "UINT16"
	TypeUint32      ValueType = "UINT32"
	TypeUint64      ValueType = "UINT64"
	TypeDecimal64   ValueType = "DECIMAL64"
)

// Value is the typed scalar carrier (§6). Data holds the JSON-native
// representation of the value for Type: a string for STRING/ENUM/
// IDENTITYREF/INSTANCE_ID/BITS, a bool for BOOL, a json.Number-compatible
// value for the integer and DECIMAL64 kinds (decimal64's mantissa, not its
// scaled value), nil for EMPTY, and a base64 string for BINARY (json's
// native []byte encoding).
type Value struct {
	Path string      `json:"path"`
	Type ValueType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Flags mirrors the flag bits accepted by set_item/delete_item/move_item
// (edit-mode toggles such as "create default ancestors", "strict
// existence check"); kept as a bitmask so new flags don't change the
// wire shape.
type Flags uint32

const (
	FlagNone Flags = 0
	// FlagNonRecursive restricts delete_item to the named node, erroring
	// instead of recursing into children that still exist.
	FlagNonRecursive Flags = 1 << (iota - 1)
	// FlagStrictExists requires the target to already exist (set_item
	// against a non-existent leaf with this flag is an error rather than
	// an implicit create).
	FlagStrictExists
)

// Direction mirrors datastore.Direction for move_item requests, kept as
// its own wire type so internal/datastore is not a dependency of the wire
// format. Before/After are accepted on the wire for forward compatibility
// with anchor-relative moves but internal/dispatch rejects them as
// UNSUPPORTED: the datastore subset only implements moves relative to a
// list instance's current position (§4.3's UP/DOWN/FIRST/LAST).
type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionFirst  Direction = "first"
	DirectionLast   Direction = "last"
	DirectionBefore Direction = "before"
	DirectionAfter  Direction = "after"
)

// Request is one client-to-engine message. SessionID is 0 until
// session_start assigns one (§6). Only the fields relevant to Op are
// populated; the rest carry their zero value.
type Request struct {
	ID        uint64 `json:"id"`
	SessionID uint32 `json:"session_id"`
	Op        Op     `json:"op"`

	Datastore     string  `json:"datastore,omitempty"`
	EffectiveUser *uint32 `json:"effective_user,omitempty"`

	Path   string `json:"path,omitempty"`
	Value  *Value `json:"value,omitempty"`
	Flags  Flags  `json:"flags,omitempty"`

	Direction Direction `json:"direction,omitempty"`
	Anchor    string    `json:"anchor,omitempty"`

	Module   string `json:"module,omitempty"`
	Revision string `json:"revision,omitempty"`
	Feature  string `json:"feature,omitempty"`
	Enable   bool   `json:"enable,omitempty"`

	Event       string `json:"event,omitempty"`
	Destination string `json:"destination,omitempty"`
	SubID       uint64 `json:"sub_id,omitempty"`

	// Iterator carries the opaque get_items_iter handle on a get_item_next
	// request (§9 Open Question (b)).
	Iterator string `json:"iterator,omitempty"`
}

// Response is the engine's reply to a Request, correlated by ID.
type Response struct {
	ID        uint64 `json:"id"`
	SessionID uint32 `json:"session_id"`
	Op        Op     `json:"op"`

	Errors []ErrorDetail `json:"errors,omitempty"`

	Values   []Value  `json:"values,omitempty"`
	Schemas  []string `json:"schemas,omitempty"`
	Schema   string   `json:"schema,omitempty"`
	SubID    uint64   `json:"sub_id,omitempty"`

	// Iterator carries the opaque get_items_iter handle back to the client
	// that opened it; Done reports get_item_next exhaustion (no error, just
	// nothing left), distinct from the iterator being marked dead.
	Iterator string `json:"iterator,omitempty"`
	Done     bool   `json:"done,omitempty"`
}

// ErrorDetail mirrors engine.Error's wire-visible fields (§7).
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// EventKind mirrors notify.EventKind's wire values, duplicated here (rather
// than imported) to keep the wire format free of a dependency on
// internal/notify.
type EventKind string

const (
	EventModuleInstall EventKind = "module_install"
	EventFeatureEnable EventKind = "feature_enable"
	EventModuleChange  EventKind = "module_change"
	EventRPC           EventKind = "rpc"
)

// Notification is an unsolicited engine-to-client message delivered to a
// subscriber (§4.7); it carries no request ID of its own to correlate
// against, only the destination it was delivered for.
type Notification struct {
	DestinationID string                 `json:"destination_id"`
	Event         EventKind              `json:"event"`
	Module        string                 `json:"module,omitempty"`
	Timestamp     int64                  `json:"timestamp"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
}
