// Package notify implements the Notification Processor: it tracks transient
// and durable subscriptions and routes commit/install/feature events to the
// destinations that asked for them.
package notify

import "time"

// EventKind is the class of event a subscription registers for.
type EventKind string

const (
	EventModuleInstall EventKind = "module_install"
	EventFeatureEnable EventKind = "feature_enable"
	EventModuleChange  EventKind = "module_change"
	EventRPC           EventKind = "rpc"
)

// durable reports whether subscriptions of this kind survive a restart.
// Only module-change subscriptions are persisted (spec: "module-change
// subscriptions are persisted under the target module's persistence file so
// they survive restart").
func (k EventKind) durable() bool {
	return k == EventModuleChange
}

// Subscription is a registration that causes notifications to be delivered
// to a destination endpoint on a given event.
type Subscription struct {
	Event              EventKind `json:"event"`
	DestinationAddress string    `json:"destination_address"`
	DestinationID      string    `json:"destination_id"`
	Path               string    `json:"path,omitempty"`
	ModuleName         string    `json:"module_name,omitempty"`
}

// key identifies a subscription for dedup and index purposes, matching the
// composite key named in the spec: (module, event, destination_address,
// destination_id).
func (s Subscription) key() subKey {
	return subKey{
		module: s.ModuleName,
		event:  s.Event,
		addr:   s.DestinationAddress,
		dest:   s.DestinationID,
	}
}

type subKey struct {
	module string
	event  EventKind
	addr   string
	dest   string
}

type destKey struct {
	addr string
	dest string
}

// Notification is the record handed to the Connection Manager for delivery
// to a single subscriber's session.
type Notification struct {
	Subscription Subscription
	Module       string
	Timestamp    time.Time
	Payload      map[string]any
}
