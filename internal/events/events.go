// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package events carries session notifications from the execution core to whatever
// front end is attached: schema and title changes, server state transitions,
// object-tree invalidation, status-bar text and execution-log updates.
//
// Delivery is synchronous on the publishing goroutine. Work that must not run while a
// statement is executing (reconnects, keep-alives) is deferred through an IdleQueue
// instead of being done inside a handler.
package events

// EventType enumerates known session event kinds.
type EventType string

const (
	// EventSchemaChanged reports a new active schema.
	EventSchemaChanged EventType = "schema_changed"
	// EventServerStateChanged reports a server state transition for a connection target.
	EventServerStateChanged EventType = "server_state_changed"
	// EventTitleChanged asks the front end to refresh its title.
	EventTitleChanged EventType = "title_changed"
	// EventObjectsChanged reports that catalog objects were dropped or altered.
	EventObjectsChanged EventType = "objects_changed"
	// EventStatusText carries a status-bar line.
	EventStatusText EventType = "status_text"
	// EventLogChanged reports an added or replaced execution log entry.
	EventLogChanged EventType = "log_changed"
)

// ServerState is the last known reachability of a server.
type ServerState string

const (
	StateUnknown         ServerState = "unknown"
	StateRunning         ServerState = "running"
	StatePossiblyStopped ServerState = "possibly_stopped"
)

// Event is a generic container for session events.
// Only a subset of fields is set depending on Type.
type Event struct {
	Type EventType `json:"type"`

	// Status text or window title
	Message string `json:"message,omitempty"`

	// Schema changes and object invalidation
	Schema     string `json:"schema,omitempty"`
	ObjectType string `json:"object_type,omitempty"`
	ObjectName string `json:"object_name,omitempty"`

	// Server state
	Target string      `json:"target,omitempty"`
	State  ServerState `json:"state,omitempty"`

	// Execution log
	LogID int `json:"log_id,omitempty"`
}
