package syncservice

import (
	"fmt"

	"github.com/bodega-app/bodega-api/internal/changelog"
	"github.com/bodega-app/bodega-api/internal/model"
)

// Command is one client-originated mutation. CommandID is chosen by the
// client and stays stable across retries; it is the idempotency key.
type Command struct {
	CommandID   string         `json:"command_id"`
	Type        string         `json:"type"`
	EntityID    *string        `json:"entity_id"`
	BaseVersion *int           `json:"base_version"`
	Payload     map[string]any `json:"payload"`
}

// PushRequest carries a batch of commands from one device.
type PushRequest struct {
	WarehouseID string    `json:"warehouse_id"`
	DeviceID    string    `json:"device_id"`
	Commands    []Command `json:"commands"`
}

// Validate checks the request shape before any database work.
func (r *PushRequest) Validate() error {
	if r.WarehouseID == "" {
		return &BadRequestError{Msg: "warehouse_id is required"}
	}
	if len(r.DeviceID) < 3 || len(r.DeviceID) > 128 {
		return &BadRequestError{Msg: "device_id must be 3-128 characters"}
	}
	if len(r.Commands) == 0 {
		return &BadRequestError{Msg: "commands must not be empty"}
	}
	for _, cmd := range r.Commands {
		if len(cmd.CommandID) < 6 || len(cmd.CommandID) > 64 {
			return &BadRequestError{Msg: "command_id must be 6-64 characters"}
		}
		if len(cmd.Type) < 3 || len(cmd.Type) > 64 {
			return &BadRequestError{Msg: "command type must be 3-64 characters"}
		}
	}
	return nil
}

// PushResponse reports the fate of every command in the batch.
type PushResponse struct {
	AppliedCommandIDs []string             `json:"applied_command_ids"`
	SkippedCommandIDs []string             `json:"skipped_command_ids"`
	Conflicts         []model.SyncConflict `json:"conflicts"`
	LastSeq           int64                `json:"last_seq"`
}

// PullResponse is a page of the change feed plus every open conflict.
type PullResponse struct {
	Changes   []changelog.Entry    `json:"changes"`
	Conflicts []model.SyncConflict `json:"conflicts"`
	LastSeq   int64                `json:"last_seq"`
}

// Resolution choices for a conflict.
const (
	KeepServer = "keep_server"
	KeepClient = "keep_client"
	Merge      = "merge"
)

type ResolveRequest struct {
	WarehouseID string         `json:"warehouse_id"`
	ConflictID  string         `json:"conflict_id"`
	Resolution  string         `json:"resolution"`
	Payload     map[string]any `json:"payload"`
}

type ResolveResponse struct {
	Message  string             `json:"message"`
	Conflict model.SyncConflict `json:"conflict"`
}

// BadRequestError marks a client-caused failure that the HTTP layer maps
// to a 400 response.
type BadRequestError struct {
	Msg string
}

func (e *BadRequestError) Error() string { return e.Msg }

func badRequestf(format string, args ...any) error {
	return &BadRequestError{Msg: fmt.Sprintf(format, args...)}
}
