// Package model holds the persisted entity shapes shared by the handlers
// and services.
package model

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  *string   `json:"display_name"`
	CreatedAt    time.Time `json:"created_at"`
}

type Warehouse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Box is one node of a warehouse's box forest. ParentBoxID is nil for
// roots; the forest is kept acyclic by the move/import checks.
type Box struct {
	ID               string     `json:"id"`
	WarehouseID      string     `json:"warehouse_id"`
	ParentBoxID      *string    `json:"parent_box_id"`
	Name             string     `json:"name"`
	Description      *string    `json:"description"`
	PhysicalLocation *string    `json:"physical_location"`
	QRToken          string     `json:"qr_token"`
	ShortCode        string     `json:"short_code"`
	Version          int        `json:"version"`
	DeletedAt        *time.Time `json:"deleted_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type Item struct {
	ID               string     `json:"id"`
	WarehouseID      string     `json:"warehouse_id"`
	BoxID            string     `json:"box_id"`
	Name             string     `json:"name"`
	Description      *string    `json:"description"`
	PhotoURL         *string    `json:"photo_url"`
	PhysicalLocation *string    `json:"physical_location"`
	Tags             []string   `json:"tags"`
	Aliases          []string   `json:"aliases"`
	Version          int        `json:"version"`
	DeletedAt        *time.Time `json:"deleted_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type StockMovement struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	Delta     int       `json:"delta"`
	CommandID string    `json:"command_id"`
	Note      *string   `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncConflict blocks one command_id until a human picks a side.
type SyncConflict struct {
	ID            string         `json:"id"`
	WarehouseID   string         `json:"warehouse_id"`
	CommandID     string         `json:"command_id"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	BaseVersion   *int           `json:"base_version"`
	ServerVersion *int           `json:"server_version"`
	ClientPayload map[string]any `json:"client_payload"`
	Status        string         `json:"status"`
	CreatedBy     string         `json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
	ResolvedAt    *time.Time     `json:"resolved_at"`
	ResolvedBy    *string        `json:"-"`
}

const (
	ConflictOpen     = "open"
	ConflictResolved = "resolved"
)
