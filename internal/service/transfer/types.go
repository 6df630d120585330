// Package transfer moves a whole warehouse between stores: export takes a
// point-in-time snapshot, import replays one into a target warehouse with
// id remapping and parent-order resolution.
package transfer

import (
	"fmt"
	"time"
)

// SchemaVersion tags snapshots so future layouts can be told apart.
const SchemaVersion = 1

type SnapshotWarehouse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SnapshotBox struct {
	ID               string     `json:"id"`
	ParentBoxID      *string    `json:"parent_box_id"`
	Name             string     `json:"name"`
	Description      *string    `json:"description"`
	PhysicalLocation *string    `json:"physical_location"`
	ShortCode        string     `json:"short_code"`
	QRToken          string     `json:"qr_token"`
	Version          int        `json:"version"`
	DeletedAt        *time.Time `json:"deleted_at"`
}

type SnapshotItem struct {
	ID               string     `json:"id"`
	BoxID            string     `json:"box_id"`
	Name             string     `json:"name"`
	Description      *string    `json:"description"`
	PhotoURL         *string    `json:"photo_url"`
	PhysicalLocation *string    `json:"physical_location"`
	Tags             []string   `json:"tags"`
	Aliases          []string   `json:"aliases"`
	Version          int        `json:"version"`
	DeletedAt        *time.Time `json:"deleted_at"`
}

type SnapshotMovement struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	Delta     int       `json:"delta"`
	CommandID string    `json:"command_id"`
	Note      *string   `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the full export of one warehouse. Boxes, items, and
// movements are ordered by created_at ascending.
type Snapshot struct {
	SchemaVersion  int                `json:"schema_version"`
	ExportedAt     time.Time          `json:"exported_at"`
	Warehouse      SnapshotWarehouse  `json:"warehouse"`
	Boxes          []SnapshotBox      `json:"boxes"`
	Items          []SnapshotItem     `json:"items"`
	StockMovements []SnapshotMovement `json:"stock_movements"`
}

// ImportResult counts what the import touched.
type ImportResult struct {
	Message                string `json:"message"`
	BoxesUpserted          int    `json:"boxes_upserted"`
	ItemsUpserted          int    `json:"items_upserted"`
	StockMovementsUpserted int    `json:"stock_movements_upserted"`
}

// BadRequestError marks a snapshot problem the client has to fix.
type BadRequestError struct {
	Msg string
}

func (e *BadRequestError) Error() string { return e.Msg }

func badRequestf(format string, args ...any) error {
	return &BadRequestError{Msg: fmt.Sprintf(format, args...)}
}
