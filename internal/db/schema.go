package db

import (
	"context"

	"github.com/rs/zerolog/log"
)

// schema is the full relational layout, applied idempotently at startup.
// change_log.seq is a single global sequence; readers always filter and
// order by (warehouse_id, seq).
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    display_name  TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS ix_users_email ON users (email);

CREATE TABLE IF NOT EXISTS warehouses (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    created_by TEXT NOT NULL REFERENCES users (id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_warehouses_created_by ON warehouses (created_by);

CREATE TABLE IF NOT EXISTS memberships (
    user_id      TEXT NOT NULL REFERENCES users (id),
    warehouse_id TEXT NOT NULL REFERENCES warehouses (id),
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, warehouse_id)
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES users (id),
    token_hash TEXT NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    revoked    BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_refresh_tokens_user_id ON refresh_tokens (user_id);
CREATE UNIQUE INDEX IF NOT EXISTS ix_refresh_tokens_token_hash ON refresh_tokens (token_hash);

CREATE TABLE IF NOT EXISTS password_reset_tokens (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES users (id),
    token_hash TEXT NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    used       BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_password_reset_tokens_user_id ON password_reset_tokens (user_id);
CREATE UNIQUE INDEX IF NOT EXISTS ix_password_reset_tokens_token_hash ON password_reset_tokens (token_hash);

CREATE TABLE IF NOT EXISTS boxes (
    id                TEXT PRIMARY KEY,
    warehouse_id      TEXT NOT NULL REFERENCES warehouses (id),
    parent_box_id     TEXT REFERENCES boxes (id),
    name              TEXT NOT NULL,
    description       TEXT,
    physical_location TEXT,
    qr_token          TEXT NOT NULL,
    short_code        TEXT NOT NULL,
    version           INTEGER NOT NULL DEFAULT 1,
    deleted_at        TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_boxes_warehouse_id ON boxes (warehouse_id);
CREATE INDEX IF NOT EXISTS ix_boxes_parent_box_id ON boxes (parent_box_id);
CREATE UNIQUE INDEX IF NOT EXISTS ix_boxes_qr_token ON boxes (qr_token);
CREATE INDEX IF NOT EXISTS ix_boxes_short_code ON boxes (short_code);
CREATE INDEX IF NOT EXISTS ix_boxes_deleted_at ON boxes (deleted_at);

CREATE TABLE IF NOT EXISTS items (
    id                TEXT PRIMARY KEY,
    warehouse_id      TEXT NOT NULL REFERENCES warehouses (id),
    box_id            TEXT NOT NULL REFERENCES boxes (id),
    name              TEXT NOT NULL,
    description       TEXT,
    photo_url         TEXT,
    physical_location TEXT,
    tags              JSONB NOT NULL DEFAULT '[]',
    aliases           JSONB NOT NULL DEFAULT '[]',
    version           INTEGER NOT NULL DEFAULT 1,
    deleted_at        TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_items_warehouse_id ON items (warehouse_id);
CREATE INDEX IF NOT EXISTS ix_items_box_id ON items (box_id);
CREATE INDEX IF NOT EXISTS ix_items_name ON items (name);
CREATE INDEX IF NOT EXISTS ix_items_deleted_at ON items (deleted_at);

CREATE TABLE IF NOT EXISTS item_favorites (
    user_id    TEXT NOT NULL REFERENCES users (id),
    item_id    TEXT NOT NULL REFERENCES items (id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, item_id)
);

CREATE TABLE IF NOT EXISTS stock_movements (
    id           TEXT PRIMARY KEY,
    warehouse_id TEXT NOT NULL REFERENCES warehouses (id),
    item_id      TEXT NOT NULL REFERENCES items (id),
    delta        INTEGER NOT NULL,
    command_id   TEXT NOT NULL,
    note         TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uq_stock_movements_item_command UNIQUE (item_id, command_id)
);
CREATE INDEX IF NOT EXISTS ix_stock_movements_warehouse_id ON stock_movements (warehouse_id);
CREATE INDEX IF NOT EXISTS ix_stock_movements_item_id ON stock_movements (item_id);

CREATE TABLE IF NOT EXISTS warehouse_invites (
    id            TEXT PRIMARY KEY,
    warehouse_id  TEXT NOT NULL REFERENCES warehouses (id),
    invited_by    TEXT NOT NULL REFERENCES users (id),
    invitee_email TEXT,
    token_hash    TEXT NOT NULL,
    expires_at    TIMESTAMPTZ NOT NULL,
    accepted_at   TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_warehouse_invites_warehouse_id ON warehouse_invites (warehouse_id);
CREATE UNIQUE INDEX IF NOT EXISTS ix_warehouse_invites_token_hash ON warehouse_invites (token_hash);

CREATE TABLE IF NOT EXISTS activity_events (
    id            TEXT PRIMARY KEY,
    warehouse_id  TEXT NOT NULL REFERENCES warehouses (id),
    actor_user_id TEXT NOT NULL REFERENCES users (id),
    event_type    TEXT NOT NULL,
    entity_type   TEXT,
    entity_id     TEXT,
    metadata_json JSONB NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_activity_events_warehouse_id ON activity_events (warehouse_id);
CREATE INDEX IF NOT EXISTS ix_activity_events_event_type ON activity_events (event_type);

CREATE TABLE IF NOT EXISTS smtp_settings (
    warehouse_id       TEXT PRIMARY KEY REFERENCES warehouses (id),
    host               TEXT NOT NULL,
    port               INTEGER NOT NULL DEFAULT 587,
    username           TEXT,
    password_encrypted TEXT,
    encryption_mode    TEXT NOT NULL DEFAULT 'starttls',
    from_address       TEXT NOT NULL,
    from_name          TEXT,
    updated_by         TEXT NOT NULL REFERENCES users (id),
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS llm_settings (
    warehouse_id       TEXT PRIMARY KEY REFERENCES warehouses (id),
    provider           TEXT NOT NULL DEFAULT 'gemini',
    api_key_encrypted  TEXT,
    auto_tags_enabled  BOOLEAN NOT NULL DEFAULT true,
    auto_alias_enabled BOOLEAN NOT NULL DEFAULT true,
    updated_by         TEXT NOT NULL REFERENCES users (id),
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS change_log (
    seq            BIGSERIAL PRIMARY KEY,
    warehouse_id   TEXT NOT NULL REFERENCES warehouses (id),
    entity_type    TEXT NOT NULL,
    entity_id      TEXT,
    action         TEXT NOT NULL,
    entity_version INTEGER,
    payload_json   JSONB NOT NULL DEFAULT '{}',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_change_log_warehouse_seq ON change_log (warehouse_id, seq);

CREATE TABLE IF NOT EXISTS processed_commands (
    command_id   TEXT PRIMARY KEY,
    warehouse_id TEXT NOT NULL REFERENCES warehouses (id),
    user_id      TEXT NOT NULL REFERENCES users (id),
    device_id    TEXT NOT NULL,
    processed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    result_hash  TEXT
);
CREATE INDEX IF NOT EXISTS ix_processed_commands_warehouse_id ON processed_commands (warehouse_id);

CREATE TABLE IF NOT EXISTS sync_conflicts (
    id                  TEXT PRIMARY KEY,
    warehouse_id        TEXT NOT NULL REFERENCES warehouses (id),
    command_id          TEXT NOT NULL,
    entity_type         TEXT NOT NULL,
    entity_id           TEXT NOT NULL,
    base_version        INTEGER,
    server_version      INTEGER,
    client_payload_json JSONB NOT NULL DEFAULT '{}',
    status              TEXT NOT NULL DEFAULT 'open',
    created_by          TEXT NOT NULL REFERENCES users (id),
    resolved_at         TIMESTAMPTZ,
    resolved_by         TEXT REFERENCES users (id),
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uq_sync_conflicts_command_id UNIQUE (command_id)
);
CREATE INDEX IF NOT EXISTS ix_sync_conflicts_warehouse_id ON sync_conflicts (warehouse_id);
CREATE INDEX IF NOT EXISTS ix_sync_conflicts_status ON sync_conflicts (status);
`

// Migrate applies the schema. All statements are IF NOT EXISTS so it is
// safe to run on every boot.
func Migrate(ctx context.Context, q Querier) error {
	if _, err := q.Exec(ctx, schema); err != nil {
		return err
	}
	log.Info().Msg("database schema applied")
	return nil
}
