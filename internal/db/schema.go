package db

// Table names for the DuckDB item cache
const (
	tableItems = "history_items"
)

// itemsTableSQL creates the cache table. seq records first-seen order within
// a history and is never rewritten by a merge.
const itemsTableSQL = `
CREATE TABLE IF NOT EXISTS history_items (
	history_id VARCHAR NOT NULL,
	hid        BIGINT  NOT NULL,
	seq        BIGINT  NOT NULL,
	name       VARCHAR,
	state      VARCHAR,
	deleted    BOOLEAN,
	visible    BOOLEAN,
	payload    VARCHAR NOT NULL,
	PRIMARY KEY (history_id, hid)
)`

// upsertItemSQL inserts a new item or overwrites the cached copy in place
const upsertItemSQL = `
INSERT INTO history_items (history_id, hid, seq, name, state, deleted, visible, payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (history_id, hid) DO UPDATE SET
	name = excluded.name,
	state = excluded.state,
	deleted = excluded.deleted,
	visible = excluded.visible,
	payload = excluded.payload`
