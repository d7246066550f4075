// Package treestore provides SQLite-backed storage of channel trees with
// nested-set ordering bounds and deferred index maintenance for bulk loads.
package treestore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS trees (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	root_pk TEXT NOT NULL DEFAULT '',
	status  TEXT NOT NULL DEFAULT 'active',
	stale   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS nodes (
	pk                     TEXT PRIMARY KEY,
	node_id                TEXT NOT NULL,
	content_id             TEXT NOT NULL,
	tree_id                INTEGER NOT NULL REFERENCES trees(id),
	parent_pk              TEXT REFERENCES nodes(pk),
	kind                   TEXT NOT NULL DEFAULT 'topic',
	sort_order             REAL NOT NULL DEFAULT 0,
	lft                    INTEGER NOT NULL DEFAULT 0,
	rght                   INTEGER NOT NULL DEFAULT 0,
	depth                  INTEGER NOT NULL DEFAULT 0,
	title                  TEXT NOT NULL DEFAULT '',
	description            TEXT NOT NULL DEFAULT '',
	license                TEXT NOT NULL DEFAULT '',
	license_description    TEXT NOT NULL DEFAULT '',
	language               TEXT NOT NULL DEFAULT '',
	author                 TEXT NOT NULL DEFAULT '',
	aggregator             TEXT NOT NULL DEFAULT '',
	provider               TEXT NOT NULL DEFAULT '',
	copyright_holder       TEXT NOT NULL DEFAULT '',
	role_visibility        TEXT NOT NULL DEFAULT 'learner',
	source_id              TEXT NOT NULL DEFAULT '',
	source_domain          TEXT NOT NULL DEFAULT '',
	extra_fields           TEXT NOT NULL DEFAULT '',
	origin_channel_id      TEXT NOT NULL DEFAULT '',
	source_channel_id      TEXT NOT NULL DEFAULT '',
	changed                INTEGER NOT NULL DEFAULT 0,
	changed_staging_fields TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_nodes_tree_lft ON nodes(tree_id, lft);
CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_pk);
CREATE INDEX IF NOT EXISTS idx_nodes_tree_content ON nodes(tree_id, content_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_tree_node ON nodes(tree_id, node_id);

CREATE TABLE IF NOT EXISTS files (
	node_pk     TEXT NOT NULL REFERENCES nodes(pk) ON DELETE CASCADE,
	preset_id   TEXT NOT NULL,
	checksum    TEXT NOT NULL DEFAULT '',
	language    TEXT NOT NULL DEFAULT '',
	source_url  TEXT NOT NULL DEFAULT '',
	file_format TEXT NOT NULL DEFAULT '',
	file_size   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (node_pk, preset_id)
);

CREATE TABLE IF NOT EXISTS assessment_items (
	node_pk       TEXT NOT NULL REFERENCES nodes(pk) ON DELETE CASCADE,
	assessment_id TEXT NOT NULL,
	type          TEXT NOT NULL DEFAULT '',
	question      TEXT NOT NULL DEFAULT '',
	hints         TEXT NOT NULL DEFAULT '',
	answers       TEXT NOT NULL DEFAULT '',
	ord           INTEGER NOT NULL DEFAULT 0,
	raw_data      TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL DEFAULT '',
	randomize     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (node_pk, assessment_id)
);

CREATE TABLE IF NOT EXISTS node_tags (
	node_pk  TEXT NOT NULL REFERENCES nodes(pk) ON DELETE CASCADE,
	tag_name TEXT NOT NULL,
	PRIMARY KEY (node_pk, tag_name)
);

CREATE TABLE IF NOT EXISTS tags (
	channel_id TEXT NOT NULL,
	tag_name   TEXT NOT NULL,
	PRIMARY KEY (channel_id, tag_name)
);

CREATE TABLE IF NOT EXISTS licenses (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE COLLATE NOCASE
);

CREATE TABLE IF NOT EXISTS channels (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	thumbnail        TEXT NOT NULL DEFAULT '',
	source_id        TEXT NOT NULL DEFAULT '',
	source_domain    TEXT NOT NULL DEFAULT '',
	language         TEXT NOT NULL DEFAULT '',
	deleted          INTEGER NOT NULL DEFAULT 0,
	main_tree_id     INTEGER REFERENCES trees(id),
	staging_tree_id  INTEGER REFERENCES trees(id),
	chef_tree_id     INTEGER REFERENCES trees(id),
	previous_tree_id INTEGER REFERENCES trees(id)
);

CREATE TABLE IF NOT EXISTS channel_editors (
	channel_id TEXT NOT NULL REFERENCES channels(id),
	user_id    TEXT NOT NULL,
	PRIMARY KEY (channel_id, user_id)
);
`

// Store wraps a sql.DB with tree storage operations.
type Store struct {
	ops
	conn *sql.DB
}

// Tx is a transaction exposing the same operations as Store. All effects are
// invisible to other readers until Commit.
type Tx struct {
	ops
	tx *sql.Tx
}

// dbtx is the common surface of sql.DB and sql.Tx the operations run on.
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// ops carries every query implementation; embedded by Store and Tx so the
// same operations work inside and outside a transaction.
type ops struct {
	db dbtx
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("treestore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("treestore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("treestore: apply schema: %w", err)
	}
	s := &Store{ops: ops{db: conn}, conn: conn}
	if err := s.ensureRetiredRoot(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Begin starts a transaction.
func (s *Store) Begin() (*Tx, error) {
	tx, err := s.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("treestore: begin tx: %w", err)
	}
	return &Tx{ops: ops{db: tx}, tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
