package treestore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/caldermaw/graft/internal/apperr"
	"github.com/caldermaw/graft/internal/models"
)

func nullableTree(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// GetChannel returns the channel with the given id.
func (o ops) GetChannel(id string) (*models.Channel, error) {
	var c models.Channel
	var main, staging, chef, previous sql.NullInt64
	err := o.db.QueryRow(`SELECT id, name, description, thumbnail, source_id, source_domain,
		language, deleted, main_tree_id, staging_tree_id, chef_tree_id, previous_tree_id
		FROM channels WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Description, &c.Thumbnail, &c.SourceID, &c.SourceDomain,
			&c.Language, &c.Deleted, &main, &staging, &chef, &previous)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("treestore: channel %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("treestore: get channel: %w", err)
	}
	c.MainTreeID = main.Int64
	c.StagingTreeID = staging.Int64
	c.ChefTreeID = chef.Int64
	c.PreviousTreeID = previous.Int64
	return &c, nil
}

// UpsertChannel creates the channel row if absent and updates its scalar
// fields. Returns whether the row was created.
func (o ops) UpsertChannel(p models.ChannelPayload) (bool, error) {
	var exists int
	err := o.db.QueryRow(`SELECT count(*) FROM channels WHERE id = ?`, p.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("treestore: channel exists: %w", err)
	}
	_, err = o.db.Exec(`
		INSERT INTO channels (id, name, description, thumbnail, source_id, source_domain, language, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			name          = excluded.name,
			description   = excluded.description,
			thumbnail     = excluded.thumbnail,
			source_id     = excluded.source_id,
			source_domain = excluded.source_domain,
			language      = excluded.language,
			deleted       = 0
	`, p.ID, p.Name, p.Description, p.Thumbnail, p.SourceID, p.SourceDomain, p.Language)
	if err != nil {
		return false, fmt.Errorf("treestore: upsert channel: %w", err)
	}
	return exists == 0, nil
}

// SetTreePointers reassigns the channel's tree references in one statement.
// Only the commit path calls this; a tree id of zero clears the pointer.
func (o ops) SetTreePointers(channelID string, main, staging, chef, previous int64) error {
	res, err := o.db.Exec(`UPDATE channels SET main_tree_id = ?, staging_tree_id = ?,
		chef_tree_id = ?, previous_tree_id = ? WHERE id = ?`,
		nullableTree(main), nullableTree(staging), nullableTree(chef), nullableTree(previous), channelID)
	if err != nil {
		return fmt.Errorf("treestore: set tree pointers: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("treestore: channel %s: %w", channelID, apperr.ErrNotFound)
	}
	return nil
}

// ChannelForTree returns the channel holding any pointer to the tree.
func (o ops) ChannelForTree(treeID int64) (*models.Channel, error) {
	var id string
	err := o.db.QueryRow(`SELECT id FROM channels WHERE main_tree_id = ? OR staging_tree_id = ?
		OR chef_tree_id = ? OR previous_tree_id = ?`, treeID, treeID, treeID, treeID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("treestore: no channel references tree %d: %w", treeID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("treestore: channel for tree: %w", err)
	}
	return o.GetChannel(id)
}

// EditorCount returns how many editors the channel has.
func (o ops) EditorCount(channelID string) (int, error) {
	var n int
	if err := o.db.QueryRow(`SELECT count(*) FROM channel_editors WHERE channel_id = ?`, channelID).Scan(&n); err != nil {
		return 0, fmt.Errorf("treestore: editor count: %w", err)
	}
	return n, nil
}

// AddEditor registers a user as an editor of the channel. Idempotent.
func (o ops) AddEditor(channelID, userID string) error {
	_, err := o.db.Exec(`INSERT OR IGNORE INTO channel_editors (channel_id, user_id) VALUES (?, ?)`,
		channelID, userID)
	if err != nil {
		return fmt.Errorf("treestore: add editor: %w", err)
	}
	return nil
}

// IsEditor reports whether the user may edit the channel.
func (o ops) IsEditor(channelID, userID string) (bool, error) {
	var n int
	err := o.db.QueryRow(`SELECT count(*) FROM channel_editors WHERE channel_id = ? AND user_id = ?`,
		channelID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("treestore: editor check: %w", err)
	}
	return n > 0, nil
}

// ResolveLicense looks a license up by name, case-insensitively.
func (o ops) ResolveLicense(name string) (*models.License, error) {
	var l models.License
	err := o.db.QueryRow(`SELECT id, name FROM licenses WHERE name = ? COLLATE NOCASE`, name).
		Scan(&l.ID, &l.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("treestore: license %q: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("treestore: resolve license: %w", err)
	}
	return &l, nil
}

// SeedLicenses inserts catalog entries, ignoring names already present.
func (o ops) SeedLicenses(names []string) error {
	for _, name := range names {
		if _, err := o.db.Exec(`INSERT OR IGNORE INTO licenses (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("treestore: seed license %q: %w", name, err)
		}
	}
	return nil
}

// LookupOrCreateTag ensures a tag exists in the channel's catalog.
func (o ops) LookupOrCreateTag(name, channelID string) error {
	_, err := o.db.Exec(`INSERT OR IGNORE INTO tags (channel_id, tag_name) VALUES (?, ?)`,
		channelID, name)
	if err != nil {
		return fmt.Errorf("treestore: tag %q: %w", name, err)
	}
	return nil
}
