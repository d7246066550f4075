package treestore

import (
	"fmt"

	"github.com/caldermaw/graft/internal/models"
)

// AttachFiles associates file descriptors with a node, keyed by preset slot.
// Idempotent: resubmitting a (node, preset) pair replaces the slot rather
// than duplicating it, and never touches tree structure.
func (o ops) AttachFiles(nodePK string, files []models.FileDescriptor) error {
	for _, f := range files {
		_, err := o.db.Exec(`
			INSERT INTO files (node_pk, preset_id, checksum, language, source_url, file_format, file_size)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(node_pk, preset_id) DO UPDATE SET
				checksum    = excluded.checksum,
				language    = excluded.language,
				source_url  = excluded.source_url,
				file_format = excluded.file_format,
				file_size   = excluded.file_size
		`, nodePK, f.PresetID, f.Checksum, f.Language, f.SourceURL, f.FileFormat, f.FileSize)
		if err != nil {
			return fmt.Errorf("treestore: attach file %s/%s: %w", nodePK, f.PresetID, err)
		}
	}
	return nil
}

// AttachQuestions associates assessment items with a node, keyed by
// assessment identifier. Idempotent in the same way as AttachFiles.
func (o ops) AttachQuestions(nodePK string, questions []models.QuestionDescriptor) error {
	for i, q := range questions {
		_, err := o.db.Exec(`
			INSERT INTO assessment_items (node_pk, assessment_id, type, question, hints, answers, ord, raw_data, source_url, randomize)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(node_pk, assessment_id) DO UPDATE SET
				type       = excluded.type,
				question   = excluded.question,
				hints      = excluded.hints,
				answers    = excluded.answers,
				ord        = excluded.ord,
				raw_data   = excluded.raw_data,
				source_url = excluded.source_url,
				randomize  = excluded.randomize
		`, nodePK, q.AssessmentID, q.Type, q.Question, q.Hints, q.Answers, i, q.RawData, q.SourceURL, q.Randomize)
		if err != nil {
			return fmt.Errorf("treestore: attach question %s/%s: %w", nodePK, q.AssessmentID, err)
		}
	}
	return nil
}

// SetNodeTags replaces a node's tag set.
func (o ops) SetNodeTags(nodePK string, tags []string) error {
	if _, err := o.db.Exec(`DELETE FROM node_tags WHERE node_pk = ?`, nodePK); err != nil {
		return fmt.Errorf("treestore: clear node tags: %w", err)
	}
	for _, tag := range tags {
		if _, err := o.db.Exec(`INSERT OR IGNORE INTO node_tags (node_pk, tag_name) VALUES (?, ?)`, nodePK, tag); err != nil {
			return fmt.Errorf("treestore: set node tag %q: %w", tag, err)
		}
	}
	return nil
}

// FilesFor returns the files attached to a node, ordered by preset.
func (o ops) FilesFor(nodePK string) ([]models.File, error) {
	rows, err := o.db.Query(`SELECT node_pk, preset_id, checksum, language, source_url, file_format, file_size
		FROM files WHERE node_pk = ? ORDER BY preset_id`, nodePK)
	if err != nil {
		return nil, fmt.Errorf("treestore: files for %s: %w", nodePK, err)
	}
	defer rows.Close()
	out := []models.File{}
	for rows.Next() {
		var f models.File
		if err := rows.Scan(&f.NodePK, &f.PresetID, &f.Checksum, &f.Language, &f.SourceURL, &f.FileFormat, &f.FileSize); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// QuestionsFor returns the assessment items attached to a node in order.
func (o ops) QuestionsFor(nodePK string) ([]models.AssessmentItem, error) {
	rows, err := o.db.Query(`SELECT node_pk, assessment_id, type, question, hints, answers, ord, raw_data, source_url, randomize
		FROM assessment_items WHERE node_pk = ? ORDER BY ord`, nodePK)
	if err != nil {
		return nil, fmt.Errorf("treestore: questions for %s: %w", nodePK, err)
	}
	defer rows.Close()
	out := []models.AssessmentItem{}
	for rows.Next() {
		var a models.AssessmentItem
		if err := rows.Scan(&a.NodePK, &a.AssessmentID, &a.Type, &a.Question, &a.Hints, &a.Answers, &a.Order, &a.RawData, &a.SourceURL, &a.Randomize); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// TagsFor returns a node's tag names, sorted.
func (o ops) TagsFor(nodePK string) ([]string, error) {
	rows, err := o.db.Query(`SELECT tag_name FROM node_tags WHERE node_pk = ? ORDER BY tag_name`, nodePK)
	if err != nil {
		return nil, fmt.Errorf("treestore: tags for %s: %w", nodePK, err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
