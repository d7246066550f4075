package diff

import (
	"fmt"

	"github.com/caldermaw/graft/internal/apperr"
	"github.com/caldermaw/graft/internal/models"
)

// CompareEntry summarizes one node for the lightweight tree comparison.
type CompareEntry struct {
	Title    string `json:"title"`
	Kind     string `json:"kind"`
	FileSize int64  `json:"file_size"`
}

// CompareResult is the position-identity set difference between a channel's
// previous tree and its current main or staging tree.
type CompareResult struct {
	New     map[string]CompareEntry `json:"new"`
	Deleted map[string]CompareEntry `json:"deleted"`
}

// CompareTrees summarizes which authored slots appeared or vanished since
// the previously promoted snapshot. With useStaging the staging tree is the
// comparison side, otherwise the main tree.
func (e *Engine) CompareTrees(channelID string, useStaging bool) (*CompareResult, error) {
	ch, err := e.store.GetChannel(channelID)
	if err != nil {
		return nil, err
	}
	comparisonID := ch.MainTreeID
	if useStaging {
		comparisonID = ch.StagingTreeID
	}
	if comparisonID == 0 || ch.PreviousTreeID == 0 {
		return nil, fmt.Errorf("diff: channel %s comparison tree absent: %w", channelID, apperr.ErrPrecondition)
	}

	current, _, err := e.treeSnapshot(comparisonID)
	if err != nil {
		return nil, err
	}
	previous, _, err := e.treeSnapshot(ch.PreviousTreeID)
	if err != nil {
		return nil, err
	}

	currentIDs := nodeIDSet(current)
	previousIDs := nodeIDSet(previous)

	out := &CompareResult{New: map[string]CompareEntry{}, Deleted: map[string]CompareEntry{}}
	for _, n := range current {
		if _, ok := previousIDs[n.NodeID]; !ok {
			entry, err := e.compareEntry(n)
			if err != nil {
				return nil, err
			}
			out.New[n.NodeID] = entry
		}
	}
	for _, n := range previous {
		if _, ok := currentIDs[n.NodeID]; !ok {
			entry, err := e.compareEntry(n)
			if err != nil {
				return nil, err
			}
			out.Deleted[n.NodeID] = entry
		}
	}
	return out, nil
}

func (e *Engine) compareEntry(n *models.Node) (CompareEntry, error) {
	files, err := e.store.FilesFor(n.PK)
	if err != nil {
		return CompareEntry{}, err
	}
	var size int64
	for _, f := range files {
		size += f.FileSize
	}
	return CompareEntry{Title: n.Title, Kind: n.Kind, FileSize: size}, nil
}

func nodeIDSet(nodes []*models.Node) map[string]struct{} {
	out := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		out[n.NodeID] = struct{}{}
	}
	return out
}
