// Package pathindex reconstructs hierarchical paths from a flat id -> parent map.
package pathindex

import (
	"errors"
	"fmt"
	"sync"
)

// ErrResolveDepth is returned when a parent chain is longer than the index allows,
// which happens for cyclic or corrupt parent links.
var ErrResolveDepth = errors.New("path resolution exceeded maximum depth")

type entry struct {
	name     string
	parentID string
}

// Index maps node ids to (name, parent id). It is safe for concurrent use.
// The first record for an id wins; later records are ignored.
type Index struct {
	entries  map[string]entry
	maxDepth int
	mu       sync.RWMutex
}

// New creates an index whose walks stop after maxDepth+1 steps.
func New(maxDepth int) *Index {
	return &Index{entries: make(map[string]entry), maxDepth: maxDepth}
}

// Record stores a node if its id is not yet known. Reports whether it was stored.
func (ix *Index) Record(id, name, parentID string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.entries[id]; ok {
		return false
	}
	ix.entries[id] = entry{name: name, parentID: parentID}
	return true
}

// Len returns the number of recorded nodes.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Resolve returns the root-to-leaf names ending at id. The walk follows parent
// links until it reaches an id that is not recorded. An unknown id yields an
// empty path.
func (ix *Index) Resolve(id string) ([]string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var segments []string
	limit := ix.maxDepth + 1
	for cur := id; ; {
		e, ok := ix.entries[cur]
		if !ok {
			break
		}
		if len(segments) == limit {
			return nil, fmt.Errorf("%w: node %s (limit %d)", ErrResolveDepth, id, limit)
		}
		segments = append(segments, e.name)
		cur = e.parentID
	}

	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return segments, nil
}
