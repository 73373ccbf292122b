package traverse

import (
	"context"
	"fmt"

	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/models"
	"github.com/quarkpan/quarkpan/internal/pathindex"
)

// WalkStats counts what a file walk has discovered so far.
type WalkStats struct {
	Directories int
	Files       int
}

// BatchFunc receives the files of one directory.
type BatchFunc func(ctx context.Context, batch []models.FileAction) error

// WalkFiles descends the whole tree below the session root. Every directory is
// recorded in idx. The files of a directory are passed to visit as one batch
// after all of its subdirectories have been walked, so the root's own files
// come last. Each action carries the directory path relative to the root and
// the session destination id.
//
// A directory listed more than once, or reached again through a cycle, is
// entered only the first time.
func (e *Engine) WalkFiles(ctx context.Context, s Session, idx *pathindex.Index, visit BatchFunc) (*WalkStats, error) {
	stats := &WalkStats{}
	visited := map[string]bool{s.RootID: true}
	if err := e.walkDir(ctx, s, idx, visited, s.RootID, 0, visit, stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func (e *Engine) walkDir(ctx context.Context, s Session, idx *pathindex.Index, visited map[string]bool, dirID string, depth int, visit BatchFunc, stats *WalkStats) error {
	if depth > constants.MaxResolveDepth {
		return fmt.Errorf("%w: directory %s", pathindex.ErrResolveDepth, dirID)
	}

	nodes, err := e.list(ctx, dirID)
	if err != nil {
		return err
	}

	var (
		files   []models.FileAction
		subdirs []models.Node
	)
	for _, n := range nodes {
		if n.ParentID == "" {
			n.ParentID = dirID
		}
		if n.IsDir {
			idx.Record(n.ID, n.Name, n.ParentID)
			if !visited[n.ID] {
				visited[n.ID] = true
				subdirs = append(subdirs, n)
				stats.Directories++
			}
			continue
		}
		files = append(files, models.FileAction{Node: n, DestDirID: s.DestDirID})
	}
	stats.Files += len(files)
	if e.opts.OnScan != nil {
		e.opts.OnScan(*stats)
	}

	for _, d := range subdirs {
		if err := e.walkDir(ctx, s, idx, visited, d.ID, depth+1, visit, stats); err != nil {
			return err
		}
	}

	if len(files) == 0 {
		return nil
	}
	path, err := idx.Resolve(dirID)
	if err != nil {
		return err
	}
	for i := range files {
		files[i].Path = path
	}
	e.logger.Debug().
		Str("dir_id", dirID).
		Strs("path", path).
		Int("files", len(files)).
		Msg("directory batch ready")
	return visit(ctx, files)
}

// Enumerate walks the whole tree and returns every file action in batch order.
func (e *Engine) Enumerate(ctx context.Context, s Session, idx *pathindex.Index) ([]models.FileAction, *WalkStats, error) {
	var all []models.FileAction
	stats, err := e.WalkFiles(ctx, s, idx, func(_ context.Context, batch []models.FileAction) error {
		all = append(all, batch...)
		return nil
	})
	if err != nil {
		return nil, stats, err
	}
	return all, stats, nil
}
