// Package listing fetches every child of one directory across paginated responses.
package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/quarkpan/quarkpan/internal/api"
	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/models"
)

// ErrIncompleteListing is returned when the server hands back an empty page
// before the cursor reports the last page.
var ErrIncompleteListing = errors.New("listing ended before the reported total was reached")

// PageFetcher returns one page of a directory. Implementations decide which
// endpoint and sort order are used.
type PageFetcher interface {
	FetchPage(ctx context.Context, dirID string, page, size int) (*api.Page, error)
}

// Lister accumulates all pages of a directory. It does not retry; errors
// from the fetcher propagate to the caller.
type Lister struct {
	fetcher  PageFetcher
	pageSize int
}

// NewLister creates a Lister with the standard page size.
func NewLister(fetcher PageFetcher) *Lister {
	return &Lister{fetcher: fetcher, pageSize: constants.PageSize}
}

// WithPageSize returns a copy of the lister requesting size children per page.
func (l *Lister) WithPageSize(size int) *Lister {
	return &Lister{fetcher: l.fetcher, pageSize: size}
}

// ListChildren fetches pages from 1 until the cursor reports the last page.
// A total below 1 ends the listing immediately. The ownership flag is taken
// from the first response.
func (l *Lister) ListChildren(ctx context.Context, dirID string) (bool, []models.Node, error) {
	var (
		isOwner bool
		nodes   []models.Node
	)

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return false, nil, err
		}

		p, err := l.fetcher.FetchPage(ctx, dirID, page, l.pageSize)
		if err != nil {
			return false, nil, fmt.Errorf("list %s page %d: %w", dirID, page, err)
		}
		if page == 1 {
			isOwner = p.IsOwner
		}

		cursor := p.Cursor
		if cursor.Total < 1 {
			return isOwner, nodes, nil
		}
		if cursor.Page == 0 {
			cursor.Page = page
		}
		if cursor.Size == 0 {
			cursor.Size = l.pageSize
		}

		nodes = append(nodes, p.Nodes...)
		if cursor.IsLast() {
			return isOwner, nodes, nil
		}
		if len(p.Nodes) == 0 {
			return false, nil, fmt.Errorf("list %s: %w (got %d of %d)", dirID, ErrIncompleteListing, len(nodes), cursor.Total)
		}
	}
}
