package listing

import (
	"context"

	"github.com/quarkpan/quarkpan/internal/api"
)

// ShareAPI is the subset of the API client used to list a shared tree.
type ShareAPI interface {
	ListSharePage(ctx context.Context, pwdID, stoken, dirID string, page, size int) (*api.Page, error)
}

// OwnAPI is the subset of the API client used to list the user's own storage.
type OwnAPI interface {
	ListOwnPage(ctx context.Context, dirID string, page, size int) (*api.Page, error)
}

// ShareSource lists directories of a share link session, sorted by type then update time.
type ShareSource struct {
	API    ShareAPI
	PwdID  string
	Stoken string
}

// FetchPage implements PageFetcher.
func (s ShareSource) FetchPage(ctx context.Context, dirID string, page, size int) (*api.Page, error) {
	return s.API.ListSharePage(ctx, s.PwdID, s.Stoken, dirID, page, size)
}

// OwnSource lists directories of the user's own storage, sorted by type then name.
type OwnSource struct {
	API OwnAPI
}

// FetchPage implements PageFetcher.
func (s OwnSource) FetchPage(ctx context.Context, dirID string, page, size int) (*api.Page, error) {
	return s.API.ListOwnPage(ctx, dirID, page, size)
}
