package listing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarkpan/quarkpan/internal/api"
	"github.com/quarkpan/quarkpan/internal/models"
)

// fakeFetcher serves total children in pages and counts fetches.
type fakeFetcher struct {
	total     int
	owner     bool
	calls     int
	shortPage int // page number that comes back empty, 0 = never
	err       error
}

func (f *fakeFetcher) FetchPage(_ context.Context, dirID string, page, size int) (*api.Page, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var nodes []models.Node
	if page != f.shortPage {
		for i := (page - 1) * size; i < page*size && i < f.total; i++ {
			nodes = append(nodes, models.Node{ID: fmt.Sprintf("n%d", i), ParentID: dirID})
		}
	}
	return &api.Page{
		IsOwner: f.owner && page == 1,
		Nodes:   nodes,
		Cursor:  models.PageCursor{Page: page, Size: size, Total: f.total, Count: len(nodes)},
	}, nil
}

// TestListChildrenPageCount verifies T records arrive after ceil(T/P) fetches.
func TestListChildrenPageCount(t *testing.T) {
	tests := []struct {
		total, size, wantCalls int
	}{
		{0, 50, 1},
		{1, 50, 1},
		{50, 50, 1},
		{51, 50, 2},
		{120, 50, 3},
		{7, 3, 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("T=%d/P=%d", tt.total, tt.size), func(t *testing.T) {
			f := &fakeFetcher{total: tt.total}
			_, nodes, err := NewLister(f).WithPageSize(tt.size).ListChildren(context.Background(), "d")
			require.NoError(t, err)
			assert.Len(t, nodes, tt.total)
			assert.Equal(t, tt.wantCalls, f.calls)
		})
	}
}

func TestListChildrenOwnershipFromFirstPage(t *testing.T) {
	f := &fakeFetcher{total: 120, owner: true}
	owner, _, err := NewLister(f).ListChildren(context.Background(), "d")
	require.NoError(t, err)
	assert.True(t, owner, "ownership must come from page 1 even though later pages report false")
}

func TestListChildrenEmptyPageBeforeTotal(t *testing.T) {
	f := &fakeFetcher{total: 120, shortPage: 2}
	_, _, err := NewLister(f).ListChildren(context.Background(), "d")
	require.ErrorIs(t, err, ErrIncompleteListing)
	assert.Equal(t, 2, f.calls)
}

func TestListChildrenPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	f := &fakeFetcher{err: boom}
	_, _, err := NewLister(f).ListChildren(context.Background(), "d")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, f.calls, "lister must not retry")
}

type fakeShareAPI struct {
	gotPwdID, gotStoken string
}

func (f *fakeShareAPI) ListSharePage(_ context.Context, pwdID, stoken, dirID string, page, size int) (*api.Page, error) {
	f.gotPwdID, f.gotStoken = pwdID, stoken
	return &api.Page{Cursor: models.PageCursor{Page: page, Size: size, Total: 0}}, nil
}

func TestShareSourcePassesSession(t *testing.T) {
	f := &fakeShareAPI{}
	_, _, err := NewLister(ShareSource{API: f, PwdID: "p", Stoken: "s"}).ListChildren(context.Background(), "0")
	require.NoError(t, err)
	assert.Equal(t, "p", f.gotPwdID)
	assert.Equal(t, "s", f.gotStoken)
}
