package api

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/models"
)

// ListOwnPage fetches one page of a directory in the user's own storage.
func (c *Client) ListOwnPage(ctx context.Context, dirID string, page, size int) (*Page, error) {
	q := commonParams()
	q.Set("pdir_fid", dirID)
	q.Set("_page", strconv.Itoa(page))
	q.Set("_size", strconv.Itoa(size))
	q.Set("_fetch_total", "1")
	q.Set("_fetch_sub_dirs", "0")
	q.Set("_sort", constants.SortByName)

	env, err := c.call(ctx, "file.sort", nethttp.MethodGet, c.driveURL+constants.PathFileSort, q, nil, "")
	if err != nil {
		return nil, err
	}

	var data struct {
		List []models.Node `json:"list"`
	}
	if err := decodeData("file.sort", env, &data); err != nil {
		return nil, err
	}
	return &Page{IsOwner: true, Nodes: data.List, Cursor: env.Metadata}, nil
}

// ListRootFolders returns the folders directly under the storage root.
func (c *Client) ListRootFolders(ctx context.Context) ([]models.FolderEntry, error) {
	var folders []models.FolderEntry
	for page := 1; ; page++ {
		p, err := c.ListOwnPage(ctx, constants.RootFolderID, page, constants.PageSize)
		if err != nil {
			return nil, err
		}
		for _, n := range p.Nodes {
			if n.IsDir {
				folders = append(folders, models.FolderEntry{ID: n.ID, Name: n.Name})
			}
		}
		if p.Cursor.Total < 1 || p.Cursor.IsLast() || len(p.Nodes) == 0 {
			return folders, nil
		}
	}
}

// CreateFolder creates a folder and returns its id. A name conflict is
// reported as an *APIError of KindConflict.
func (c *Client) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	body := map[string]interface{}{
		"pdir_fid":      parentID,
		"file_name":     name,
		"dir_path":      "",
		"dir_init_lock": false,
	}
	env, err := c.call(ctx, "file.create", nethttp.MethodPost, c.driveURL+constants.PathFile, commonParams(), body, "")
	if err != nil {
		return "", err
	}
	var data struct {
		FID string `json:"fid"`
	}
	if err := decodeData("file.create", env, &data); err != nil {
		return "", err
	}
	return data.FID, nil
}

// ResolveDownloads resolves download URLs for a batch of file ids using the
// given client identity. A stale-signature rejection is returned as an
// *APIError of KindStaleSignature; the caller decides whether to switch identity.
func (c *Client) ResolveDownloads(ctx context.Context, fileIDs []string, userAgent string) ([]models.DownloadInfo, error) {
	q := url.Values{}
	q.Set("pr", constants.QueryProduct)
	q.Set("fr", constants.QueryFrom)
	q.Set("sys", "win32")
	q.Set("ve", constants.DesktopClientVersion)
	q.Set("ut", "")
	q.Set("guid", uuid.NewString())

	body := map[string]interface{}{"fids": fileIDs}
	env, err := c.call(ctx, "file.download", nethttp.MethodPost, c.driveURL+constants.PathFileDownload, q, body, userAgent)
	if err != nil {
		return nil, err
	}
	var data []models.DownloadInfo
	if err := decodeData("file.download", env, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// Download is an open file stream.
type Download struct {
	Body io.ReadCloser
	// Size is the number of bytes the body will deliver, or -1 if unknown.
	Size int64
	// Resumed is true when the server honored the requested offset.
	Resumed bool
}

// OpenDownload starts streaming a resolved download URL from offset.
// The stream is not bounded by the API request timeout.
func (c *Client) OpenDownload(ctx context.Context, downloadURL string, offset int64) (*Download, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}
	c.recordCall("file.stream")

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("User-Agent", constants.UserAgentBrowser)
	req.Header.Set("Origin", c.panURL)
	req.Header.Set("Referer", c.panURL+"/")
	req.Header.Set("Cookie", c.cookie)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.transferClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("file.stream: request failed: %w", err)
	}

	switch resp.StatusCode {
	case nethttp.StatusOK:
		return &Download{Body: resp.Body, Size: resp.ContentLength}, nil
	case nethttp.StatusPartialContent:
		return &Download{Body: resp.Body, Size: resp.ContentLength, Resumed: offset > 0}, nil
	default:
		resp.Body.Close()
		return nil, &APIError{Op: "file.stream", HTTPStatus: resp.StatusCode}
	}
}
