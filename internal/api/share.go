package api

import (
	"context"
	"fmt"
	nethttp "net/http"
	"strconv"

	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/models"
)

// Page is one page of a directory listing.
type Page struct {
	IsOwner bool
	Nodes   []models.Node
	Cursor  models.PageCursor
}

// GetShareToken exchanges a share id and passcode for a session token (stoken).
// Tokens are cached per share for the lifetime of the client.
func (c *Client) GetShareToken(ctx context.Context, pwdID, passcode string) (string, error) {
	key := pwdID + "\x00" + passcode
	if stoken, ok := c.stokens.Get(key); ok {
		return stoken, nil
	}

	body := map[string]string{"pwd_id": pwdID, "passcode": passcode}
	env, err := c.call(ctx, "share.token", nethttp.MethodPost, c.driveURL+constants.PathShareToken, commonParams(), body, "")
	if err != nil {
		return "", err
	}

	var data struct {
		Stoken string `json:"stoken"`
	}
	if err := decodeData("share.token", env, &data); err != nil {
		return "", err
	}
	if data.Stoken == "" {
		return "", &APIError{Op: "share.token", HTTPStatus: env.Status, Code: env.Code, Message: "empty stoken"}
	}

	c.stokens.Add(key, data.Stoken)
	return data.Stoken, nil
}

// ListSharePage fetches one page of a shared directory.
func (c *Client) ListSharePage(ctx context.Context, pwdID, stoken, dirID string, page, size int) (*Page, error) {
	q := commonParams()
	q.Set("pwd_id", pwdID)
	q.Set("stoken", stoken)
	q.Set("pdir_fid", dirID)
	q.Set("force", "0")
	q.Set("_page", strconv.Itoa(page))
	q.Set("_size", strconv.Itoa(size))
	q.Set("_sort", constants.SortShareDetail)

	env, err := c.call(ctx, "share.detail", nethttp.MethodGet, c.driveURL+constants.PathShareDetail, q, nil, "")
	if err != nil {
		return nil, err
	}

	var data struct {
		IsOwner int           `json:"is_owner"`
		List    []models.Node `json:"list"`
	}
	if err := decodeData("share.detail", env, &data); err != nil {
		return nil, err
	}
	return &Page{IsOwner: data.IsOwner == 1, Nodes: data.List, Cursor: env.Metadata}, nil
}

// SaveRequest describes a transfer of shared items into the user's storage.
type SaveRequest struct {
	PwdID       string
	Stoken      string
	FileIDs     []string
	ShareTokens []string
	DestDirID   string
}

// SaveShare starts a save task and returns its task id.
func (c *Client) SaveShare(ctx context.Context, r SaveRequest) (string, error) {
	if len(r.FileIDs) != len(r.ShareTokens) {
		return "", fmt.Errorf("share.save: %d ids but %d tokens", len(r.FileIDs), len(r.ShareTokens))
	}
	body := map[string]interface{}{
		"fid_list":       r.FileIDs,
		"fid_token_list": r.ShareTokens,
		"to_pdir_fid":    r.DestDirID,
		"pwd_id":         r.PwdID,
		"stoken":         r.Stoken,
		"pdir_fid":       constants.RootFolderID,
		"scene":          "link",
	}
	env, err := c.call(ctx, "share.save", nethttp.MethodPost, c.saveURL+constants.PathShareSave, commonParams(), body, "")
	if err != nil {
		return "", err
	}
	return taskID("share.save", env)
}

// Share link visibility (url_type)
const (
	URLTypePublic    = 1
	URLTypeEncrypted = 2
)

// Share link expiry classes (expired_type)
const (
	ExpiryPermanent = 1
	ExpiryOneDay    = 2
	ExpirySevenDays = 3
	ExpiryThirty    = 4
)

// ShareRequest describes a share link to create.
type ShareRequest struct {
	FileIDs     []string
	Title       string
	URLType     int
	ExpiredType int
	Passcode    string
}

// CreateShare starts a share-creation task and returns its task id.
func (c *Client) CreateShare(ctx context.Context, r ShareRequest) (string, error) {
	body := map[string]interface{}{
		"fid_list":     r.FileIDs,
		"title":        r.Title,
		"url_type":     r.URLType,
		"expired_type": r.ExpiredType,
	}
	if r.URLType == URLTypeEncrypted {
		body["passcode"] = r.Passcode
	}
	env, err := c.call(ctx, "share.create", nethttp.MethodPost, c.driveURL+constants.PathShare, commonParams(), body, "")
	if err != nil {
		return "", err
	}
	return taskID("share.create", env)
}

// SharePassword is the public form of a created share.
type SharePassword struct {
	ShareURL string `json:"share_url"`
	Title    string `json:"title"`
	Passcode string `json:"passcode"`
}

// GetSharePassword returns the public URL (and passcode, if any) of a share.
func (c *Client) GetSharePassword(ctx context.Context, shareID string) (*SharePassword, error) {
	body := map[string]string{"share_id": shareID}
	env, err := c.call(ctx, "share.password", nethttp.MethodPost, c.driveURL+constants.PathSharePassword, commonParams(), body, "")
	if err != nil {
		return nil, err
	}
	var data SharePassword
	if err := decodeData("share.password", env, &data); err != nil {
		return nil, err
	}
	if data.ShareURL == "" {
		return nil, fmt.Errorf("share.password: %w", ErrEmptyData)
	}
	return &data, nil
}

// GetTask returns the current state of a server-side task.
func (c *Client) GetTask(ctx context.Context, taskID string, retryIndex int) (*models.TaskStatus, error) {
	q := commonParams()
	q.Set("task_id", taskID)
	q.Set("retry_index", strconv.Itoa(retryIndex))

	env, err := c.call(ctx, "task.get", nethttp.MethodGet, c.driveURL+constants.PathTask, q, nil, "")
	if err != nil {
		return nil, err
	}
	var status models.TaskStatus
	if err := decodeData("task.get", env, &status); err != nil {
		return nil, err
	}
	if status.TaskID == "" {
		status.TaskID = taskID
	}
	return &status, nil
}

func taskID(op string, env *envelope) (string, error) {
	var data struct {
		TaskID string `json:"task_id"`
	}
	if err := decodeData(op, env, &data); err != nil {
		return "", err
	}
	if data.TaskID == "" {
		return "", fmt.Errorf("%s: response has no task id", op)
	}
	return data.TaskID, nil
}
