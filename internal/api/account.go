package api

import (
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/url"

	"github.com/quarkpan/quarkpan/internal/constants"
)

// AccountInfo is the subset of the account endpoint the tool uses.
type AccountInfo struct {
	Nickname  string `json:"nickname"`
	AvatarURI string `json:"avatarUri"`
	Mobile    string `json:"mobilekps"`
}

// GetAccountInfo returns the logged-in account. An empty payload means the
// cookie is not accepted and is reported as ErrInvalidSession.
func (c *Client) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	q := url.Values{}
	q.Set("fr", constants.QueryFrom)
	q.Set("platform", constants.QueryPlatform)

	resp, err := c.doRequest(ctx, "account.info", nethttp.MethodGet, c.panURL+constants.PathAccountInfo, q, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == nethttp.StatusUnauthorized {
		return nil, ErrInvalidSession
	}
	if resp.StatusCode != nethttp.StatusOK {
		return nil, &APIError{Op: "account.info", HTTPStatus: resp.StatusCode}
	}

	// This endpoint uses a string code, so it is not decoded as an envelope
	var body struct {
		Data *AccountInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("account.info: failed to decode response: %w", err)
	}
	if body.Data == nil || body.Data.Nickname == "" {
		return nil, ErrInvalidSession
	}
	return body.Data, nil
}
