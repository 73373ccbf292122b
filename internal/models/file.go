package models

// Node is one entry of a directory listing, either a folder or a file.
// Nodes are snapshots of a single listing call and are never mutated.
type Node struct {
	ID             string `json:"fid"`
	Name           string `json:"file_name"`
	IsDir          bool   `json:"dir"`
	ParentID       string `json:"pdir_fid"`
	FileType       int    `json:"file_type"`
	ChildCountHint int    `json:"include_items,omitempty"`
	ShareToken     string `json:"share_fid_token,omitempty"`
	Status         int    `json:"status"`
	Size           int64  `json:"size,omitempty"`
	UpdatedAt      int64  `json:"updated_at,omitempty"`
}

// PageCursor is the listing metadata returned with every page.
type PageCursor struct {
	Page  int `json:"_page"`
	Size  int `json:"_size"`
	Total int `json:"_total"`
	Count int `json:"_count"`
}

// IsLast reports whether the page described by the cursor is the final one.
// A short page is not treated as completion on its own.
func (c PageCursor) IsLast() bool {
	return c.Page*c.Size >= c.Total
}

// FolderEntry is a folder of the user's own storage, used by destination pickers.
type FolderEntry struct {
	ID   string
	Name string
}

// DownloadInfo is a file with a resolved download URL.
type DownloadInfo struct {
	ID          string `json:"fid"`
	Name        string `json:"file_name"`
	ParentID    string `json:"pdir_fid"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url"`
}
