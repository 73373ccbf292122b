package models

// RetryRecord is one unresolved failure in a retry ledger.
type RetryRecord struct {
	Seq    int
	Path   []string
	NodeID string
}

// Label returns the last path segment, used as the share title on replay.
func (r RetryRecord) Label() string {
	if len(r.Path) == 0 {
		return r.NodeID
	}
	return r.Path[len(r.Path)-1]
}

// ShareRecord is one successfully created share link.
type ShareRecord struct {
	Seq  int
	Path []string
	URL  string
}

// ShareLink is the public form of a created share.
type ShareLink struct {
	ShareID  string
	Title    string
	URL      string
	Passcode string
}

// FileAction is one file discovered by a full-depth walk, together with the
// destination it is bound for.
type FileAction struct {
	Node      Node
	Path      []string
	DestDirID string
}
