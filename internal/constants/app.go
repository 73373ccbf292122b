package constants

import (
	"time"
)

// Remote service hosts. Save requests go to a different host than the rest of
// the drive API; account info lives on the web host.
const (
	DefaultDriveURL = "https://drive-pc.quark.cn"
	DefaultSaveURL  = "https://drive.quark.cn"
	DefaultPanURL   = "https://pan.quark.cn"
)

// Endpoint paths
const (
	PathAccountInfo   = "/account/info"
	PathShareToken    = "/1/clouddrive/share/sharepage/token"
	PathShareDetail   = "/1/clouddrive/share/sharepage/detail"
	PathShareSave     = "/1/clouddrive/share/sharepage/save"
	PathFileSort      = "/1/clouddrive/file/sort"
	PathFile          = "/1/clouddrive/file"
	PathFileDownload  = "/1/clouddrive/file/download"
	PathTask          = "/1/clouddrive/task"
	PathShare         = "/1/clouddrive/share"
	PathSharePassword = "/1/clouddrive/share/password"
)

// Fixed query parameters carried by every drive request
const (
	QueryProduct  = "ucpro"
	QueryFrom     = "pc"
	QueryPlatform = "pc"
)

// Remote error codes recognized by the client.
const (
	// CodeCapacityLimit - the user's storage is full; saving anything else is pointless
	CodeCapacityLimit = 32003

	// CodeDestinationMissing - the configured destination folder no longer exists
	CodeDestinationMissing = 41013

	// CodeStaleSignature - download resolution rejected the client identity
	CodeStaleSignature = 23018

	// CodeFolderNameConflict - a folder with the same name already exists
	CodeFolderNameConflict = 23008
)

// Task states reported by the task endpoint
const (
	TaskStatusPending   = 0
	TaskStatusRunning   = 1
	TaskStatusCompleted = 2
)

// Root folder of a user's own storage
const (
	RootFolderID   = "0"
	RootFolderName = "root"
)

// Listing
const (
	// PageSize - children requested per listing page
	PageSize = 50

	// SortShareDetail - sort used for share page listings
	SortShareDetail = "file_type:asc,updated_at:desc"

	// SortByName - sort used for own-storage listings (share runs, folder pickers)
	SortByName = "file_type:asc,file_name:asc"
)

// HTTP timeouts
const (
	// RequestTimeout - connect and read timeout for every API call
	RequestTimeout = 60 * time.Second

	HTTPDialTimeout           = 30 * time.Second
	HTTPDialKeepAlive         = 30 * time.Second
	HTTPIdleConnTimeout       = 90 * time.Second
	HTTPTLSHandshakeTimeout   = 30 * time.Second
	HTTPExpectContinueTimeout = 1 * time.Second
)

// Transport-level retries for connection failures and 5xx responses
const (
	TransportRetryMax     = 2
	TransportRetryWaitMin = 1 * time.Second
	TransportRetryWaitMax = 10 * time.Second
)

// Task polling
const (
	// PollMaxAttempts - status requests before a task is declared timed out
	PollMaxAttempts = 50

	PollMinDelay = 500 * time.Millisecond
	PollMaxDelay = 1000 * time.Millisecond
)

// Per-node share actions
const (
	// NodeActionAttempts - attempts per node before it is written to the ledger
	NodeActionAttempts = 3

	// NodeActionDelayStep - jittered pre-attempt delay is a random multiple of this step (1-4 steps)
	NodeActionDelayStep  = 500 * time.Millisecond
	NodeActionDelaySteps = 4

	// MaxShareDepth - deepest share-mode depth policy
	MaxShareDepth = 2

	// DefaultThrottleLimit - consecutive throttled node failures before the run aborts
	DefaultThrottleLimit = 5
)

// Workers
const (
	DefaultWorkers = 1
	MinWorkers     = 1
	MaxWorkers     = 8

	DefaultMaxConcurrent = 4
	MinMaxConcurrent     = 1
	MaxMaxConcurrent     = 10
)

// Downloads
const (
	// DownloadStreamAttempts - attempts per file stream before it is reported failed
	DownloadStreamAttempts = 3

	// MaxResolveDepth - parent-chain bound used when traversal depth is unbounded
	MaxResolveDepth = 256

	DownloadBufferSize = 256 * 1024
)

// Share links
const (
	// PasscodeLength - length of generated share passwords
	PasscodeLength = 4
)

// Local layout
const (
	DefaultDownloadDir = "downloads"
	DefaultShareDir    = "share"

	ShareOutputFile      = "share_url.txt"
	ShareOutputBackup    = "share_url_backup.txt"
	ShareRetryLedger     = "retry.txt"
	ShareRetryOutputFile = "retry_share_url.txt"
	SaveRetryLedger      = "save_retry.txt"
	DefaultURLFile       = "url.txt"
)

// Rate limiting for the drive API
const (
	APIRatePerSec    = 5.0
	APIBurstCapacity = 20
	StokenCacheSize  = 128
)

// Client identities. The alternate identity is used once when the download
// endpoint reports a stale signature.
const (
	UserAgentBrowser = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/143.0.0.0 Safari/537.36 Edg/143.0.0.0"
	UserAgentDesktop = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) quark-cloud-drive/2.5.56 Chrome/100.0.4896.160 " +
		"Electron/18.3.5.12-a038f7b798 Safari/537.36 Channel/pckk_other_ch"
	DesktopClientVersion = "2.5.56"
)
