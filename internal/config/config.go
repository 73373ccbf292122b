// Package config provides configuration management for quarkpan.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/ini.v1"

	"github.com/quarkpan/quarkpan/internal/constants"
)

// Config is the persisted tool configuration.
//
// INI format:
//
//	[session]
//	active_user = alice
//	destination_dir_id = 0
//	destination_dir_name = root
//
//	[transfer]
//	workers = 1
//	max_concurrent_downloads = 4
//	download_dir = downloads
//	share_dir = share
//	throttle_limit = 5
//
//	[proxy]
//	mode = no-proxy
//	host =
//	port = 8080
//	user =
//	password =
//	no_proxy =
//
//	[api]
//	drive_url = https://drive-pc.quark.cn
//	save_url = https://drive.quark.cn
//	pan_url = https://pan.quark.cn
type Config struct {
	// Session state
	ActiveUser         string
	DestinationDirID   string `validate:"required"`
	DestinationDirName string

	// Session cookie. Never written to the ini file; see cookie.go.
	Cookie string

	// Transfer settings
	Workers                int    `validate:"min=1,max=8"`
	MaxConcurrentDownloads int    `validate:"min=1,max=10"`
	DownloadDir            string `validate:"required"`
	ShareDir               string `validate:"required"`
	ThrottleLimit          int    `validate:"min=0"`

	// Proxy settings
	ProxyMode     string `validate:"oneof=no-proxy system basic ntlm"`
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string // Comma-separated list of hosts to bypass proxy

	// API endpoints
	DriveURL string `validate:"required,url"`
	SaveURL  string `validate:"required,url"`
	PanURL   string `validate:"required,url"`
}

// ErrMissingCookie is returned when no session cookie has been configured.
var ErrMissingCookie = errors.New("no session cookie configured: run 'quarkpan login' first")

var validate = validator.New()

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		DestinationDirID:       constants.RootFolderID,
		DestinationDirName:     constants.RootFolderName,
		Workers:                constants.DefaultWorkers,
		MaxConcurrentDownloads: constants.DefaultMaxConcurrent,
		DownloadDir:            constants.DefaultDownloadDir,
		ShareDir:               constants.DefaultShareDir,
		ThrottleLimit:          constants.DefaultThrottleLimit,
		ProxyMode:              "no-proxy",
		DriveURL:               constants.DefaultDriveURL,
		SaveURL:                constants.DefaultSaveURL,
		PanURL:                 constants.DefaultPanURL,
	}
}

// DefaultConfigPath returns the default config file location.
// - Windows: %USERPROFILE%\.config\quarkpan\config.ini
// - Unix: ~/.config/quarkpan/config.ini
func DefaultConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.ini"), nil
}

// Load reads configuration from an INI file.
// A missing file yields defaults and no error.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	session := iniFile.Section("session")
	cfg.ActiveUser = session.Key("active_user").String()
	cfg.DestinationDirID = session.Key("destination_dir_id").MustString(cfg.DestinationDirID)
	cfg.DestinationDirName = session.Key("destination_dir_name").MustString(cfg.DestinationDirName)

	transfer := iniFile.Section("transfer")
	cfg.Workers = transfer.Key("workers").MustInt(cfg.Workers)
	cfg.MaxConcurrentDownloads = transfer.Key("max_concurrent_downloads").MustInt(cfg.MaxConcurrentDownloads)
	cfg.DownloadDir = transfer.Key("download_dir").MustString(cfg.DownloadDir)
	cfg.ShareDir = transfer.Key("share_dir").MustString(cfg.ShareDir)
	cfg.ThrottleLimit = transfer.Key("throttle_limit").MustInt(cfg.ThrottleLimit)

	proxy := iniFile.Section("proxy")
	cfg.ProxyMode = proxy.Key("mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = proxy.Key("host").String()
	cfg.ProxyPort = proxy.Key("port").MustInt(0)
	cfg.ProxyUser = proxy.Key("user").String()
	cfg.ProxyPassword = proxy.Key("password").String()
	cfg.NoProxy = proxy.Key("no_proxy").String()

	apiSection := iniFile.Section("api")
	cfg.DriveURL = apiSection.Key("drive_url").MustString(cfg.DriveURL)
	cfg.SaveURL = apiSection.Key("save_url").MustString(cfg.SaveURL)
	cfg.PanURL = apiSection.Key("pan_url").MustString(cfg.PanURL)

	return cfg, nil
}

// Save writes configuration to an INI file, creating parent directories.
// The cookie is not part of the file.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	session, err := iniFile.NewSection("session")
	if err != nil {
		return fmt.Errorf("failed to create session section: %w", err)
	}
	session.Key("active_user").SetValue(cfg.ActiveUser)
	session.Key("destination_dir_id").SetValue(cfg.DestinationDirID)
	session.Key("destination_dir_name").SetValue(cfg.DestinationDirName)

	transfer, err := iniFile.NewSection("transfer")
	if err != nil {
		return fmt.Errorf("failed to create transfer section: %w", err)
	}
	transfer.Key("workers").SetValue(fmt.Sprintf("%d", cfg.Workers))
	transfer.Key("max_concurrent_downloads").SetValue(fmt.Sprintf("%d", cfg.MaxConcurrentDownloads))
	transfer.Key("download_dir").SetValue(cfg.DownloadDir)
	transfer.Key("share_dir").SetValue(cfg.ShareDir)
	transfer.Key("throttle_limit").SetValue(fmt.Sprintf("%d", cfg.ThrottleLimit))

	proxy, err := iniFile.NewSection("proxy")
	if err != nil {
		return fmt.Errorf("failed to create proxy section: %w", err)
	}
	proxy.Key("mode").SetValue(cfg.ProxyMode)
	proxy.Key("host").SetValue(cfg.ProxyHost)
	proxy.Key("port").SetValue(fmt.Sprintf("%d", cfg.ProxyPort))
	proxy.Key("user").SetValue(cfg.ProxyUser)
	proxy.Key("password").SetValue(cfg.ProxyPassword)
	proxy.Key("no_proxy").SetValue(cfg.NoProxy)

	apiSection, err := iniFile.NewSection("api")
	if err != nil {
		return fmt.Errorf("failed to create api section: %w", err)
	}
	apiSection.Key("drive_url").SetValue(cfg.DriveURL)
	apiSection.Key("save_url").SetValue(cfg.SaveURL)
	apiSection.Key("pan_url").SetValue(cfg.PanURL)

	// Temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	// Proxy password may be stored here
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks field ranges and required values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireCookie returns ErrMissingCookie when no session cookie is set.
func (c *Config) RequireCookie() error {
	if strings.TrimSpace(c.Cookie) == "" {
		return ErrMissingCookie
	}
	return nil
}

// SwitchUser records the logged-in account. When the account differs from the
// previously active one, the destination is reset to the storage root because
// folder ids are not portable between accounts. Returns true if it was reset.
func (c *Config) SwitchUser(user string) bool {
	if c.ActiveUser == user {
		return false
	}
	reset := c.ActiveUser != ""
	c.ActiveUser = user
	if reset {
		c.SetDestination(constants.RootFolderID, constants.RootFolderName)
	}
	return reset
}

// SetDestination changes the save destination folder.
func (c *Config) SetDestination(id, name string) {
	c.DestinationDirID = id
	c.DestinationDirName = name
}

// MergeWithFlags applies non-empty command-line overrides.
func (c *Config) MergeWithFlags(cookie string, workers int) {
	if cookie != "" {
		c.Cookie = strings.TrimSpace(cookie)
	}
	if workers > 0 {
		c.Workers = workers
	}
}
