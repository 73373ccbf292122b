package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/quarkpan/quarkpan/internal/api"
	"github.com/quarkpan/quarkpan/internal/config"
	"github.com/quarkpan/quarkpan/internal/traverse"
)

// loadConfig reads the config file and applies the cookie from, in order,
// --cookie, --cookie-file and the stored cookie file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	switch {
	case cookie != "":
		cfg.MergeWithFlags(cookie, 0)
	case cookieFile != "":
		c, err := config.ReadCookieFile(cookieFile)
		if err != nil {
			return nil, err
		}
		cfg.MergeWithFlags(c, 0)
	default:
		c, err := config.LoadCookie("")
		if err != nil {
			return nil, err
		}
		cfg.MergeWithFlags(c, 0)
	}
	return cfg, nil
}

// saveConfig writes cfg back to the file it was loaded from.
func saveConfig(cfg *config.Config) error {
	if err := config.Save(cfg, cfgFile); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// getAPIClient loads configuration and creates an API client. A missing
// cookie is reported before any request is made.
func getAPIClient() (*api.Client, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.RequireCookie(); err != nil {
		return nil, nil, err
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return client, cfg, nil
}

// describeError returns extra guidance for errors that stopped a run.
func describeError(err error) string {
	if hint := api.Describe(err); hint != "" && hint != err.Error() {
		return "Hint: " + hint
	}
	if errors.Is(err, traverse.ErrSustainedThrottle) {
		return "Hint: the server is rate limiting this account; wait a while, then run 'quarkpan share retry'"
	}
	return ""
}

// readURLFile returns the share URLs found in a text file, in order.
func readURLFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read URL file: %w", err)
	}
	return api.ExtractURLs(string(data)), nil
}

// collectURLs merges positional URLs with those read from fromFile.
func collectURLs(args []string, fromFile string) ([]string, error) {
	var urls []string
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			urls = append(urls, a)
		}
	}
	if fromFile != "" {
		fileURLs, err := readURLFile(fromFile)
		if err != nil {
			return nil, err
		}
		urls = append(urls, fileURLs...)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no share links given: pass URLs as arguments or use --from-file")
	}
	return urls, nil
}
