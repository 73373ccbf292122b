package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarkpan/quarkpan/internal/api"
	"github.com/quarkpan/quarkpan/internal/config"
	"github.com/quarkpan/quarkpan/internal/services"
)

// newLoginCmd creates the 'login' command.
func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store the session cookie",
		Long: `Store the session cookie used for every request.

The cookie is the value of the Cookie header sent by a logged-in browser
session on pan.quark.cn. It is read from --cookie, --cookie-file, or a hidden
prompt, checked against the account endpoint and written with 0600
permissions to ~/.config/quarkpan/cookies.txt.

Examples:
  quarkpan login
  quarkpan login --cookie-file ./cookie.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			value := cookie
			if value == "" && cookieFile != "" {
				c, err := config.ReadCookieFile(cookieFile)
				if err != nil {
					return err
				}
				value = c
			}
			if value == "" {
				c, err := promptSecret("Cookie: ")
				if err != nil {
					return err
				}
				value = c
			}

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg.MergeWithFlags(value, 0)
			if err := cfg.RequireCookie(); err != nil {
				return err
			}

			client, err := api.NewClient(cfg)
			if err != nil {
				return fmt.Errorf("failed to create API client: %w", err)
			}
			info, reset, err := services.NewAccountService(client, cfg, logger).Identify(GetContext())
			if err != nil {
				return err
			}

			path, err := config.DefaultCookiePath()
			if err != nil {
				return err
			}
			if err := config.WriteCookieFile(path, value); err != nil {
				return err
			}
			if err := saveConfig(cfg); err != nil {
				return err
			}

			fmt.Printf("Logged in as %s\n", info.Nickname)
			if reset {
				fmt.Println("Account changed: destination reset to the root folder.")
			}
			logger.Debug().Str("path", path).Msg("cookie saved")
			return nil
		},
	}
}

// newWhoamiCmd creates the 'whoami' command.
func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			info, reset, err := services.NewAccountService(client, cfg, GetLogger()).Identify(GetContext())
			if err != nil {
				return err
			}
			if reset {
				if err := saveConfig(cfg); err != nil {
					return err
				}
			}

			fmt.Printf("Account:     %s\n", info.Nickname)
			fmt.Printf("Destination: %s (%s)\n", cfg.DestinationDirName, cfg.DestinationDirID)
			return nil
		},
	}
}

// newMkdirCmd creates the 'mkdir' command.
func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a root folder and use it as destination",
		Long: `Create a folder directly under the storage root and make it the
destination for 'save'. A folder with the same name is reported as a conflict.

Example:
  quarkpan mkdir Incoming`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			entry, err := services.NewAccountService(client, cfg, GetLogger()).CreateFolder(GetContext(), args[0])
			if err != nil {
				return err
			}
			if err := saveConfig(cfg); err != nil {
				return err
			}
			fmt.Printf("Created %s (%s); destination updated.\n", entry.Name, entry.ID)
			return nil
		},
	}
}
