// Package cli provides configuration management commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quarkpan/quarkpan/internal/config"
	"github.com/quarkpan/quarkpan/internal/services"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage quarkpan configuration",
		Long: `Configuration management commands for quarkpan.

Commands:
  show      - Display current configuration
  set-dest  - Choose the destination folder for saves
  path      - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigSetDestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			cookieState := "not set"
			if cfg.RequireCookie() == nil {
				cookieState = "set"
			}

			fmt.Println("Session")
			fmt.Printf("  Active user:     %s\n", valueOr(cfg.ActiveUser, "(none)"))
			fmt.Printf("  Destination:     %s (%s)\n", cfg.DestinationDirName, cfg.DestinationDirID)
			fmt.Printf("  Cookie:          %s\n", cookieState)
			fmt.Println("Transfer")
			fmt.Printf("  Workers:         %d\n", cfg.Workers)
			fmt.Printf("  Max downloads:   %d\n", cfg.MaxConcurrentDownloads)
			fmt.Printf("  Download dir:    %s\n", cfg.DownloadDir)
			fmt.Printf("  Share dir:       %s\n", cfg.ShareDir)
			fmt.Printf("  Throttle limit:  %d\n", cfg.ThrottleLimit)
			fmt.Println("Proxy")
			fmt.Printf("  Mode:            %s\n", cfg.ProxyMode)
			if cfg.ProxyHost != "" {
				fmt.Printf("  Host:            %s:%d\n", cfg.ProxyHost, cfg.ProxyPort)
			}
			return nil
		},
	}
}

// newConfigSetDestCmd creates the 'config set-dest' command.
func newConfigSetDestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-dest [folder-id]",
		Short: "Choose the destination folder for saves",
		Long: `Choose the folder that 'save' writes into.

With an id, that root folder is selected ("0" selects the storage root).
Without one, the root folders are listed and a number is read from stdin.

Examples:
  quarkpan config set-dest
  quarkpan config set-dest 0
  quarkpan config set-dest 3f2a9c0d1e`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			svc := services.NewAccountService(client, cfg, GetLogger())
			ctx := GetContext()

			id := ""
			if len(args) == 1 {
				id = args[0]
			} else {
				folders, err := svc.RootFolders(ctx)
				if err != nil {
					return err
				}
				choice, err := promptFolder(os.Stdin, os.Stdout, folders)
				if err != nil {
					return err
				}
				id = choice.ID
			}

			entry, err := svc.SetDestination(ctx, id)
			if err != nil {
				return err
			}
			if err := saveConfig(cfg); err != nil {
				return err
			}
			fmt.Printf("Destination set to %s (%s)\n", entry.Name, entry.ID)
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				p, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = p
			}
			fmt.Println(path)
			return nil
		},
	}
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
