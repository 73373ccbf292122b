package cli

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/progress"
	"github.com/quarkpan/quarkpan/internal/services"
)

// shareFlags are the link options shared by 'share' and 'share retry'.
type shareFlags struct {
	expiry   string
	encrypt  bool
	password string
	workers  int
}

func (f *shareFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.expiry, "expiry", "e", "permanent", "Link lifetime: 1d, 7d, 30d or permanent")
	cmd.Flags().BoolVar(&f.encrypt, "encrypt", false, "Protect links with a generated 4-character passcode")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "Protect links with this passcode (implies --encrypt)")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0,
		fmt.Sprintf("Concurrent share requests (%d-%d, default from config)", constants.MinWorkers, constants.MaxWorkers))
}

func (f *shareFlags) resolveWorkers(configured int) int {
	if f.workers > 0 {
		return f.workers
	}
	return configured
}

// newShareCmd creates the 'share' command.
func newShareCmd() *cobra.Command {
	var (
		flags shareFlags
		depth int
	)

	cmd := &cobra.Command{
		Use:   "share <folder-url>",
		Short: "Create share links for folders of your storage",
		Long: `Create one share link per folder at a fixed depth below a folder.

The folder is given by its web address (https://pan.quark.cn/list#/list/all/<id>-<name>)
or its id. Depth 0 shares the folder itself, 1 each child folder, 2 each
grandchild folder.

Links are written in listing order to <share_dir>/share_url.txt as
"seq | path | url"; the previous file is kept as share_url_backup.txt.
Folders that failed every attempt go to <share_dir>/retry.txt; replay them
with 'quarkpan share retry'.

Examples:
  quarkpan share https://pan.quark.cn/list#/list/all/3f2a9c-Movies --depth 1
  quarkpan share 3f2a9c --depth 2 --expiry 7d --encrypt --workers 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			expiry, err := services.ParseExpiry(flags.expiry)
			if err != nil {
				return err
			}

			svc := services.NewShareService(client, afero.NewOsFs(), GetLogger())
			svc.SetReporter(progress.NewCLIProgress())
			result, err := svc.Run(GetContext(), services.ShareOptions{
				FolderURL:     args[0],
				Depth:         depth,
				Expiry:        expiry,
				Encrypt:       flags.encrypt,
				Password:      flags.password,
				Workers:       flags.resolveWorkers(cfg.Workers),
				ThrottleLimit: cfg.ThrottleLimit,
				OutputDir:     cfg.ShareDir,
			})
			printShareResult(result)
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&depth, "depth", "d", 1, "Level below the folder to share (0, 1 or 2)")
	cmd.AddCommand(newShareRetryCmd())

	return cmd
}

// newShareRetryCmd creates the 'share retry' command.
func newShareRetryCmd() *cobra.Command {
	var flags shareFlags

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Replay folders recorded in the share retry ledger",
		Long: `Re-create links for every folder in <share_dir>/retry.txt.

New links are appended to <share_dir>/retry_share_url.txt and retry.txt is
rewritten with the folders that failed again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			expiry, err := services.ParseExpiry(flags.expiry)
			if err != nil {
				return err
			}

			svc := services.NewShareService(client, afero.NewOsFs(), GetLogger())
			svc.SetReporter(progress.NewCLIProgress())
			result, err := svc.Retry(GetContext(), services.ShareRetryOptions{
				Expiry:        expiry,
				Encrypt:       flags.encrypt,
				Password:      flags.password,
				Workers:       flags.resolveWorkers(cfg.Workers),
				ThrottleLimit: cfg.ThrottleLimit,
				OutputDir:     cfg.ShareDir,
			})
			printShareResult(result)
			return err
		},
	}

	flags.register(cmd)
	return cmd
}

func printShareResult(r *services.ShareRunResult) {
	if r == nil || r.Summary == nil {
		return
	}
	s := r.Summary
	if s.Targets == 0 {
		fmt.Println("Nothing to share.")
		return
	}
	fmt.Printf("\nShared: %d/%d, failed: %d\n", s.Succeeded, s.Targets, s.Failed)
	fmt.Printf("Links: %s\n", r.OutputPath)
	if s.Failed > 0 {
		fmt.Printf("Failed folders recorded in %s; run 'quarkpan share retry' to replay them.\n", r.LedgerPath)
	}
}
