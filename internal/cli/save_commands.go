package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/progress"
	"github.com/quarkpan/quarkpan/internal/services"
	"github.com/quarkpan/quarkpan/internal/traverse"
)

// newSaveCmd creates the 'save' command.
func newSaveCmd() *cobra.Command {
	var (
		fromFile string
		retry    bool
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "save [share-url...]",
		Short: "Save share links into the destination folder",
		Long: `Save every item of one or more share links into the destination folder.

Links come from the arguments and --from-file (any text file; every http(s)
address in it is used). With neither, ./url.txt is read when present.

Links that fail for a reason a retry may fix are written to
<share_dir>/save_retry.txt as "seq | pwd_id | url". Replay them with --retry.
Links that already belong to this account are skipped.

Examples:
  quarkpan save https://pan.quark.cn/s/abcd1234?pwd=x1y2
  quarkpan save --from-file links.txt
  quarkpan save --retry
  quarkpan save --dry-run https://pan.quark.cn/s/abcd1234`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			ctx := GetContext()
			svc := services.NewSaveService(client, afero.NewOsFs(), logger)
			ledgerPath := filepath.Join(cfg.ShareDir, constants.SaveRetryLedger)

			var result *services.SaveBatchResult
			if retry {
				result, err = svc.RetryBatch(ctx, cfg.DestinationDirID, ledgerPath)
				printSaveResult(result)
				return err
			}

			if fromFile == "" && len(args) == 0 {
				if _, statErr := os.Stat(constants.DefaultURLFile); statErr == nil {
					fromFile = constants.DefaultURLFile
				}
			}
			urls, err := collectURLs(args, fromFile)
			if err != nil {
				return err
			}

			if dryRun {
				return planLinks(svc, urls, cfg.DestinationDirID)
			}

			fmt.Printf("Saving %d link(s) into %s\n", len(urls), cfg.DestinationDirName)
			result, err = svc.SaveBatch(ctx, urls, cfg.DestinationDirID, ledgerPath)
			printSaveResult(result)
			return err
		},
	}

	cmd.Flags().StringVarP(&fromFile, "from-file", "f", "", "Read share links from a text file")
	cmd.Flags().BoolVar(&retry, "retry", false, "Replay links recorded in the save retry ledger")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what each link contains without saving")

	return cmd
}

func printSaveResult(r *services.SaveBatchResult) {
	if r == nil {
		return
	}
	for _, s := range r.Saved {
		fmt.Printf("✓ %s -> %s (%d item(s))\n", s.PwdID, valueOr(s.FolderName, "destination"), s.Items)
	}
	fmt.Printf("\nSaved: %d, skipped: %d, failed: %d\n", len(r.Saved), r.Skipped, r.Failed)
	if r.Failed > 0 {
		fmt.Printf("Failed links recorded in %s; run 'quarkpan save --retry' to replay them.\n", r.LedgerPath)
	}
}

// planLinks prints the transfer plan of each link.
func planLinks(svc *services.SaveService, urls []string, destDirID string) error {
	for _, u := range urls {
		scan := progress.NewScanProgress("scanning " + u)
		svc.SetScanObserver(func(st traverse.WalkStats) { scan.Update(st.Directories, st.Files) })
		plan, err := svc.Plan(GetContext(), u, destDirID)
		scan.Finish()
		if err != nil {
			return err
		}

		owner := ""
		if plan.IsOwner {
			owner = " (already yours)"
		}
		fmt.Printf("%s%s: %d folder(s), %d file(s), %s\n",
			plan.PwdID, owner, plan.Folders, len(plan.Files), humanize.IBytes(uint64(plan.Bytes)))
		if verbose || debug {
			for _, f := range plan.Files {
				fmt.Printf("  %s\n", filepath.Join(append(append([]string{}, f.Path...), f.Node.Name)...))
			}
		}
	}
	return nil
}
