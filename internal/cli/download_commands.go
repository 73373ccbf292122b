package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/progress"
	"github.com/quarkpan/quarkpan/internal/services"
	"github.com/quarkpan/quarkpan/internal/traverse"
)

// newDownloadCmd creates the 'download' command.
func newDownloadCmd() *cobra.Command {
	var (
		fromFile      string
		outputDir     string
		maxConcurrent int
	)

	cmd := &cobra.Command{
		Use:   "download [share-url...]",
		Short: "Download share links you own",
		Long: `Download every file of one or more share links into a local folder.

Only links created from your own storage can be downloaded; save a foreign
link first, then share it. Files keep their folder layout under the output
directory. Files already present with the expected size are skipped and
interrupted files resume from their .part file.

Examples:
  quarkpan download https://pan.quark.cn/s/abcd1234
  quarkpan download --from-file share/share_url.txt -o ./mirror -m 6`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxConcurrent != 0 && (maxConcurrent < constants.MinMaxConcurrent || maxConcurrent > constants.MaxMaxConcurrent) {
				return fmt.Errorf("--max-concurrent must be between %d and %d, got %d",
					constants.MinMaxConcurrent, constants.MaxMaxConcurrent, maxConcurrent)
			}

			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			urls, err := collectURLs(args, fromFile)
			if err != nil {
				return err
			}

			opts := services.DownloadOptions{OutputDir: cfg.DownloadDir, MaxConcurrent: cfg.MaxConcurrentDownloads}
			if outputDir != "" {
				opts.OutputDir = outputDir
			}
			if maxConcurrent != 0 {
				opts.MaxConcurrent = maxConcurrent
			}

			svc := services.NewDownloadService(client, afero.NewOsFs(), GetLogger())
			var total services.DownloadResult
			for i, u := range urls {
				fmt.Printf("[%d/%d] %s\n", i+1, len(urls), u)

				ui := progress.NewDownloadUI(0)
				svc.SetUI(ui)
				svc.SetScanObserver(func(st traverse.WalkStats) { ui.SetTotal(st.Files) })

				res, err := svc.DownloadLink(GetContext(), u, opts)
				ui.Wait()
				if res != nil {
					total.Files += res.Files
					total.Skipped += res.Skipped
					total.Failed += res.Failed
					total.Bytes += res.Bytes
				}
				if err != nil {
					printDownloadResult(&total)
					return err
				}
			}
			printDownloadResult(&total)
			if total.Failed > 0 {
				return fmt.Errorf("%d file(s) failed to download; run the same command again to resume", total.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&fromFile, "from-file", "f", "", "Read share links from a text file")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Output directory (default from config)")
	cmd.Flags().IntVarP(&maxConcurrent, "max-concurrent", "m", 0,
		fmt.Sprintf("Maximum concurrent file downloads (%d-%d, default from config)", constants.MinMaxConcurrent, constants.MaxMaxConcurrent))

	return cmd
}

func printDownloadResult(r *services.DownloadResult) {
	fmt.Printf("\nDownloaded: %d file(s), %s; skipped: %d, failed: %d\n",
		r.Files, humanize.IBytes(uint64(r.Bytes)), r.Skipped, r.Failed)
}
