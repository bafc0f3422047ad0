package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiesman99/retile/internal/retile"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Retile a dataset",
	Long: `Read every source tile touching the region, resample it onto the output
grid and write the output tiles, including coarser pyramid levels from
--end-level up to --begin-level.

Missing or unreadable source tiles are logged and skipped. Failed output
writes are reported at the end and make the command exit non-zero.

Examples:
  # Use the manifest bounds as the region
  retile run --config retile.yaml

  # Override the region and levels
  retile run --config retile.yaml --region 0,0,1201,1201 --begin-level 3`,
	PreRunE: bindJobFlags,
	RunE:    runRetile,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addJobFlags(runCmd.Flags())
}

func runRetile(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadJobConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := planPipeline(ctx, cfg, newTransport(cfg), logger)
	if err != nil {
		return err
	}

	o, err := retile.New(p.source, p.output, logger)
	if err != nil {
		return err
	}

	stats, err := o.Run(ctx, p.jobs)
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("interrupted after %d of %d jobs", stats.Jobs, len(p.jobs))
	}
	if err != nil {
		return fmt.Errorf("%d output tiles could not be written: %w", stats.WritesFailed, err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d tiles (%d empty, %d source regions skipped) in %s\n",
		stats.Written, stats.Empty, stats.RegionsFailed, stats.Duration.Round(time.Millisecond))
	return nil
}
