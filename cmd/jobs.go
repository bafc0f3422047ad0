package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Print the job plan as JSON",
	Long: `Plan a retile run and print its jobs to stdout without reading any
source tile. Each job names an output tile and the pixel regions of the
source tiles that contribute to it.

Examples:
  retile jobs --config retile.yaml --begin-level 1 | jq length`,
	PreRunE: bindJobFlags,
	RunE:    runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	addJobFlags(jobsCmd.Flags())
	jobsCmd.Flags().Bool("indent", false, "indent the JSON output")
}

func runJobs(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadJobConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	p, err := planPipeline(cmd.Context(), cfg, newTransport(cfg), logger)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if indent, _ := cmd.Flags().GetBool("indent"); indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(p.jobs); err != nil {
		return fmt.Errorf("write jobs: %w", err)
	}
	return nil
}
