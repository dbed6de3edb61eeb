package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/job"
)

var (
	downloadDate    string
	downloadAccount string
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download yesterday's bills of every valid account",
	Long: `Query, fetch and store the daily bills of every valid account for each
bill type. --date replays an earlier day; failures of single bills are
reported in the summary and do not fail the command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		loc, err := cfg.Job.Location()
		if err != nil {
			return err
		}
		date, err := job.TargetDate(downloadDate, time.Now(), loc)
		if err != nil {
			return err
		}

		summary, err := services.Downloader.Run(ctx, date, job.Options{AppID: downloadAccount})
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, summary)
		if breakdown := summary.Breakdown(); breakdown != "" {
			fmt.Fprintln(out, "failures:", breakdown)
		}
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringVar(&downloadDate, "date", "", "Bill date (YYYY-MM-DD), defaults to yesterday")
	downloadCmd.Flags().StringVar(&downloadAccount, "account", "", "Only download bills of this app id")
}
