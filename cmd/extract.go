package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/spf13/cobra"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/job"
)

var extractDate string

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract the stored bill archives of one day",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		loc, err := cfg.Job.Location()
		if err != nil {
			return err
		}
		date, err := job.TargetDate(extractDate, time.Now(), loc)
		if err != nil {
			return err
		}
		day := date.Format(job.DateLayout)

		result, err := ET.UnwrapError(services.Extractor.ExtractDate(ctx, day)())
		if err != nil {
			return fmt.Errorf("extract failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "date=%s archives=%d files=%d failed=%d\n",
			day, result.Archives, result.Files, result.Failed)
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractDate, "date", "", "Bill date (YYYY-MM-DD), defaults to yesterday")
}
