package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/job"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the download on the configured cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		loc, err := cfg.Job.Location()
		if err != nil {
			return err
		}
		s, err := schedule.New(ctx, cfg.Job.Schedule, loc, logger, func(ctx context.Context) {
			date, err := job.TargetDate("", time.Now(), loc)
			if err != nil {
				logger.Errorw("Scheduled run skipped", "error", err)
				return
			}
			if _, err := services.Downloader.Run(ctx, date, job.Options{}); err != nil {
				logger.Errorw("Scheduled run failed", "date", date.Format(job.DateLayout), "error", err)
			}
		})
		if err != nil {
			return err
		}
		return s.Run(ctx)
	},
}
