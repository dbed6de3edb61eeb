package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/job"
)

var billsDate string

var billsCmd = &cobra.Command{
	Use:   "bills",
	Short: "Inspect downloaded bill records",
}

var billsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the bill records of one day",
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := cfg.Job.Location()
		if err != nil {
			return err
		}
		date, err := job.TargetDate(billsDate, time.Now(), loc)
		if err != nil {
			return err
		}
		records, err := services.Bills.ListByDate(cmd.Context(), date.Format(job.DateLayout))
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "APP ID\tTYPE\tLABEL\tSTATUS\tLOCAL FILE\tLAST ERROR")
		for _, r := range records {
			appID := fmt.Sprintf("account-%d", r.AccountID)
			if r.Account != nil {
				appID = r.Account.AppID
			}
			local := "-"
			if r.LocalFile != nil {
				local = *r.LocalFile
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				appID, r.Type, r.Type.Label(), r.Status, local, r.LastError)
		}
		return w.Flush()
	},
}

func init() {
	billsListCmd.Flags().StringVar(&billsDate, "date", "", "Bill date (YYYY-MM-DD), defaults to yesterday")
	billsCmd.AddCommand(billsListCmd)
}
