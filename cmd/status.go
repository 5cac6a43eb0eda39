package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"cabinet/internal/model"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Jobs []model.JobSnapshot `json:"jobs"`
		}
		if err := call(http.MethodGet, "/status", nil, &result); err != nil {
			return err
		}

		if len(result.Jobs) == 0 {
			fmt.Println("no active jobs")
			return nil
		}

		rows := make([][]string, 0, len(result.Jobs))
		for _, snap := range result.Jobs {
			lastRun := "-"
			if snap.LastRun != nil {
				lastRun = snap.LastRun.Format("2006-01-02 15:04:05")
			}

			rows = append(rows, []string{
				strconv.FormatUint(uint64(snap.JobID), 10),
				string(snap.Status),
				snap.Src,
				snap.Dst,
				strconv.Itoa(snap.Runs),
				strconv.Itoa(snap.Mutations),
				strconv.Itoa(snap.Failed),
				lastRun,
				time.Since(snap.StartedAt).Round(time.Second).String(),
			})
		}

		fmt.Println(renderTable(os.Stdout,
			[]string{"JOB", "STATUS", "SRC", "DST", "RUNS", "CHANGED", "FAILED", "LAST RUN", "UPTIME"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight}))

		for _, snap := range result.Jobs {
			if snap.LastError != "" {
				fmt.Printf("job %d: %s\n", snap.JobID, snap.LastError)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
