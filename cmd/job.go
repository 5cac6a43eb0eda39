package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"cabinet/internal/model"
	"cabinet/internal/repository"

	"github.com/spf13/cobra"
)

var errDaemonDown = errors.New("daemon not running")

var jobPreset string

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage mirror jobs",
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Jobs    []model.Job                  `json:"jobs"`
			Running map[string]model.JobSnapshot `json:"running"`
		}

		err := call(http.MethodGet, "/jobs", nil, &result)
		if errors.Is(err, errDaemonDown) {
			// Saved jobs are still listed, none of them running.
			result.Jobs, err = repository.NewJobRepository().GetAll()
		}
		if err != nil {
			return err
		}

		if len(result.Jobs) == 0 {
			fmt.Println("no jobs configured")
			return nil
		}

		rows := make([][]string, 0, len(result.Jobs))
		for _, j := range result.Jobs {
			runs, failed := "-", "-"
			if r, ok := result.Running[strconv.FormatUint(uint64(j.ID), 10)]; ok {
				runs = strconv.Itoa(r.Runs)
				failed = strconv.Itoa(r.Failed)
			}
			rows = append(rows, []string{strconv.FormatUint(uint64(j.ID), 10), string(j.Status), j.Preset, j.SrcPath, j.DstPath, runs, failed})
		}

		fmt.Println(renderTable(os.Stdout,
			[]string{"ID", "STATUS", "PRESET", "SRC", "DST", "RUNS", "FAILED"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight}))
		return nil
	},
}

var jobAddCmd = &cobra.Command{
	Use:   "add [src] [dst]",
	Short: "Add a new job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := cfg.SyncPreset(jobPreset); err != nil {
			return err
		}

		src, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		dst, err := filepath.Abs(args[1])
		if err != nil {
			return err
		}

		body, err := json.Marshal(map[string]string{"src": src, "dst": dst, "preset": jobPreset})
		if err != nil {
			return err
		}

		var job model.Job
		err = call(http.MethodPost, "/jobs", bytes.NewReader(body), &job)
		if errors.Is(err, errDaemonDown) {
			job, err = repository.NewJobRepository().Add(src, dst, jobPreset)
			if err == nil {
				fmt.Println("daemon not running, job saved for the next 'cabinet watch'")
			}
		}
		if err != nil {
			return err
		}

		fmt.Printf("job added: id=%d src=%s dst=%s preset=%s\n", job.ID, job.SrcPath, job.DstPath, job.Preset)
		return nil
	},
}

var jobRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodDelete, "/jobs/"+args[0], nil, nil); err != nil {
			return err
		}

		fmt.Printf("job %s removed\n", args[0])
		return nil
	},
}

var jobPauseCmd = &cobra.Command{
	Use:   "pause [id]",
	Short: "Pause a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodPost, "/jobs/"+args[0]+"/pause", nil, nil); err != nil {
			return err
		}

		fmt.Printf("job %s paused\n", args[0])
		return nil
	},
}

var jobResumeCmd = &cobra.Command{
	Use:   "resume [id]",
	Short: "Resume a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodPost, "/jobs/"+args[0]+"/resume", nil, nil); err != nil {
			return err
		}

		fmt.Printf("job %s resumed\n", args[0])
		return nil
	},
}

func init() {
	jobAddCmd.Flags().StringVar(&jobPreset, "preset", "default", "Sync preset name")
	jobCmd.AddCommand(jobListCmd, jobAddCmd, jobRemoveCmd, jobPauseCmd, jobResumeCmd)
	rootCmd.AddCommand(jobCmd)
}
