package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cabinet/internal/fslock"
	"cabinet/internal/logger"
	"cabinet/internal/merge"
	"cabinet/internal/model"
	"cabinet/internal/works"

	"github.com/spf13/cobra"
)

var (
	worksPolicy string
	worksExts   []string
)

var worksCmd = &cobra.Command{
	Use:   "works [from] [to]",
	Short: "Merge every work folder of one pack into the same-named folders of another",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := replacePolicy(worksPolicy, worksExts)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		from, to := args[0], args[1]
		lock, err := fslock.Acquire(cfg.LockDir, from, to)
		if err != nil {
			return err
		}
		defer lock.Release()

		res, err := works.MoveWorks(ctx, from, to, p, merge.New(cfg.MergeOptions(logger.Log)))
		saveRun(model.RunWorks, from, to, p.String(), res.Mutations, len(res.Failures), err)

		printFailures(res.Failures)
		fmt.Printf("done: %d works, %d changed, %d failed\n", len(res.Works), res.Mutations, len(res.Failures))
		return err
	},
}

func init() {
	worksCmd.Flags().StringVar(&worksPolicy, "policy", "update-pack", "Replace policy preset")
	worksCmd.Flags().StringArrayVar(&worksExts, "ext", nil, "Per-extension override as ext=ACTION, repeatable")
	rootCmd.AddCommand(worksCmd)
}
