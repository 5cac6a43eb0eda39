package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cabinet/internal/fslock"
	"cabinet/internal/logger"
	"cabinet/internal/model"
	"cabinet/internal/syncer"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncPreset string

var syncCmd = &cobra.Command{
	Use:   "sync [source] [destination]",
	Short: "Mirror a source tree onto a destination tree once",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, dst := args[0], args[1]

		p, err := cfg.SyncPreset(syncPreset)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		lock, err := fslock.Acquire(cfg.LockDir, src, dst)
		if err != nil {
			return err
		}
		defer lock.Release()

		logger.Log.Info("starting full sync",
			zap.String("src", src),
			zap.String("dst", dst),
			zap.String("policy", p.String()))

		report, err := syncer.New(cfg.SyncOptions(logger.Log)).Sync(ctx, src, dst, p)
		saveRun(model.RunSync, src, dst, p.Name, report.Mutations(), len(report.Failures), err)

		fmt.Print(report.String())
		printFailures(report.Failures)
		fmt.Printf("done: %d changed, %d failed\n", report.Mutations(), len(report.Failures))
		return err
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncPreset, "preset", "default", "Sync preset name (see 'cabinet presets')")
	rootCmd.AddCommand(syncCmd)
}
