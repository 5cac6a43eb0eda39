package cmd

import (
	"fmt"

	"cabinet/internal/cleanup"
	"cabinet/internal/fslock"
	"cabinet/internal/model"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Tidy a media library",
}

func cleanRun(use, short string, run func(dir string) (*cleanup.Result, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [dir]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			lock, err := fslock.Acquire(cfg.LockDir, dir)
			if err != nil {
				return err
			}
			defer lock.Release()

			res, err := run(dir)
			if res == nil {
				res = &cleanup.Result{}
			}
			saveRun(model.RunClean, dir, "", use, len(res.Removed), len(res.Failures), err)

			for _, path := range res.Removed {
				fmt.Println("removed", path)
			}
			printFailures(res.Failures)
			fmt.Printf("done: %d removed, %d failed\n", len(res.Removed), len(res.Failures))
			return err
		},
	}
}

func init() {
	cleanCmd.AddCommand(
		cleanRun("empty-folders", "Remove child folders holding no non-empty file", cleanup.RemoveEmptyFolders),
		cleanRun("zero-media", "Remove zero-byte media files", func(dir string) (*cleanup.Result, error) {
			return cleanup.RemoveZeroSizeMedia(dir, nil)
		}),
		cleanRun("shadow-media", "Remove media made redundant by a preferred format", func(dir string) (*cleanup.Result, error) {
			return cleanup.RemoveShadowedMedia(dir, nil)
		}),
	)
	rootCmd.AddCommand(cleanCmd)
}
