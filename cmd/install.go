package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"cabinet/internal/autostart"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Start the watch daemon at login",
	RunE: func(cmd *cobra.Command, args []string) error {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		var extra []string
		if configFile != "" {
			abs, err := filepath.Abs(configFile)
			if err != nil {
				return err
			}
			extra = append(extra, "--config", abs)
		}

		if err := autostart.New().Install(execPath, extra...); err != nil {
			return err
		}

		fmt.Println("cabinet daemon registered for autostart")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}
