package cmd

import (
	"fmt"

	"cabinet/internal/autostart"

	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the login autostart",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := autostart.New().Uninstall(); err != nil {
			return err
		}

		fmt.Println("cabinet daemon autostart removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}
