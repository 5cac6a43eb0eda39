package cmd

import (
	"fmt"
	"os"

	"cabinet/internal/policy"

	"github.com/spf13/cobra"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the sync presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		var rows [][]string
		for _, name := range policy.SyncPresetNames(cfg.Presets) {
			p, err := cfg.SyncPreset(name)
			if err != nil {
				return err
			}
			rows = append(rows, []string{name, p.String()})
		}

		fmt.Println(renderTable(os.Stdout, []string{"PRESET", "POLICY"}, rows, nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}
