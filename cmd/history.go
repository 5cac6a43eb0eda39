package cmd

import (
	"fmt"
	"net/http"
	"os"

	"cabinet/internal/model"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var historyN int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View cabinet run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		var histories []model.History
		if err := call(http.MethodGet, fmt.Sprintf("/history?n=%d", historyN), nil, &histories); err != nil {
			return err
		}

		if len(histories) == 0 {
			fmt.Println("no history yet")
			return nil
		}

		for _, h := range histories {
			status := colored(os.Stdout, text.FgGreen, "✓")
			if h.Status == model.StatusFailed {
				status = colored(os.Stdout, text.FgRed, "✗")
			}

			fmt.Printf("%s [%s] %-6s %-12s %s -> %s (%d changed, %d failed)\n",
				status,
				h.RanAt.Format("2006-01-02 15:04:05"),
				h.Kind,
				h.Policy,
				h.SrcPath,
				h.DstPath,
				h.Mutations,
				h.Failures,
			)
		}

		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of history entries to show")
	rootCmd.AddCommand(historyCmd)
}
