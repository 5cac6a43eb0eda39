package cmd

import (
	"fmt"
	"os"

	"cabinet/internal/config"
	"cabinet/internal/db"
	"cabinet/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfg        *config.Config
	debug      bool
	configFile string
)

var rootCmd = &cobra.Command{
	Use:           "cabinet",
	Short:         "Merge and mirror media library trees",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		logger.Init(debug)

		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return err
		}

		// These only talk to a running daemon.
		clientCmds := map[string]bool{
			"status": true, "pause": true, "resume": true,
			"remove": true, "stop": true, "history": true,
			"install": true, "uninstall": true, "presets": true,
		}
		if !clientCmds[cmd.Name()] {
			if err := db.Init(cfg.DBPath); err != nil {
				return err
			}
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = db.Close()
		logger.Sync()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func daemonURL(path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", cfg.DaemonPort, path)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug mode")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ~/.cabinet/config.yaml)")
}
