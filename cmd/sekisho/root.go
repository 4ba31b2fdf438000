package main

import (
	"fmt"
	"os"

	"github.com/harunnryd/sekisho/internal/config"
	"github.com/harunnryd/sekisho/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sekisho",
	Short: "Sekisho tool-call checkpoint",
	Long:  `Sekisho guards agent tool calls: it records them in conversation history, auto-approves what the rules allow and holds the rest for confirmation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		logger.Setup(cfg.Server.LogLevel)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sekisho/config.yaml)")
	rootCmd.PersistentFlags().String("server.log_level", config.DefaultServerLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("store.workspace_path", "", "workspace root path (default is $HOME/.sekisho/workspaces)")
	rootCmd.PersistentFlags().StringP("workspace", "w", config.DefaultWorkspaceID, "target workspace ID")
}
