package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jirafs",
	Short: "Mount Jira as a filesystem",
	Long:  `jirafs exposes saved Jira searches as a FUSE filesystem of rendered markdown issues.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default: $XDG_CONFIG_HOME/jirafs/config.yaml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "enable debug logging")
}
