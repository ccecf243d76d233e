package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "convoflow",
	Short: "Convoflow - conversational workflow engine",
	Long: `Convoflow runs deterministic multi-step conversations from JSON flow
definitions: message steps, input capture, conditional branching and
declarative actions.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
}
