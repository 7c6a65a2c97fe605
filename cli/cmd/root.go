package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatflow",
	Short: "Chatflow - conversation script engine",
	Long: `Chatflow evaluates scripted chatbot conversations: messages, conditional
skips, webhook and form side effects, and closing steps.

The CLI validates scripts and serves a conversation over HTTP.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
}
