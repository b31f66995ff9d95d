// Package cmd wires the CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docquery",
	Short: "docquery - retrieval-augmented question answering over your documents",
	Long: `docquery is a RAG backend: it ingests documents (text, PDFs, scanned
images) into a vector index and answers questions grounded in the
retrieved context, with per-session conversation memory.

Run "docquery serve" to start the HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
