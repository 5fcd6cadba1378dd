// Package cli wires the cobra command tree and composes the application
// from its adapters.
package cli

import (
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "kbrag",
	Short: "Knowledge-base retrieval-augmented question answering",
	Long: `kbrag crawls a helpdesk knowledge base, builds a vector index of
its articles, and answers customer questions grounded strictly in
that index.

Run "kbrag ingest" to build the index, then "kbrag serve" to expose
the question-answering API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}
