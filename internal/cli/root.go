// Package cli provides the command-line interface for the dashboard.
package cli

import (
	"fmt"
	"os"

	"github.com/linkeLi0421/Epstein-Rag/internal/client"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	verbose   bool

	// Global API client, created before any command runs
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Control and observe the RAG indexing dashboard",
	Long: `ragctl talks to the RAG dashboard server: inspect and cancel indexing
jobs, follow their progress live, browse the query log, and check
system health.

The server address is taken from --server, the RAG_DASHBOARD_URL
environment variable, or defaults to http://localhost:8001.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		apiClient = client.New(serverURL)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "dashboard server URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
